// Package fringe assesses science-target fringe fits.
//
// A fit with independent IFs is tried first and accepted when nearly every
// solution succeeded. Otherwise a fit with averaged IFs is tried and the
// table with the strictly higher good/total ratio is kept, ties going to
// the independent-IF table. When both ratios are zero the target is
// unsalvageable and must be excluded from export.
package fringe
