// Package solint picks the fringe-fit solution interval of a science target.
//
// Five candidates derived from the longest sampled scan are tried shortest
// first; the first one at which every antenna's median SNR clears the
// detection threshold wins. Scan sampling always takes an explicitly seeded
// generator so a run can be replayed exactly.
package solint
