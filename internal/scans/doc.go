// Package scans turns the solver's survey table into the scan catalog the
// later stages consume: scans grouped by time, named by source, and ranked by
// the median of their SNR samples.
package scans
