// Package coverage selects the calibrator scans for instrumental calibration.
//
// Every non-reference antenna is assigned to the single scan where it reached
// its highest IF-averaged SNR with the reference antenna present. Antennas
// whose best SNR stays below the detection threshold are flagged together in
// one call. Merge later recombines the per-scan solutions so each antenna
// keeps the values solved in the scan that covers it.
package coverage
