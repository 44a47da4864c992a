// Package vlbi holds the value types shared by the calibration stages:
// antennas and their array geometry, immutable scan records kept in an
// id-indexed arena, and the NaN-aware statistics every stage aggregates SNR
// samples with.
package vlbi
