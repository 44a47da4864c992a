// Package refant ranks candidate reference antennas by trial fringe fits and
// falls back to the configured override chain when no antenna was present
// throughout the science target.
package refant
