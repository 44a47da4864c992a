// Package solver declares the external collaborators the calibration stages
// drive: the fringe solver, antenna flagging, source and antenna directories,
// and export.
package solver
