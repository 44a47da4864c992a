// Package logs reads back the run and group log files vlbical writes, for
// the `vlbical logs` command.
package logs
