// Package tables models versioned calibration tables and the session handle
// that scopes every stage to one dataset namespace.
package tables
