// Package store persists calibration tables and the run ledger in SQLite.
//
// Tables are versioned per dataset namespace and kind; the Store implements
// tables.Store so stages never see SQL. The ledger records each run, every
// decision a stage logs, and the targets excluded from export, which is what
// `vlbical show` renders.
//
// A dataset is written by one run at a time. AcquireDatasetLock takes a
// non-blocking flock under paths.lock_dir so a second run fails fast.
//
// Schema changes bump the version in schema.go; users delete the database to
// adopt the new schema.
package store
