// Package history records backup attempts and recently opened targets in
// SQLite.
//
// Every backup, successful or not, becomes one row in the backups table with
// its failure category so repeated trouble with a disc or drive is visible
// later. The recent_targets table remembers devices and output directories so
// the CLI can offer sensible defaults.
//
// Schema changes bump schemaVersion in schema.go; users clear the database
// (slipstream history clear --all) to adopt a new schema.
package history
