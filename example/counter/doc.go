// Package counter is the example application state used by the demo: a counter, a list of names
// and user settings, each one store slice.
//
// The counter slice went through two schema versions. Version 0 persisted a bare number under
// "count"; version 1 added "version" and "updatedBy". CounterMigrations upgrades old blobs on load.
package counter
