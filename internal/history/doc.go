// Package history keeps a SQLite ledger of every stage invocation.
//
// The ledger is an audit trail for operators: which units were attempted, how
// often, and how each attempt ended. It is never consulted when deciding what
// to process; that decision belongs to the processed-state file alone.
package history
