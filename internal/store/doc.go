// Package store provides SQLite-backed persistence for records and for the
// transaction journal the WAL writes to.
//
// Two databases are involved, never one:
//   - Records: the data store actions commit to (records.sql)
//   - Journal: the independent metadata store holding logged transactions (journal.sql)
//
// # Merge Policy
//
// Updates merge attribute by attribute; the last writer wins per attribute.
// Inserting a record whose uniqueness key already exists merges into the
// existing row (json_patch) instead of failing.
//
// # Deterministic Reads
//
// All listing queries use ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability and performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Extra pragmas come from the store configuration's options.
package store
