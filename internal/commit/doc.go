// Package commit implements the write-ahead interception of store commits and
// the execution context actions use to stage record changes.
//
// COMMIT ORDER:
//
// For save and batch-update requests with a WAL attached:
//  1. temporary record ids are replaced with durable ones
//  2. the change set is serialized and appended to the WAL
//  3. the underlying store commits
//  4. on success the WAL entry is removed
//  5. on failure the WAL entry stays and a CommitFailure is returned
//
// Logging before committing means every change the store holds was durably
// logged first; a crash between steps 2 and 4 leaves a diagnosable entry.
// Fetch requests bypass the WAL entirely.
package commit
