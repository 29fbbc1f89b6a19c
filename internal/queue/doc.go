// Package queue persists delayed jobs in SQLite and exposes the operations the
// processor and API need to drive them.
//
// A job carries an ordered list of remaining steps, a next-due timestamp
// stored as fractional epoch seconds, and a pending/completed status. Step
// order is persisted as a JSON object whose key order is the execution order,
// so it survives restarts unchanged.
//
// DueJobs selects pending jobs whose due time has passed. Claim is a
// compare-and-swap on the row revision that leases a job to one scan before
// its step is sent; Update is a full replace of the mutable fields and
// finalizes any job whose step list became empty.
//
// The schema version lives in SQLite's user_version pragma. A database
// written by a different version is rejected with ErrSchemaMismatch rather
// than migrated.
package queue
