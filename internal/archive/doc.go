// Package archive keeps a queryable SQLite copy of every cage event.
//
// The tab-separated day files written by eventlog remain the primary record;
// the archive exists so events can be queried across days (by tag, by label,
// by session) without re-parsing text files. Each run of the controller within
// one day is a session identified by a UUIDv7, and every event carries a
// strictly increasing sequence number so ordering never depends on wall-clock
// resolution.
package archive
