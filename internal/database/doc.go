// Package database keeps the SQLite index of source images.
//
// The index is written by the `thumbcache index` command and read by the
// HTTP listing endpoint. Thumbnails themselves never live in the database;
// the cache store is the filesystem. The connection uses WAL mode so the
// server can read while an index run writes.
package database
