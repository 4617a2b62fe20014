// Package mysql persists chat transcripts in MySQL. It owns the connection
// pool setup and applies the embedded schema migrations on startup.
package mysql
