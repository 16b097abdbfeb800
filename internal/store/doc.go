// Package store provides SQLite-backed durable storage shared by the host and
// the extension process.
//
// The store holds:
//   - Configuration: the singleton filtering configuration record
//   - Trusted domains: the set of user-trusted hostnames
//   - Shared defaults: a key/value scratch space carrying notification payloads
//
// # Guarantees
//
// Every write is a single transaction, so readers never observe a torn
// configuration record and a trust add/remove either fully commits or has no
// effect.
//
// Schema evolution goes through PRAGMA user_version migrations.  Migrations
// only add structure; they never reset existing field values.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads from the other process during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for the other process's locks up to 5 seconds
//   - single pooled connection per process
package store
