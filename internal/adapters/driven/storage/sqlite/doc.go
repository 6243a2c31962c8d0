// Package sqlite provides the durable SQLite implementation of the
// VectorStore and PageStore ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. Both ports share a single database:
//
//   - VectorStore: embedding records, store profile
//   - PageStore: raw crawled pages, crawl failure log
//
// # Querying
//
// Records are loaded into an in-memory brute-force index on open and kept in
// step with every write, so queries never touch the database. Ranking ties
// follow rowid order, which is the order records were first inserted.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory.
//
// # Data Location
//
// By default, the database is stored at ~/.quire/data/quire.db
//
// # Thread Safety
//
// All operations are thread-safe. Writes are serialised so the database and
// the in-memory index apply them in the same order.
package sqlite
