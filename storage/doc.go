// Package storage provides the durable key-value adapter the kernel
// persists namespace snapshots to.
//
// The in-memory namespace is the authority; this layer is best-effort
// caching for restart recovery ("durable if flushed"). A snapshot is
// four logical keys - inode table, directory table, metadata, mount
// table - that cross-reference each other, so Store.PutAll must land
// all of them atomically.
//
// Two backends are provided: Memory for tests and ephemeral kernels,
// and SQLite (modernc.org/sqlite, cgo-free) for durable single-file
// persistence.
package storage
