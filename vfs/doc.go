// Package vfs implements the kernel's hierarchical namespace.
//
// The Manager owns two tables: the inode table (metadata+data per
// entry) and the directory table (ordered child entries per
// directory inode). Both are private; every lookup and mutation goes
// through Manager methods, which normalize paths, enforce the POSIX
// style contracts (mkdir idempotence, unlink refusing directories,
// rmdir refusing non-empty directories) and keep timestamps current.
//
// Inode numbers are stable and monotonic. The bidirectional
// invariant - every inode except root has exactly one parent entry
// referencing it, and the back-pointer map agrees - is checked
// incrementally on mutation and exhaustively by VerifyConsistency.
//
// The namespace is the authority: persistence is a detached Snapshot
// of the tables that the kernel hands to the storage adapter after
// mutations. A lost snapshot loses restart recovery, never live
// state.
package vfs
