// Package entity stores user-level records as JSON files under the
// kernel's entity subtree. Every operation is mediated by
// descriptors: create opens with write-create, get opens read-only,
// update reads, mutates in memory and writes back, remove unlinks.
package entity
