// Package vkernel is a single-process virtual kernel: a user-space
// emulation of an operating-system kernel exposing a hierarchical
// namespace, descriptor-based resource access, pluggable device
// modules, inter-module messaging and runtime consistency checking.
//
// # Architecture Overview
//
// The module is organized into concern packages composed behind one
// syscall facade:
//
//	vkernel/             Root package documentation
//	├── kernel/          Syscall facade composing everything below
//	├── vfs/             Inode and directory tables, path resolution
//	├── fd/              Descriptor allocation and mode checks
//	├── device/          Mount registry, capability dispatch, builtins
//	├── mq/              Named priority queues with blocking receive
//	├── signal/          Broadcast event dispatcher
//	├── plugin/          Plugin executor, native and WASM guests
//	├── storage/         Snapshot persistence (memory and sqlite)
//	├── entity/          User-level records over the fd surface
//	├── invariant/       Fail-fast/observe consistency checking
//	└── errors/          Errno-style structured error taxonomy
//
// # Quick Start
//
// Boot a kernel and use the syscall surface:
//
//	k, err := kernel.New(kernel.Config{Mode: kernel.ModeDebug})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer k.Shutdown()
//
//	fd, err := k.Open("/tmp/note", fd.Write|fd.Create)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	k.Write(fd, []byte("hello"))
//	k.Close(fd)
//
// # Contracts
//
// Every syscall returns a structured error whose class is
// inspectable with errors.CodeOf; closing a descriptor twice is a
// bad-descriptor error, never a no-op. Invariant violations travel a
// separate channel: panic in debug mode, bounded ring buffer plus log
// in production.
//
// # Persistence
//
// The in-memory namespace is the authority. After mutations a worker
// serializes the inode, directory, metadata and mount tables to the
// storage adapter in one atomic write; the snapshot is durable only
// once Flush has returned, and a boot over a complete snapshot
// restores the previous namespace.
package vkernel
