// Package kernel is the syscall facade over the virtual kernel's
// components: the namespace (vfs), the descriptor table (fd), the
// device registry (device), message queues (mq), the signal
// dispatcher (signal) and the plugin executor (plugin).
//
// The facade owns every table. Devices and plugins receive the kernel
// itself as their handle, so all of their I/O passes through the
// descriptor and mode-check layer; nothing can reach the raw tables.
//
// Boot reserves the standard namespace (/dev, /proc, /home/entities,
// /etc, /var, /var/cache, /tmp, /bin), mounts the built-in devices,
// and, when the storage adapter holds a complete snapshot of the four
// persisted tables, restores the previous namespace first.
// Persistence afterwards is write-through and best effort: a single
// worker goroutine serializes the tables after mutations, and the
// snapshot is durable only once Flush has returned.
//
// Shutdown is a barrier: new opens and mounts are refused, leaked
// descriptors are drained, device shutdown hooks run, queues and
// listeners are cleared, the final snapshot is flushed and one last
// consistency sweep checks the tables.
package kernel
