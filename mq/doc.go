// Package mq implements the kernel's named message queues.
//
// Queues are bounded and priority-ordered: the highest-priority
// message is always delivered first, FIFO among equals. Delivery is
// unicast - each message reaches exactly one receiver - which is the
// deliberate counterpart to the signal package's broadcast semantics.
//
// Sends purge TTL-expired messages before anything else, then apply
// the queue's overflow policy: reject the new message, or evict the
// oldest lowest-priority one to make room. The two policies are
// independent, explicitly configured behaviors, not variations of a
// shared default.
//
// WaitForMessage parks a logical waiter when nothing matches. The
// waiter, its timeout and a concurrent enqueue are arbitrated under
// the queue lock: a delivered message unparks exactly one waiter, and
// a timed-out waiter is off the wait list before the timeout error
// returns, so no message is stranded and no waiter dangles.
package mq
