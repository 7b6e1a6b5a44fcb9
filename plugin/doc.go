// Package plugin implements the kernel's plugin executor.
//
// A plugin is a registered unit of behavior executed on demand
// against a target namespace path. Before execution the executor
// verifies the plugin's declared required devices are mounted and the
// target exists; afterwards the outcome - exit status, failure
// reason, timing - is published as a structured exec.done event on
// the kernel's signal dispatcher. A non-zero status is a failure
// event, never an exception and never a silent no-op.
//
// Running executions are addressable by exec id: Kill cancels the
// execution's context (running the plugin's own interrupt handler
// when it has one), and SendSignal/BroadcastSignal deliver named
// signals to plugins that accept them.
//
// Besides native Go plugins, WASMProgram wraps a guest binary stored
// in the executables subtree: it is instantiated under an embedded
// wazero interpreter with a small host module bridging logging and
// target-file access back through the kernel's descriptor surface.
package plugin
