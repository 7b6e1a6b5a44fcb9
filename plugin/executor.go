package plugin

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/signal"
)

// SignalExecDone is emitted on the kernel's dispatcher after every
// execution, success or failure, carrying the Result as payload.
const SignalExecDone = "exec.done"

// Result is the structured outcome of one execution. Failures are
// events carrying context, never silent no-ops.
type Result struct {
	ExecID     uuid.UUID
	PluginID   string
	TargetPath string
	Status     int
	FailReason string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports whether the execution ended in failure.
func (r Result) Failed() bool { return r.Status != 0 || r.FailReason != "" }

type execution struct {
	plugin Plugin
	cancel context.CancelFunc
}

// Executor loads and runs plugins against namespace paths.
type Executor struct {
	mu       sync.Mutex
	plugins  map[string]Plugin
	running  map[uuid.UUID]*execution
	mounted  func(deviceID string) (string, bool)
	dispatch *signal.Dispatcher
}

// NewExecutor creates an executor. mounted resolves a device id to
// its current mount path (the device registry's MountedPath);
// dispatch receives the exec.done events.
func NewExecutor(mounted func(string) (string, bool), dispatch *signal.Dispatcher) *Executor {
	return &Executor{
		plugins:  make(map[string]Plugin),
		running:  make(map[uuid.UUID]*execution),
		mounted:  mounted,
		dispatch: dispatch,
	}
}

// Register adds a plugin. Duplicate ids are rejected.
func (e *Executor) Register(p Plugin) error {
	const op = "registerPlugin"
	if p == nil || p.ID() == "" {
		return errors.Invalid(op, "plugin must carry an id")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.plugins[p.ID()]; ok {
		return errors.Exists(op, p.ID())
	}
	e.plugins[p.ID()] = p
	return nil
}

// Unregister removes a plugin. Running executions finish undisturbed.
func (e *Executor) Unregister(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.plugins[id]; !ok {
		return errors.New("unregisterPlugin", errors.CapabilityNotFound).
			Detail("plugin %q not registered", id).
			Build()
	}
	delete(e.plugins, id)
	return nil
}

// Plugins returns the registered plugin ids, sorted.
func (e *Executor) Plugins() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.plugins))
	for id := range e.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Exec runs a registered plugin against targetPath. The plugin's
// required devices must all be mounted and the target must exist. The
// call is synchronous; run it on its own goroutine when concurrency
// is wanted - Kill and SendSignal reach it either way through the
// exec id, which is stamped into the Result.
func (e *Executor) Exec(ctx context.Context, k Kernel, pluginID, targetPath string, opts Options) (Result, error) {
	const op = "exec"

	e.mu.Lock()
	p, ok := e.plugins[pluginID]
	e.mu.Unlock()
	if !ok {
		return Result{}, errors.New(op, errors.CapabilityNotFound).
			Path(targetPath).
			Detail("plugin %q not registered", pluginID).
			Build()
	}

	for _, dev := range p.RequiredDevices() {
		if _, ok := e.mounted(dev); !ok {
			return Result{}, errors.New(op, errors.DeviceNotFound).
				Path(targetPath).
				Detail("plugin %q requires device %q, which is not mounted", pluginID, dev).
				Build()
		}
	}
	if !k.Exists(targetPath) {
		return Result{}, errors.NotFoundf(op, targetPath)
	}

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	res := Result{
		ExecID:     uuid.New(),
		PluginID:   pluginID,
		TargetPath: targetPath,
		StartedAt:  time.Now(),
	}

	e.mu.Lock()
	e.running[res.ExecID] = &execution{plugin: p, cancel: cancel}
	e.mu.Unlock()

	status, err := p.Execute(execCtx, k, targetPath, opts)

	e.mu.Lock()
	delete(e.running, res.ExecID)
	e.mu.Unlock()

	res.Status = status
	res.FinishedAt = time.Now()
	if err != nil {
		res.FailReason = err.Error()
		if res.Status == 0 {
			res.Status = -1
		}
	}

	if res.Failed() {
		Logger().Warn("plugin execution failed",
			zap.String("plugin", pluginID),
			zap.String("target", targetPath),
			zap.Int("status", res.Status),
			zap.String("reason", res.FailReason),
		)
	} else {
		Logger().Debug("plugin execution complete",
			zap.String("plugin", pluginID),
			zap.String("target", targetPath),
		)
	}
	e.dispatch.Emit(SignalExecDone, pluginID, res)

	// The failure already travels inside the Result event; the error
	// return covers only the executor's own refusals above.
	return res, nil
}

// Kill cancels a running execution and, when the plugin handles
// interrupts, runs its interrupt handler.
func (e *Executor) Kill(execID uuid.UUID) error {
	e.mu.Lock()
	exec, ok := e.running[execID]
	e.mu.Unlock()
	if !ok {
		return errors.New("kill", errors.NotFound).
			Detail("no running execution %s", execID).
			Build()
	}

	exec.cancel()
	if i, ok := exec.plugin.(Interruptible); ok {
		i.Interrupt()
	}
	return nil
}

// SendSignal delivers a named signal to one running execution.
func (e *Executor) SendSignal(execID uuid.UUID, name string) error {
	e.mu.Lock()
	exec, ok := e.running[execID]
	e.mu.Unlock()
	if !ok {
		return errors.New("sendSignal", errors.NotFound).
			Detail("no running execution %s", execID).
			Build()
	}

	h, ok := exec.plugin.(SignalHandler)
	if !ok {
		return errors.Unsupported("sendSignal", "plugin does not handle signals")
	}
	h.HandleSignal(name)
	return nil
}

// BroadcastSignal delivers a named signal to every running execution
// that handles signals, returning how many received it.
func (e *Executor) BroadcastSignal(name string) int {
	e.mu.Lock()
	handlers := make([]SignalHandler, 0, len(e.running))
	for _, exec := range e.running {
		if h, ok := exec.plugin.(SignalHandler); ok {
			handlers = append(handlers, h)
		}
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h.HandleSignal(name)
	}
	return len(handlers)
}

// RunningCount returns the number of in-flight executions.
func (e *Executor) RunningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}
