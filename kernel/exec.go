package kernel

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loredeck/vkernel/plugin"
)

// Plugin surface. The kernel itself is the facade handed to executing
// plugins, so everything they touch goes through the descriptor and
// permission layer above.

// RegisterPlugin adds a plugin to the executor.
func (k *Kernel) RegisterPlugin(p plugin.Plugin) error {
	return k.execs.Register(p)
}

// UnregisterPlugin removes a plugin.
func (k *Kernel) UnregisterPlugin(id string) error {
	return k.execs.Unregister(id)
}

// Plugins returns the registered plugin ids, sorted.
func (k *Kernel) Plugins() []string {
	return k.execs.Plugins()
}

// Exec runs a registered plugin against targetPath. The result is
// published on the exec.done signal and recorded under /proc/last-exit;
// the error return covers only the executor's refusals.
func (k *Kernel) Exec(ctx context.Context, pluginID, targetPath string, opts plugin.Options) (plugin.Result, error) {
	res, err := k.execs.Exec(ctx, k, pluginID, targetPath, opts)
	if err != nil {
		return res, err
	}
	k.recordLastExit(res)
	return res, nil
}

// Kill cancels a running execution.
func (k *Kernel) Kill(execID uuid.UUID) error {
	return k.execs.Kill(execID)
}

// SendSignal delivers a named signal to one running execution.
func (k *Kernel) SendSignal(execID uuid.UUID, name string) error {
	return k.execs.SendSignal(execID, name)
}

// BroadcastSignal delivers a named signal to every running execution
// that handles signals.
func (k *Kernel) BroadcastSignal(name string) int {
	return k.execs.BroadcastSignal(name)
}

// recordLastExit writes the execution result into the process
// information subtree. Best effort: the result already traveled the
// signal channel.
func (k *Kernel) recordLastExit(res plugin.Result) {
	blob, err := json.Marshal(res)
	if err != nil {
		Logger().Warn("marshal last exit", zap.Error(err))
		return
	}
	if err := k.fs.Write(ProcLastExit, blob); err != nil {
		Logger().Warn("record last exit", zap.Error(err))
	}
}
