package plugin

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/fd"
)

// HostModule is the import namespace guest programs bind kernel
// functions from.
const HostModule = "vkernel"

// WASMProgram runs a guest program stored in the executables subtree.
// The binary is read through the kernel's own descriptor surface,
// instantiated under an embedded interpreter, and its exported
//
//	run() -> i32
//
// is the execution entry point: the returned value is the exit
// status. Guests reach back into the kernel through the HostModule
// imports:
//
//	log(ptr, len)              write a line to the kernel console
//	target_read(ptr, cap) i32  copy the target file into guest memory
//	target_write(ptr, len) i32 replace the target file's data
type WASMProgram struct {
	id       string
	binPath  string
	required []string
}

// NewWASMProgram declares a guest program. binPath is where the
// binary lives in the kernel namespace (conventionally under /bin).
func NewWASMProgram(id, binPath string, requiredDevices ...string) *WASMProgram {
	return &WASMProgram{id: id, binPath: binPath, required: requiredDevices}
}

func (p *WASMProgram) ID() string                { return p.id }
func (p *WASMProgram) RequiredDevices() []string { return p.required }

// readFile pulls a whole file through the descriptor surface.
func readFile(k Kernel, path string) ([]byte, error) {
	fdnum, err := k.Open(path, fd.Read)
	if err != nil {
		return nil, err
	}
	defer func() { _ = k.Close(fdnum) }()
	return k.Read(fdnum)
}

// writeFile replaces a file's data through the descriptor surface.
func writeFile(k Kernel, path string, data []byte) error {
	fdnum, err := k.Open(path, fd.Write|fd.Create)
	if err != nil {
		return err
	}
	defer func() { _ = k.Close(fdnum) }()
	return k.Write(fdnum, data)
}

// Execute instantiates the guest and calls run.
func (p *WASMProgram) Execute(ctx context.Context, k Kernel, targetPath string, _ Options) (int, error) {
	const op = "exec"

	binary, err := readFile(k, p.binPath)
	if err != nil {
		return 0, errors.Wrap(op, errors.NotFound, err, "read program binary")
	}
	target, err := readFile(k, targetPath)
	if err != nil {
		return 0, errors.Wrap(op, errors.NotFound, err, "read target")
	}

	cfg := wazero.NewRuntimeConfigInterpreter().WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	defer func() { _ = rt.Close(ctx) }()

	_, err = rt.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, ptr, n uint32) {
			line, ok := mod.Memory().Read(ptr, n)
			if !ok {
				return
			}
			if err := k.Write(fd.Stdout, append(append([]byte(nil), line...), '\n')); err != nil {
				Logger().Warn("guest log write failed", zap.String("plugin", p.id), zap.Error(err))
			}
		}).
		Export("log").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, ptr, capacity uint32) int32 {
			n := uint32(len(target))
			if n > capacity {
				n = capacity
			}
			if n > 0 && !mod.Memory().Write(ptr, target[:n]) {
				return -1
			}
			return int32(n)
		}).
		Export("target_read").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, ptr, n uint32) int32 {
			data, ok := mod.Memory().Read(ptr, n)
			if !ok {
				return -1
			}
			if err := writeFile(k, targetPath, append([]byte(nil), data...)); err != nil {
				Logger().Warn("guest target write failed", zap.String("plugin", p.id), zap.Error(err))
				return -1
			}
			return 0
		}).
		Export("target_write").
		Instantiate(ctx)
	if err != nil {
		return 0, errors.Wrap(op, errors.ValidationFailed, err, "register host module")
	}

	mod, err := rt.InstantiateWithConfig(ctx, binary, wazero.NewModuleConfig().WithName(p.id))
	if err != nil {
		return 0, errors.Wrap(op, errors.ValidationFailed, err, "instantiate guest program")
	}
	defer func() { _ = mod.Close(ctx) }()

	run := mod.ExportedFunction("run")
	if run == nil {
		return 0, errors.New(op, errors.ValidationFailed).
			Path(p.binPath).
			Detail("program exports no run function").
			Build()
	}

	results, err := run.Call(ctx)
	if err != nil {
		return 0, errors.Wrap(op, errors.ValidationFailed, err, "guest trap")
	}
	if len(results) == 0 {
		return 0, nil
	}
	return int(int32(results[0])), nil
}
