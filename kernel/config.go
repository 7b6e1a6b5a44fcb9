package kernel

import (
	"github.com/loredeck/vkernel/fd"
	"github.com/loredeck/vkernel/invariant"
)

// Operating modes. Debug fails fast on invariant violations;
// production records and keeps serving.
const (
	ModeDebug      = "debug"
	ModeProduction = "production"
)

// Config carries the kernel's boot parameters. The env tags are read
// by cmd/vkernel with the VKERNEL_ prefix.
type Config struct {
	// Mode selects invariant handling: ModeDebug or ModeProduction.
	Mode string `env:"MODE" envDefault:"debug"`

	// FdCeiling is the open-descriptor ceiling; crossing it is
	// reported as a leak. Zero selects fd.DefaultCeiling.
	FdCeiling int `env:"FD_CEILING"`

	// StorePath is the sqlite snapshot file. Empty selects the
	// in-memory store: the namespace then lives only for the process.
	StorePath string `env:"STORE_PATH"`

	// ConsoleLines bounds the boot console backlog. Zero selects the
	// console's own default.
	ConsoleLines int `env:"CONSOLE_LINES"`
}

func (c Config) invariantMode() invariant.Mode {
	if c.Mode == ModeProduction {
		return invariant.Observe
	}
	return invariant.Strict
}

func (c Config) ceiling() int {
	if c.FdCeiling <= 0 {
		return fd.DefaultCeiling
	}
	return c.FdCeiling
}
