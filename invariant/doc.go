// Package invariant provides runtime consistency checking for the
// virtual kernel.
//
// Every kernel component calls into this package before and after
// mutating its tables. A failed check is a programmer error, not an
// expected runtime condition, so it is handled outside the error-code
// channel:
//
//   - Strict mode (development): panic at the call site, surfacing the
//     bug where it happened.
//   - Observe mode (production): record to a bounded ring buffer of
//     recent violations, log, and continue.
//
// The asymmetry is deliberate: strict enforcement while developing,
// graceful degradation in the field.
//
//	invariant.SetMode(invariant.Observe)
//	invariant.Check("vfs.mkdir", parentExists, "parent of %q missing", path)
//	recent := invariant.Violations()
//
// Beyond the generic Check, the package carries the structural
// predicates shared across components: path well-formedness,
// descriptor-range and descriptor-ceiling checks, and the mount-path
// convention.
package invariant
