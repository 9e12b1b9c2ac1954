// Package seed holds the CUE-defined initial span set: the five built-in
// kernel functions and the default manifest whitelisting them. Bootstrap
// is idempotent; a ledger that already carries a seed span keeps it.
package seed

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"
)

//go:embed seed.cue
var seedCUE string

// KernelDef describes one built-in kernel from the seed.
type KernelDef struct {
	ID          string
	Name        string
	Description string
	Runtime     string
}

// ManifestDef describes the default manifest from the seed.
type ManifestDef struct {
	AllowedBootIDs     []string
	SlowMS             int64
	SignaturesRequired bool
}

// Seed is the compiled seed set.
type Seed struct {
	Kernels  []KernelDef
	Manifest ManifestDef
}

// CompileError reports a malformed seed definition.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load compiles the embedded seed. Uses CUE SDK's Go API directly (not CLI
// subprocess).
func Load() (Seed, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(seedCUE)
	if err := v.Err(); err != nil {
		return Seed{}, fmt.Errorf("compile seed: %w", err)
	}

	kernels, err := parseKernels(v.LookupPath(cue.ParsePath("kernels")))
	if err != nil {
		return Seed{}, err
	}
	man, err := parseManifest(v.LookupPath(cue.ParsePath("manifest")))
	if err != nil {
		return Seed{}, err
	}
	return Seed{Kernels: kernels, Manifest: man}, nil
}

func parseKernels(v cue.Value) ([]KernelDef, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "kernels", Message: "kernels is required"}
	}
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: "kernels", Message: err.Error(), Pos: v.Pos()}
	}

	var defs []KernelDef
	for iter.Next() {
		el := iter.Value()
		def := KernelDef{}
		for _, field := range []struct {
			name string
			dst  *string
		}{
			{"id", &def.ID},
			{"name", &def.Name},
			{"description", &def.Description},
			{"runtime", &def.Runtime},
		} {
			fv := el.LookupPath(cue.ParsePath(field.name))
			if !fv.Exists() {
				return nil, &CompileError{Field: field.name, Message: field.name + " is required", Pos: el.Pos()}
			}
			s, err := fv.String()
			if err != nil {
				return nil, &CompileError{Field: field.name, Message: err.Error(), Pos: fv.Pos()}
			}
			*field.dst = s
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, &CompileError{Field: "kernels", Message: "at least one kernel is required", Pos: v.Pos()}
	}
	return defs, nil
}

func parseManifest(v cue.Value) (ManifestDef, error) {
	if !v.Exists() {
		return ManifestDef{}, &CompileError{Field: "manifest", Message: "manifest is required"}
	}
	def := ManifestDef{}

	idsVal := v.LookupPath(cue.ParsePath("allowed_boot_ids"))
	if idsVal.Exists() {
		iter, err := idsVal.List()
		if err != nil {
			return ManifestDef{}, &CompileError{Field: "allowed_boot_ids", Message: err.Error(), Pos: idsVal.Pos()}
		}
		for iter.Next() {
			id, err := iter.Value().String()
			if err != nil {
				return ManifestDef{}, &CompileError{Field: "allowed_boot_ids", Message: err.Error(), Pos: idsVal.Pos()}
			}
			def.AllowedBootIDs = append(def.AllowedBootIDs, id)
		}
	}

	slowVal := v.LookupPath(cue.ParsePath("policy.slow_ms"))
	if slowVal.Exists() {
		slow, err := slowVal.Int64()
		if err != nil {
			return ManifestDef{}, &CompileError{Field: "policy.slow_ms", Message: err.Error(), Pos: slowVal.Pos()}
		}
		def.SlowMS = slow
	}

	sigVal := v.LookupPath(cue.ParsePath("features.signatures_required"))
	if sigVal.Exists() {
		sig, err := sigVal.Bool()
		if err != nil {
			return ManifestDef{}, &CompileError{Field: "features.signatures_required", Message: err.Error(), Pos: sigVal.Pos()}
		}
		def.SignaturesRequired = sig
	}

	return def, nil
}
