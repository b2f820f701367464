//go:build !windows

// Package pdflibwrappers locates and loads the shared PDF libraries this module binds to.
package pdflibwrappers

import (
	"errors"
	"fmt"

	"github.com/ebitengine/purego"
)

// CloseLib closes the last lib opened by [TryLoadLib]
var CloseLib func() = func() {}

// TryLoadLib tries to load a shared object/dynamically linked library
// from various paths and returns a handle, the path that succeeded or 0 and an error.
func TryLoadLib(paths ...string) (uintptr, string, error) {
	if len(paths) == 0 {
		return 0, "", ErrNoCandidates
	}
	var errs error
	for _, path := range paths {
		lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if lib != 0 {
			CloseLib = func() { _ = purego.Dlclose(lib) }
			return lib, path, nil
		}
		errs = errors.Join(errs, fmt.Errorf("dlopen %s: %w", path, err))
	}
	return 0, "", errs
}
