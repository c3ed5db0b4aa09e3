// Package fistpoint provides named fault-injection points.
//
// Every durable write step in the metadata store and journal calls Activate
// with a stable point name. Points are disabled by default, so Activate is a
// map lookup returning nil. Tests enable a point to force the partial-failure
// path deterministically; operators can enable points for a whole process
// through the SRMETA_FIST environment variable (comma-separated names).
package fistpoint

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// EnvVar lists points enabled at process start.
const EnvVar = "SRMETA_FIST"

// ErrInjected is wrapped by every error returned from an enabled point.
var ErrInjected = errors.New("injected fault")

var (
	mu      sync.RWMutex
	enabled = map[string]bool{}
)

func init() {
	for _, name := range strings.Split(os.Getenv(EnvVar), ",") {
		if name = strings.TrimSpace(name); name != "" {
			enabled[name] = true
		}
	}
}

// Activate returns an error wrapping ErrInjected if the point is enabled.
func Activate(name string) error {
	mu.RLock()
	on := enabled[name]
	mu.RUnlock()

	if on {
		return fmt.Errorf("fistpoint %s: %w", name, ErrInjected)
	}
	return nil
}

// Enable turns a point on.
func Enable(name string) {
	mu.Lock()
	enabled[name] = true
	mu.Unlock()
}

// Disable turns a point off.
func Disable(name string) {
	mu.Lock()
	delete(enabled, name)
	mu.Unlock()
}

// Reset turns every point off.
func Reset() {
	mu.Lock()
	enabled = map[string]bool{}
	mu.Unlock()
}

// Enabled reports whether a point is on.
func Enabled(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled[name]
}
