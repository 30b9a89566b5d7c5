// Package variant selects the llama-server build to launch for the current
// OS, architecture, and hardware acceleration capability.
//
// The exec directory is laid out as <dir>/<variant>/llama-server, with an
// optional bare <dir>/llama-server treated as the universal cpu build.
// Selection runs once at startup; Refresh re-probes on demand.
package variant

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ExecName is the engine binary name inside each variant directory.
const ExecName = "llama-server"

// EnvVariant forces a variant, bypassing hardware detection. Used for
// testing and pinned deployments.
const EnvVariant = "LLAMAD_EXEC_VARIANT"

// Descriptor identifies one runnable engine build. Immutable after selection.
type Descriptor struct {
	Name        string
	ExecPath    string
	Accelerated bool
}

// noVariantError is fatal: nothing installed can serve requests.
type noVariantError struct{ dir string }

func (e noVariantError) Error() string {
	return fmt.Sprintf("no compatible llama-server variant installed under %s", e.dir)
}

// IsNoVariant reports whether err indicates no installed engine build.
func IsNoVariant(err error) bool {
	_, ok := err.(noVariantError)
	return ok
}

// Selector picks and caches the engine variant for this process.
type Selector struct {
	dir    string
	forced string
	log    zerolog.Logger
	// probe reports whether the host hardware supports an accelerated
	// variant. Overridable in tests.
	probe func(name string) bool

	mu  sync.RWMutex
	cur Descriptor
}

// NewSelector creates a selector over dir. forced pins a variant name; the
// LLAMAD_EXEC_VARIANT environment variable takes precedence over forced.
func NewSelector(dir, forced string, log zerolog.Logger) *Selector {
	if env := strings.TrimSpace(os.Getenv(EnvVariant)); env != "" {
		forced = env
	}
	return &Selector{dir: dir, forced: forced, log: log, probe: hardwareSupports}
}

// preferenceOrder returns candidate variant names, most capable first.
// The cpu variant is always last so a universal build always matches.
func preferenceOrder() []string {
	switch runtime.GOOS {
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return []string{"metal", "cpu"}
		}
		return []string{"cpu"}
	case "linux":
		return []string{"cuda", "rocm", "vulkan", "cpu"}
	case "windows":
		return []string{"cuda", "vulkan", "cpu"}
	default:
		return []string{"cpu"}
	}
}

// hardwareSupports does a cheap read-only probe for the drivers an
// accelerated variant needs. Unknown variants only require the binary.
func hardwareSupports(name string) bool {
	switch name {
	case "cpu":
		return true
	case "metal":
		return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
	case "cuda":
		if runtime.GOOS != "linux" {
			return true // rely on binary presence elsewhere
		}
		if _, err := os.Stat("/proc/driver/nvidia/version"); err == nil {
			return true
		}
		_, err := os.Stat("/dev/nvidiactl")
		return err == nil
	case "rocm":
		if runtime.GOOS != "linux" {
			return false
		}
		_, err := os.Stat("/dev/kfd")
		return err == nil
	default:
		return true
	}
}

// Refresh re-runs selection and caches the result.
func (s *Selector) Refresh() (Descriptor, error) {
	d, err := s.choose()
	if err != nil {
		return Descriptor{}, err
	}
	s.mu.Lock()
	s.cur = d
	s.mu.Unlock()
	s.log.Info().Str("variant", d.Name).Str("exec", d.ExecPath).Msg("engine variant selected")
	return d, nil
}

// Selected returns the cached descriptor. Refresh must have succeeded once.
func (s *Selector) Selected() Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Selector) choose() (Descriptor, error) {
	if s.forced != "" {
		if p, ok := s.execFor(s.forced); ok {
			return Descriptor{Name: s.forced, ExecPath: p, Accelerated: s.forced != "cpu"}, nil
		}
		s.log.Warn().Str("variant", s.forced).Msg("forced variant not installed, falling back to detection")
	}
	for _, name := range preferenceOrder() {
		p, ok := s.execFor(name)
		if !ok {
			continue
		}
		if !s.probe(name) {
			s.log.Debug().Str("variant", name).Msg("variant installed but hardware probe failed")
			continue
		}
		return Descriptor{Name: name, ExecPath: p, Accelerated: name != "cpu"}, nil
	}
	// Universal build directly in the exec dir counts as cpu.
	if p, ok := s.bareExec(); ok {
		return Descriptor{Name: "cpu", ExecPath: p}, nil
	}
	return Descriptor{}, noVariantError{dir: s.dir}
}

func (s *Selector) execFor(name string) (string, bool) {
	p := filepath.Join(s.dir, name, execFileName())
	if isExecutable(p) {
		return p, true
	}
	return "", false
}

func (s *Selector) bareExec() (string, bool) {
	p := filepath.Join(s.dir, execFileName())
	if isExecutable(p) {
		return p, true
	}
	return "", false
}

func execFileName() string {
	if runtime.GOOS == "windows" {
		return ExecName + ".exe"
	}
	return ExecName
}

func isExecutable(p string) bool {
	fi, err := os.Stat(p)
	if err != nil || fi.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return fi.Mode()&0o111 != 0
}
