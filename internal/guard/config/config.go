// Package config defines the pool configuration and its loaders.
//
// Options can be built programmatically, loaded from a YAML file, or
// overridden from GWP_ASAN_* environment variables (in that precedence
// order). The pool consumes a validated Options exactly once, at init.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// BacktraceFunc fills buf with up to len(buf) return addresses for the
// current call stack and returns the number captured. It must not call
// back into the allocator; capture runs under the recursion guard so an
// allocating capturer falls back to the host allocator, but a capturer
// that frees guarded memory is undefined.
type BacktraceFunc func(buf []uintptr) int

// Options configures the guarded pool. The zero value is not directly
// usable; start from Default().
type Options struct {
	// Enabled is the master switch. When false, Init is a no-op and the
	// pool stays in its zero state (never samples, owns no pointers).
	Enabled bool `yaml:"enabled"`

	// SampleRate bounds the distance between samples: each per-goroutine
	// countdown is drawn uniformly from [1, SampleRate], so on average one
	// allocation in (SampleRate+1)/2 is sampled. Must be positive.
	SampleRate int `yaml:"sample_rate"`

	// MaxSimultaneousAllocations is the slot count: the maximum number
	// of sampled allocations live at once. Must be positive.
	MaxSimultaneousAllocations int `yaml:"max_simultaneous_allocations"`

	// PerfectlyRightAlign forces right-aligned allocations to end
	// exactly at the page boundary with no alignment snap. Catches
	// single-byte overflows for odd sizes at the cost of violating
	// natural alignment. Opt-in.
	PerfectlyRightAlign bool `yaml:"perfectly_right_align"`

	// Recoverable selects recoverable crash handling: errors are
	// reported (at most once per slot) and execution continues, instead
	// of raising a fatal fault.
	Recoverable bool `yaml:"recoverable"`

	// InstallForkHandlers registers the pool's at-fork hook triple with
	// the platform registry during init.
	InstallForkHandlers bool `yaml:"install_fork_handlers"`

	// Backtrace captures allocation/deallocation stacks. Nil selects the
	// built-in runtime.Callers capturer. Not loadable from YAML or the
	// environment.
	Backtrace BacktraceFunc `yaml:"-"`

	// ReportWriter receives crash reports. Nil means os.Stderr. Not
	// loadable from YAML or the environment.
	ReportWriter io.Writer `yaml:"-"`
}

// Default returns the stock configuration: enabled, SampleRate 5000
// (about one sample every 2500 allocations), 16 slots, recoverable off.
func Default() Options {
	return Options{
		Enabled:                    true,
		SampleRate:                 5000,
		MaxSimultaneousAllocations: 16,
		InstallForkHandlers:        true,
	}
}

// Validate checks option ranges.
func (o *Options) Validate() error {
	if !o.Enabled {
		return nil
	}
	if o.SampleRate <= 0 {
		return fmt.Errorf("config: sample_rate must be positive, got %d", o.SampleRate)
	}
	if o.SampleRate > 1<<30 {
		return fmt.Errorf("config: sample_rate %d exceeds 2^30", o.SampleRate)
	}
	if o.MaxSimultaneousAllocations <= 0 {
		return fmt.Errorf("config: max_simultaneous_allocations must be positive, got %d",
			o.MaxSimultaneousAllocations)
	}
	return nil
}

// LoadFile reads options from a YAML file, applied on top of Default().
func LoadFile(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Environment variable names recognised by FromEnv.
const (
	EnvEnabled             = "GWP_ASAN_ENABLED"
	EnvSampleRate          = "GWP_ASAN_SAMPLE_RATE"
	EnvMaxAllocations      = "GWP_ASAN_MAX_ALLOCATIONS"
	EnvPerfectRightAlign   = "GWP_ASAN_PERFECTLY_RIGHT_ALIGN"
	EnvRecoverable         = "GWP_ASAN_RECOVERABLE"
	EnvInstallForkHandlers = "GWP_ASAN_INSTALL_FORK_HANDLERS"
)

// FromEnv overlays GWP_ASAN_* environment variables onto opts. Unset
// variables leave the corresponding field untouched; malformed values are
// reported rather than silently ignored.
func FromEnv(opts Options) (Options, error) {
	var firstErr error
	boolVar := func(name string, dst *bool) {
		v, ok := os.LookupEnv(name)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("config: %s=%q: %w", name, v, err)
			return
		}
		*dst = b
	}
	intVar := func(name string, dst *int) {
		v, ok := os.LookupEnv(name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("config: %s=%q: %w", name, v, err)
			return
		}
		*dst = n
	}

	boolVar(EnvEnabled, &opts.Enabled)
	intVar(EnvSampleRate, &opts.SampleRate)
	intVar(EnvMaxAllocations, &opts.MaxSimultaneousAllocations)
	boolVar(EnvPerfectRightAlign, &opts.PerfectlyRightAlign)
	boolVar(EnvRecoverable, &opts.Recoverable)
	boolVar(EnvInstallForkHandlers, &opts.InstallForkHandlers)

	if firstErr != nil {
		return opts, firstErr
	}
	return opts, opts.Validate()
}
