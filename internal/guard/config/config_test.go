package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefault verifies the stock configuration is valid and enabled.
func TestDefault(t *testing.T) {
	opts := Default()
	if err := opts.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if !opts.Enabled {
		t.Error("Default() is disabled")
	}
	if opts.SampleRate != 5000 {
		t.Errorf("Default SampleRate = %d, want 5000", opts.SampleRate)
	}
	if opts.MaxSimultaneousAllocations != 16 {
		t.Errorf("Default MaxSimultaneousAllocations = %d, want 16", opts.MaxSimultaneousAllocations)
	}
}

// TestValidate covers the range checks.
func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"default", func(*Options) {}, false},
		{"zero sample rate", func(o *Options) { o.SampleRate = 0 }, true},
		{"negative sample rate", func(o *Options) { o.SampleRate = -5 }, true},
		{"huge sample rate", func(o *Options) { o.SampleRate = 1 << 31 }, true},
		{"zero slots", func(o *Options) { o.MaxSimultaneousAllocations = 0 }, true},
		{"disabled skips checks", func(o *Options) { o.Enabled = false; o.SampleRate = 0 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := Default()
			tc.mutate(&opts)
			err := opts.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

// TestLoadFile verifies YAML loading layered over defaults.
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gwpasan.yaml")
	content := []byte("sample_rate: 250\nrecoverable: true\nperfectly_right_align: true\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if opts.SampleRate != 250 {
		t.Errorf("SampleRate = %d, want 250", opts.SampleRate)
	}
	if !opts.Recoverable {
		t.Error("Recoverable not set from file")
	}
	if !opts.PerfectlyRightAlign {
		t.Error("PerfectlyRightAlign not set from file")
	}
	// Untouched fields keep defaults.
	if opts.MaxSimultaneousAllocations != 16 {
		t.Errorf("MaxSimultaneousAllocations = %d, want default 16", opts.MaxSimultaneousAllocations)
	}
}

// TestLoadFileInvalid verifies that a file failing validation is
// rejected.
func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gwpasan.yaml")
	if err := os.WriteFile(path, []byte("sample_rate: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted a negative sample rate")
	}
}

// TestLoadFileMissing verifies the error path for absent files.
func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadFile succeeded on a missing file")
	}
}

// TestFromEnv verifies environment overlays and malformed-value errors.
func TestFromEnv(t *testing.T) {
	t.Setenv(EnvSampleRate, "77")
	t.Setenv(EnvRecoverable, "true")

	opts, err := FromEnv(Default())
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if opts.SampleRate != 77 {
		t.Errorf("SampleRate = %d, want 77", opts.SampleRate)
	}
	if !opts.Recoverable {
		t.Error("Recoverable not set from environment")
	}

	t.Setenv(EnvSampleRate, "not-a-number")
	if _, err := FromEnv(Default()); err == nil {
		t.Fatal("FromEnv accepted a malformed integer")
	}
}
