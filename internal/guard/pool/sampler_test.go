package pool

import (
	"testing"

	"github.com/kolkov/gwpasan/internal/guard/config"
	"github.com/kolkov/gwpasan/internal/guard/goroutine"
)

// TestShouldSampleZeroPool verifies the pre-init contract: a
// zero-initialized pool draws a near-maximal sample counter and answers
// false for a very long time without any init check.
//
// The full property is about 2^31 consecutive false answers; iterating that
// far is not viable in a unit test, so this runs a bounded prefix and
// then inspects the drawn counter directly.
func TestShouldSampleZeroPool(t *testing.T) {
	goroutine.ResetForTesting()

	var p GuardedPool
	for i := 0; i < 1_000_000; i++ {
		if p.ShouldSample() {
			t.Fatalf("zero pool sampled at call %d", i+1)
		}
	}

	// The counter was drawn from the underflowed modulus; after the
	// 31-bit truncation it must still be close to 2^31.
	if c := goroutine.Current().NextSampleCounter; c < 1<<30 {
		t.Fatalf("zero-pool sample counter = %d, want >= 2^30", c)
	}
}

// TestShouldSampleRateOne verifies that SampleRate=1 samples every
// allocation: the counter is always drawn as exactly 1.
func TestShouldSampleRateOne(t *testing.T) {
	goroutine.ResetForTesting()

	p := newTestPool(t, func(o *config.Options) { o.SampleRate = 1 })
	defer p.UninitTestOnly()

	for i := 0; i < 1000; i++ {
		if !p.ShouldSample() {
			t.Fatalf("SampleRate=1 pool skipped allocation %d", i+1)
		}
	}
}

// TestShouldSampleFrequency bounds the sampling frequency for a larger
// rate. The counter is uniform in [1, SampleRate], so over many calls
// the observed frequency is near 2/SampleRate.
func TestShouldSampleFrequency(t *testing.T) {
	goroutine.ResetForTesting()

	const rate = 100
	p := newTestPool(t, func(o *config.Options) { o.SampleRate = rate })
	defer p.UninitTestOnly()

	const calls = 200_000
	samples := 0
	for i := 0; i < calls; i++ {
		if p.ShouldSample() {
			samples++
		}
	}

	// Expected ~= calls / (rate/2) = 4000. Allow generous slack: the
	// test guards against "never samples" and "samples constantly", not
	// the exact distribution.
	if samples < 1000 || samples > 16000 {
		t.Fatalf("SampleRate=%d produced %d samples in %d calls", rate, samples, calls)
	}
}

// TestShouldSampleStopped verifies that Stop clamps the gate off
// permanently.
func TestShouldSampleStopped(t *testing.T) {
	goroutine.ResetForTesting()

	p := newTestPool(t, func(o *config.Options) { o.SampleRate = 1 })
	defer p.UninitTestOnly()

	if !p.ShouldSample() {
		t.Fatal("pool did not sample before Stop")
	}
	p.Stop()
	for i := 0; i < 1000; i++ {
		if p.ShouldSample() {
			t.Fatalf("stopped pool sampled at call %d", i+1)
		}
	}
}
