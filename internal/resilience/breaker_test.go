package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	b := NewBreaker(3, time.Hour)

	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("call %d rejected while closed: %v", i, err)
		}
		b.Report("example.com", errBoom)
	}

	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow after %d failures = %v, want ErrOpen", 3, err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b := NewBreaker(3, time.Hour)

	for i := 0; i < 2; i++ {
		_ = b.Allow()
		b.Report("example.com", errBoom)
	}
	_ = b.Allow()
	b.Report("example.com", nil)

	// Two more failures should not trip a threshold of three.
	for i := 0; i < 2; i++ {
		_ = b.Allow()
		b.Report("example.com", errBoom)
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow = %v, want nil after reset", err)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()
	b := NewBreaker(1, 10*time.Millisecond)

	_ = b.Allow()
	b.Report("example.com", errBoom)
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("breaker should be open, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	// One probe is admitted; a second concurrent caller is not.
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("second probe admitted, want ErrOpen")
	}

	// Successful probe closes the breaker.
	b.Report("example.com", nil)
	if err := b.Allow(); err != nil {
		t.Errorf("Allow after successful probe = %v, want nil", err)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()
	b := NewBreaker(1, 10*time.Millisecond)

	_ = b.Allow()
	b.Report("example.com", errBoom)
	time.Sleep(20 * time.Millisecond)

	_ = b.Allow() // probe
	b.Report("example.com", errBoom)

	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow after failed probe = %v, want ErrOpen", err)
	}
}

func TestHostSet_SharesBreakerPerHost(t *testing.T) {
	t.Parallel()
	hs := NewHostSet(2, time.Hour)

	a := hs.For("API.example.com")
	b := hs.For("api.example.com")
	if a != b {
		t.Error("host lookup should be case-insensitive")
	}

	c := hs.For("other.example.com")
	if a == c {
		t.Error("distinct hosts should get distinct breakers")
	}
	if hs.Len() != 2 {
		t.Errorf("Len = %d, want 2", hs.Len())
	}

	// Tripping one host's breaker leaves the other closed.
	for i := 0; i < 2; i++ {
		_ = a.Allow()
		a.Report("api.example.com", errBoom)
	}
	if err := a.Allow(); !errors.Is(err, ErrOpen) {
		t.Error("tripped breaker should reject")
	}
	if err := c.Allow(); err != nil {
		t.Errorf("unrelated host rejected: %v", err)
	}
}
