package backoff

import (
	"testing"
	"time"
)

func TestExponentialJitterGrowth(t *testing.T) {
	s := ExponentialJitter{}
	initial := 100 * time.Millisecond
	max := 10 * time.Second

	prev := time.Duration(0)
	for attempt := 0; attempt < 5; attempt++ {
		d := s.Calculate(attempt, initial, max, 2.0, 0)
		want := time.Duration(float64(initial) * pow(2.0, attempt))
		if d != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, d, want)
		}
		if d < prev {
			t.Errorf("attempt %d: backoff shrank from %v to %v", attempt, prev, d)
		}
		prev = d
	}
}

func TestExponentialJitterCapsAtMax(t *testing.T) {
	s := ExponentialJitter{}
	initial := 100 * time.Millisecond
	max := time.Second

	for _, attempt := range []int{10, 30, 31, 1000} {
		d := s.Calculate(attempt, initial, max, 2.0, 0.5)
		if d <= 0 || d > max {
			t.Errorf("attempt %d: %v outside (0, %v]", attempt, d, max)
		}
	}
	if d := s.Calculate(-5, initial, max, 2.0, 0); d != initial {
		t.Errorf("negative attempt should clamp to the initial delay, got %v", d)
	}
}

func TestExponentialJitterRange(t *testing.T) {
	s := ExponentialJitter{}
	base := 100 * time.Millisecond

	for i := 0; i < 100; i++ {
		d := s.Calculate(0, base, time.Minute, 2.0, 0.5)
		if d < base || d > base+base/2 {
			t.Fatalf("jitter 0.5: %v outside [%v, %v]", d, base, base+base/2)
		}
	}
}

func TestJitterFactorClamped(t *testing.T) {
	s := ExponentialJitter{}
	base := 100 * time.Millisecond

	if d := s.Calculate(0, base, time.Minute, 2.0, -3); d != base {
		t.Errorf("negative jitter should behave like zero, got %v", d)
	}
	for i := 0; i < 100; i++ {
		d := s.Calculate(0, base, time.Minute, 2.0, 9)
		if d < base || d > 2*base {
			t.Fatalf("oversized jitter should clamp to 1.0: %v outside [%v, %v]", d, base, 2*base)
		}
	}
}

func TestDecorrelatedJitterBounds(t *testing.T) {
	s := DecorrelatedJitter{}
	initial := 50 * time.Millisecond
	max := 2 * time.Second

	if d := s.Calculate(0, initial, max, 0, 0); d != initial {
		t.Errorf("attempt 0 should return the initial delay, got %v", d)
	}
	for attempt := 1; attempt <= 12; attempt++ {
		for i := 0; i < 50; i++ {
			d := s.Calculate(attempt, initial, max, 0, 0)
			if d < initial || d > max {
				t.Fatalf("attempt %d: %v outside [%v, %v]", attempt, d, initial, max)
			}
		}
	}
}
