package training

import (
	"math"
	"testing"
)

func TestReduceLROnPlateauHoldsWhileImproving(t *testing.T) {
	s := NewReduceLROnPlateau(0.5, 3, 1e-4, "max")

	lr := 0.1
	for _, metric := range []float64{0.5, 0.6, 0.7, 0.8} {
		lr = s.Step(metric, lr)
		if lr != 0.1 {
			t.Fatalf("learning rate reduced while metric was improving: %f", lr)
		}
	}
}

func TestReduceLROnPlateauReducesAfterPatience(t *testing.T) {
	s := NewReduceLROnPlateau(0.5, 3, 1e-4, "max")

	lr := s.Step(0.8, 0.1)
	// Three stagnant observations exhaust the patience.
	lr = s.Step(0.8, lr)
	lr = s.Step(0.79, lr)
	if lr != 0.1 {
		t.Fatalf("reduced before patience was exhausted: %f", lr)
	}
	lr = s.Step(0.8, lr)
	if math.Abs(lr-0.05) > 1e-12 {
		t.Fatalf("expected reduction to 0.05, got %f", lr)
	}

	// The counter resets after a reduction; the next stagnant observation
	// must not reduce again immediately.
	lr = s.Step(0.8, lr)
	if math.Abs(lr-0.05) > 1e-12 {
		t.Errorf("reduced again without a fresh patience window: %f", lr)
	}
}

func TestReduceLROnPlateauImprovementResetsCounter(t *testing.T) {
	s := NewReduceLROnPlateau(0.5, 2, 1e-4, "max")

	lr := s.Step(0.5, 0.1)
	lr = s.Step(0.5, lr)  // bad 1
	lr = s.Step(0.6, lr)  // improvement resets
	lr = s.Step(0.6, lr)  // bad 1
	if lr != 0.1 {
		t.Errorf("expected no reduction after counter reset, got %f", lr)
	}
}

func TestReduceLROnPlateauMinMode(t *testing.T) {
	s := NewReduceLROnPlateau(0.5, 2, 1e-4, "min")

	lr := s.Step(1.0, 0.1)
	lr = s.Step(0.5, lr) // improvement in min mode
	lr = s.Step(0.5, lr) // bad 1
	lr = s.Step(0.5, lr) // bad 2, reduce
	if math.Abs(lr-0.05) > 1e-12 {
		t.Errorf("expected reduction to 0.05 in min mode, got %f", lr)
	}
}

func TestReduceLROnPlateauThreshold(t *testing.T) {
	s := NewReduceLROnPlateau(0.5, 1, 0.01, "max")

	lr := s.Step(0.5, 0.1)
	// Inside the threshold band: counts as stagnation, patience 1 reduces.
	lr = s.Step(0.505, lr)
	if math.Abs(lr-0.05) > 1e-12 {
		t.Errorf("sub-threshold improvement should count as a plateau, got %f", lr)
	}
}

func TestReduceLROnPlateauTracksExternalAdjustment(t *testing.T) {
	s := NewReduceLROnPlateau(0.5, 2, 1e-4, "max")

	lr := s.Step(0.8, 0.1)
	if lr != 0.1 {
		t.Fatalf("unexpected initial learning rate %f", lr)
	}

	// The caller lowered the rate out of band; the scheduler must carry
	// that value forward rather than its stale one.
	lr = s.Step(0.8, 0.02)
	if lr != 0.02 {
		t.Fatalf("externally adjusted rate was overwritten: %f", lr)
	}

	// A reduction now applies to the adjusted value.
	lr = s.Step(0.8, lr)
	if math.Abs(lr-0.01) > 1e-12 {
		t.Errorf("expected reduction from 0.02 to 0.01, got %f", lr)
	}
}

func TestNewReduceLROnPlateauDefaults(t *testing.T) {
	s := NewReduceLROnPlateau(0, 0, -1, "bogus")
	if s.Factor != DefaultLRFactor {
		t.Errorf("expected default factor %f, got %f", DefaultLRFactor, s.Factor)
	}
	if s.Patience != DefaultLRPatience {
		t.Errorf("expected default patience %d, got %d", DefaultLRPatience, s.Patience)
	}
	if s.Threshold != 1e-4 {
		t.Errorf("expected default threshold 1e-4, got %g", s.Threshold)
	}
	if s.Mode != "max" {
		t.Errorf("expected default mode max, got %q", s.Mode)
	}
}
