package training

// Learning-rate plateau control defaults. These mirror the values the
// training loop has always run with and are surfaced as configuration
// defaults rather than hard-coded behavior.
const (
	// DefaultLRFactor is the multiplicative learning-rate reduction
	// applied when the monitored metric plateaus.
	DefaultLRFactor = 0.8

	// DefaultLRPatience is the number of evaluations without improvement
	// tolerated before the learning rate is reduced.
	DefaultLRPatience = 16
)

// ReduceLROnPlateau reduces the learning rate by a fixed factor once a
// monitored metric has stopped improving for a patience window. State is
// CPU-side only; the scheduler never touches model parameters.
type ReduceLROnPlateau struct {
	Factor    float64 // Factor by which the learning rate is reduced
	Patience  int     // Evaluations with no improvement before reduction
	Threshold float64 // Minimum change that counts as an improvement
	Mode      string  // "min" or "max"

	bestMetric  float64
	badEpochs   int
	currentLR   float64
	initialized bool
}

// NewReduceLROnPlateau creates a plateau-based scheduler.
func NewReduceLROnPlateau(factor float64, patience int, threshold float64, mode string) *ReduceLROnPlateau {
	if factor <= 0 || factor >= 1 {
		factor = DefaultLRFactor
	}
	if patience <= 0 {
		patience = DefaultLRPatience
	}
	if threshold < 0 {
		threshold = 1e-4
	}
	if mode != "min" && mode != "max" {
		mode = "max"
	}
	return &ReduceLROnPlateau{
		Factor:    factor,
		Patience:  patience,
		Threshold: threshold,
		Mode:      mode,
	}
}

// Step feeds one metric observation and returns the learning rate to use
// next. The first observation initializes the scheduler without reducing.
func (s *ReduceLROnPlateau) Step(metric float64, currentLR float64) float64 {
	if !s.initialized {
		s.bestMetric = metric
		s.currentLR = currentLR
		s.initialized = true
		return currentLR
	}

	// Track the caller's value so an externally adjusted learning rate is
	// never overwritten by a stale one.
	s.currentLR = currentLR

	improved := false
	if s.Mode == "min" {
		improved = metric < s.bestMetric-s.Threshold
	} else {
		improved = metric > s.bestMetric+s.Threshold
	}

	if improved {
		s.bestMetric = metric
		s.badEpochs = 0
	} else {
		s.badEpochs++
		if s.badEpochs >= s.Patience {
			s.currentLR *= s.Factor
			s.badEpochs = 0
		}
	}
	return s.currentLR
}
