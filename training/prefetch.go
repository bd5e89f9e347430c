package training

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// PrefetchSampler wraps a Sampler and assembles training batches in a
// background worker so sequence encoding overlaps with the optimization
// step. Evaluation-set calls pass through to the wrapped sampler untouched.
type PrefetchSampler struct {
	inner Sampler

	batchSize int
	batches   chan *Batch
	errs      chan error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	started   bool
}

// PrefetchConfig controls background batch assembly.
type PrefetchConfig struct {
	BatchSize     int
	PrefetchDepth int // Batches kept ready ahead of the consumer (default: 3)
}

// NewPrefetchSampler creates a prefetching wrapper around a sampler. The
// background worker starts on the first Sample call.
func NewPrefetchSampler(inner Sampler, cfg PrefetchConfig) (*PrefetchSampler, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner sampler cannot be nil")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.PrefetchDepth <= 0 {
		cfg.PrefetchDepth = 3
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &PrefetchSampler{
		inner:     inner,
		batchSize: cfg.BatchSize,
		batches:   make(chan *Batch, cfg.PrefetchDepth),
		errs:      make(chan error, 1),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (p *PrefetchSampler) start() {
	p.started = true
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(p.batches)
		for {
			batch, err := p.inner.Sample(p.batchSize)
			if err != nil {
				select {
				case p.errs <- err:
				case <-p.ctx.Done():
				}
				return
			}
			select {
			case p.batches <- batch:
			case <-p.ctx.Done():
				return
			}
		}
	}()
}

// Sample returns the next prefetched batch. The batch size is fixed at
// construction; a different size is rejected rather than silently ignored.
func (p *PrefetchSampler) Sample(batchSize int) (*Batch, error) {
	if batchSize != p.batchSize {
		return nil, fmt.Errorf("prefetch sampler assembles batches of %d, got request for %d",
			p.batchSize, batchSize)
	}
	p.startOnce.Do(p.start)

	select {
	case err := <-p.errs:
		return nil, err
	case batch, ok := <-p.batches:
		if !ok {
			select {
			case err := <-p.errs:
				return nil, err
			default:
				return nil, fmt.Errorf("prefetch sampler is stopped")
			}
		}
		return batch, nil
	case <-p.ctx.Done():
		return nil, p.ctx.Err()
	}
}

// Stop shuts down the background worker and drains its buffer. The wrapped
// sampler remains usable afterwards. Safe to call whether or not a Sample
// call ever started the worker.
func (p *PrefetchSampler) Stop() {
	p.cancel()
	// Claim the once so a Sample arriving after shutdown cannot start a
	// worker; started then reliably reports whether one exists to drain.
	p.startOnce.Do(func() {})
	if !p.started {
		return
	}
	for range p.batches {
	}
	p.wg.Wait()
}

// ValidationSet passes through to the wrapped sampler.
func (p *PrefetchSampler) ValidationSet(batchSize, maxSamples int) ([]*Batch, *mat.Dense, error) {
	return p.inner.ValidationSet(batchSize, maxSamples)
}

// HasTest passes through to the wrapped sampler.
func (p *PrefetchSampler) HasTest() bool {
	return p.inner.HasTest()
}

// TestSet passes through to the wrapped sampler.
func (p *PrefetchSampler) TestSet(batchSize, maxSamples int) ([]*Batch, *mat.Dense, error) {
	return p.inner.TestSet(batchSize, maxSamples)
}

// FeatureNames passes through to the wrapped sampler.
func (p *PrefetchSampler) FeatureNames() []string {
	return p.inner.FeatureNames()
}

// SaveDatasetsToFile passes through to the wrapped sampler.
func (p *PrefetchSampler) SaveDatasetsToFile(dir string) error {
	return p.inner.SaveDatasetsToFile(dir)
}
