package training

import (
	"compress/gzip"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/jorenretel/selene/model"
	"github.com/jorenretel/selene/optimizer"
)

const (
	checkpointFilename = "checkpoint.json"
	bestModelFilename  = "best_model.json"
)

// Config is the training configuration surface.
type Config struct {
	BatchSize          int
	MaxSteps           int
	ReportInterval     int // Steps between validation passes
	CheckpointInterval int // Steps between unconditional checkpoints; defaults to ReportInterval
	OutputDir          string

	NValidationSamples int // Cap on validation examples; zero means all
	NTestSamples       int // Cap on test examples; zero means all
	MinPositives       int // Minimum positive targets per feature for ranking metrics

	LRFactor   float64 // Plateau learning-rate reduction factor
	LRPatience int     // Plateau patience window

	CPUThreads     int
	UseAccelerator bool // Static device placement flag; recorded at construction
	DataParallel   bool

	ResumeCheckpoint string // Optional checkpoint path to resume from
	LoggingVerbosity int
}

func (c *Config) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be positive, got %d", c.MaxSteps)
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("report interval must be positive, got %d", c.ReportInterval)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory must be set")
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = c.ReportInterval
	}
	if c.LRFactor <= 0 || c.LRFactor >= 1 {
		c.LRFactor = DefaultLRFactor
	}
	if c.LRPatience <= 0 {
		c.LRPatience = DefaultLRPatience
	}
	return nil
}

// ModelController owns the optimize-evaluate-checkpoint loop: it pulls
// batches from the sampler, drives the optimizer, periodically validates
// against a fixed held-out set, adapts the learning rate, and persists
// checkpoints. Model parameters are mutated exclusively by the
// controller's optimizer step.
type ModelController struct {
	model     model.Model
	sampler   Sampler
	criterion model.Loss
	opt       optimizer.Optimizer
	cfg       Config

	run    *Run
	logger *logrus.Logger

	validationBatches []*Batch
	validationTargets *mat.Dense
	validationMetrics *PerformanceMetrics

	testBatches []*Batch
	testTargets *mat.Dense
	testMetrics *PerformanceMetrics

	startStep int
	minLoss   float64

	trainingLosses   []float64
	validationLosses []float64
}

// NewModelController assembles a controller. The validation set (and test
// set, when the sampler has one) is built once here and excluded from
// training sampling; the run directory and logger are created; and, when
// configured, a prior checkpoint is restored so training resumes at the
// next step with optimizer state intact.
func NewModelController(m model.Model, sampler Sampler, criterion model.Loss, opt optimizer.Optimizer, cfg Config) (*ModelController, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.CPUThreads > 0 {
		runtime.GOMAXPROCS(cfg.CPUThreads)
	}

	run, err := NewRun(cfg.OutputDir, cfg.LoggingVerbosity)
	if err != nil {
		return nil, err
	}
	logger := run.Logger

	if cfg.UseAccelerator || cfg.DataParallel {
		logger.WithFields(logrus.Fields{
			"use_accelerator": cfg.UseAccelerator,
			"data_parallel":   cfg.DataParallel,
		}).Warn("accelerator flags recorded, but this numeric backend runs on CPU only")
	}

	c := &ModelController{
		model:     m,
		sampler:   sampler,
		criterion: criterion,
		opt:       opt,
		cfg:       cfg,
		run:       run,
		logger:    logger,
		minLoss:   math.Inf(1),
	}

	features := sampler.FeatureNames()

	t0 := time.Now()
	c.validationBatches, c.validationTargets, err = sampler.ValidationSet(cfg.BatchSize, cfg.NValidationSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble validation set: %w", err)
	}
	rows, _ := c.validationTargets.Dims()
	logger.WithFields(logrus.Fields{
		"examples": humanize.Comma(int64(rows)),
		"batches":  len(c.validationBatches),
		"elapsed":  time.Since(t0).String(),
	}).Info("loaded validation set")
	c.validationMetrics = NewPerformanceMetrics(features, cfg.MinPositives)

	if sampler.HasTest() {
		t0 = time.Now()
		c.testBatches, c.testTargets, err = sampler.TestSet(cfg.BatchSize, cfg.NTestSamples)
		if err != nil {
			return nil, fmt.Errorf("failed to assemble test set: %w", err)
		}
		rows, _ = c.testTargets.Dims()
		logger.WithFields(logrus.Fields{
			"examples": humanize.Comma(int64(rows)),
			"batches":  len(c.testBatches),
			"elapsed":  time.Since(t0).String(),
		}).Info("loaded test set")
		c.testMetrics = NewPerformanceMetrics(features, cfg.MinPositives)
	}

	if cfg.ResumeCheckpoint != "" {
		state, err := c.resumeFromCheckpoint(cfg.ResumeCheckpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to resume from checkpoint: %w", err)
		}
		c.startStep = state.Step + 1
		c.minLoss = state.MinLoss
		logger.WithFields(logrus.Fields{
			"step":     state.Step,
			"min_loss": state.MinLoss,
		}).Info("resuming from checkpoint")
	}

	return c, nil
}

// RunDir returns the run's output directory.
func (c *ModelController) RunDir() string {
	return c.run.Dir
}

// Close releases the run's resources.
func (c *ModelController) Close() error {
	return c.run.Close()
}

// TrainAndValidate runs the training loop from the start step (zero, or
// one past a resumed checkpoint's step) through max steps.
func (c *ModelController) TrainAndValidate() error {
	c.logger.WithFields(logrus.Fields{
		"max_steps":  c.cfg.MaxSteps,
		"batch_size": c.cfg.BatchSize,
	}).Info("starting training")

	scheduler := NewReduceLROnPlateau(c.cfg.LRFactor, c.cfg.LRPatience, 1e-4, "max")

	for step := c.startStep; step < c.cfg.MaxSteps; step++ {
		trainLoss, err := c.trainStep()
		if err != nil {
			return fmt.Errorf("training step %d failed: %w", step, err)
		}
		c.trainingLosses = append(c.trainingLosses, trainLoss)

		if step%c.cfg.ReportInterval == 0 {
			scores, err := c.Validate()
			if err != nil {
				return fmt.Errorf("validation at step %d failed: %w", step, err)
			}
			validationLoss := scores["loss"]
			c.validationLosses = append(c.validationLosses, validationLoss)

			if rocAUC, ok := scores["roc_auc"]; ok && !math.IsNaN(rocAUC) {
				// Round to 3 decimals so floating noise cannot oscillate
				// the plateau detector.
				smoothed := math.Ceil(rocAUC*1000.0) / 1000.0
				newLR := scheduler.Step(smoothed, c.opt.LearningRate())
				if newLR != c.opt.LearningRate() {
					c.logger.WithFields(logrus.Fields{
						"step": step,
						"lr":   newLR,
					}).Info("reducing learning rate on plateau")
					c.opt.SetLearningRate(newLR)
				}
			}

			isBest := validationLoss < c.minLoss
			if isBest {
				c.minLoss = validationLoss
			}
			if err := c.saveCheckpoint(step, isBest); err != nil {
				return err
			}
			c.logger.WithFields(logrus.Fields{
				"step":            step,
				"training_loss":   trainLoss,
				"validation_loss": validationLoss,
			}).Info("validation stats")
		}

		if step%c.cfg.CheckpointInterval == 0 {
			if err := c.saveCheckpoint(step, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// trainStep samples one batch and performs a full
// forward/loss/backward/optimizer-step cycle.
func (c *ModelController) trainStep() (float64, error) {
	t0 := time.Now()
	batch, err := c.sampler.Sample(c.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to sample training batch: %w", err)
	}
	c.logger.WithFields(logrus.Fields{
		"examples": c.cfg.BatchSize,
		"elapsed":  time.Since(t0).String(),
	}).Debug("sampled training batch")

	c.model.ZeroGrad()

	predictions, err := c.model.Forward(batch.Sequences)
	if err != nil {
		return 0, fmt.Errorf("forward pass failed: %w", err)
	}
	loss, err := c.criterion.Forward(predictions, batch.Targets)
	if err != nil {
		return 0, fmt.Errorf("loss computation failed: %w", err)
	}
	gradOutput, err := c.criterion.Backward(predictions, batch.Targets)
	if err != nil {
		return 0, fmt.Errorf("loss gradient failed: %w", err)
	}
	if err := c.model.Backward(gradOutput); err != nil {
		return 0, fmt.Errorf("backward pass failed: %w", err)
	}
	if err := c.opt.Step(c.model.Parameters()); err != nil {
		return 0, fmt.Errorf("optimizer step failed: %w", err)
	}
	return loss, nil
}

// evaluateOn runs the model in inference mode over a fixed batch set and
// returns the averaged loss and the stacked prediction matrix.
func (c *ModelController) evaluateOn(batches []*Batch) (float64, *mat.Dense, error) {
	var totalLoss float64
	var predictionBlocks []*mat.Dense
	var totalRows, cols int

	for i, batch := range batches {
		predictions, err := c.model.Forward(batch.Sequences)
		if err != nil {
			return 0, nil, fmt.Errorf("evaluation forward pass failed on batch %d: %w", i, err)
		}
		loss, err := c.criterion.Forward(predictions, batch.Targets)
		if err != nil {
			return 0, nil, fmt.Errorf("evaluation loss failed on batch %d: %w", i, err)
		}
		totalLoss += loss
		predictionBlocks = append(predictionBlocks, predictions)
		r, pc := predictions.Dims()
		totalRows += r
		cols = pc
	}

	all := mat.NewDense(totalRows, cols, nil)
	offset := 0
	for _, block := range predictionBlocks {
		r, _ := block.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < cols; j++ {
				all.Set(offset+i, j, block.At(i, j))
			}
		}
		offset += r
	}
	return totalLoss / float64(len(batches)), all, nil
}

// Validate evaluates the model over the held-out validation set and
// returns the averaged loss and ranking metrics.
func (c *ModelController) Validate() (map[string]float64, error) {
	avgLoss, predictions, err := c.evaluateOn(c.validationBatches)
	if err != nil {
		return nil, err
	}
	scores, err := c.validationMetrics.Update(c.validationTargets, predictions)
	if err != nil {
		return nil, err
	}
	for name, score := range scores {
		c.logger.WithFields(logrus.Fields{"metric": name, "score": score}).Debug("validation metric")
	}
	scores["loss"] = avgLoss
	return scores, nil
}

// Evaluate runs the model over the test set, persists the raw prediction
// matrix and the per-feature score report to the run directory, and
// returns the averaged scores.
func (c *ModelController) Evaluate() (map[string]float64, error) {
	if c.testMetrics == nil {
		return nil, fmt.Errorf("sampler has no test partition to evaluate")
	}

	avgLoss, predictions, err := c.evaluateOn(c.testBatches)
	if err != nil {
		return nil, err
	}
	scores, err := c.testMetrics.Update(c.testTargets, predictions)
	if err != nil {
		return nil, err
	}
	scores["loss"] = avgLoss

	predsPath := filepath.Join(c.run.Dir, "test_predictions.tsv.gz")
	if err := writeCompressedMatrix(predsPath, predictions); err != nil {
		return nil, err
	}

	perfPath := filepath.Join(c.run.Dir, "test_performance.txt")
	if err := c.testMetrics.WriteFeatureScoresToFile(perfPath); err != nil {
		return nil, err
	}

	for name, score := range scores {
		c.logger.WithFields(logrus.Fields{"metric": name, "score": score}).Info("test metric")
	}
	return scores, nil
}

// WriteDatasetsToFile dumps the sampler's partitions under the run's data
// directory.
func (c *ModelController) WriteDatasetsToFile() error {
	return c.sampler.SaveDatasetsToFile(filepath.Join(c.run.Dir, "data"))
}

// writeCompressedMatrix writes a matrix as gzip-compressed tab-delimited
// text.
func writeCompressedMatrix(path string, m *mat.Dense) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		fields := make([]string, cols)
		for j := 0; j < cols; j++ {
			fields[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if _, err := gz.Write([]byte(strings.Join(fields, "\t") + "\n")); err != nil {
			return fmt.Errorf("failed to write predictions: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish compressed predictions: %w", err)
	}
	return nil
}
