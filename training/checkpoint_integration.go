package training

import (
	"fmt"
	"path/filepath"

	"github.com/jorenretel/selene/checkpoints"
)

// saveCheckpoint persists the model, optimizer, and training state to the
// run directory. When isBest is set, the checkpoint file is additionally
// copied to the best-model file, byte for byte.
func (c *ModelController) saveCheckpoint(step int, isBest bool) error {
	optState, err := c.opt.GetState()
	if err != nil {
		return fmt.Errorf("failed to extract optimizer state: %w", err)
	}

	checkpoint := &checkpoints.Checkpoint{
		Arch:    c.model.Arch(),
		Weights: checkpoints.ExtractWeights(c.model.Parameters()),
		TrainingState: checkpoints.TrainingState{
			Step:         step,
			MinLoss:      c.minLoss,
			LearningRate: c.opt.LearningRate(),
		},
		OptimizerState: optState,
		Metadata: checkpoints.CheckpointMetadata{
			RunID: c.run.ID,
		},
	}

	path := filepath.Join(c.run.Dir, checkpointFilename)
	c.logger.WithField("step", step).Info("saving model state to file")
	if err := checkpoints.Save(checkpoint, path); err != nil {
		return err
	}

	if isBest {
		bestPath := filepath.Join(c.run.Dir, bestModelFilename)
		if err := checkpoints.CopyFile(path, bestPath); err != nil {
			return err
		}
	}
	return nil
}

// resumeFromCheckpoint loads a prior checkpoint into the controller's
// model and optimizer and returns its training state.
func (c *ModelController) resumeFromCheckpoint(path string) (*checkpoints.TrainingState, error) {
	checkpoint, err := checkpoints.Load(path)
	if err != nil {
		return nil, err
	}
	if checkpoint.Arch != c.model.Arch() {
		return nil, fmt.Errorf("checkpoint architecture %q does not match model %q",
			checkpoint.Arch, c.model.Arch())
	}
	if err := checkpoints.LoadWeights(checkpoint.Weights, c.model.Parameters()); err != nil {
		return nil, err
	}
	if checkpoint.OptimizerState != nil {
		if err := c.opt.LoadState(checkpoint.OptimizerState); err != nil {
			return nil, err
		}
	}
	c.opt.SetLearningRate(checkpoint.TrainingState.LearningRate)
	return &checkpoint.TrainingState, nil
}
