package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jorenretel/selene/model"
	"github.com/jorenretel/selene/optimizer"
	"github.com/jorenretel/selene/training"
)

var trainConfigPath string

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a model from a YAML configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrain(trainConfigPath)
	},
}

func init() {
	trainCmd.Flags().StringVarP(&trainConfigPath, "config", "c", "", "path to the training configuration file")
	trainCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(configPath string) error {
	v := viper.New()
	v.SetConfigFile(configPath)

	v.SetDefault("loss", "bce")
	v.SetDefault("optimizer.name", "sgd")
	v.SetDefault("optimizer.lr", 0.01)
	v.SetDefault("sampler.validation_fraction", 0.1)
	v.SetDefault("sampler.test_fraction", 0.1)
	v.SetDefault("logging_verbosity", 1)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read training configuration: %w", err)
	}

	sequences, targets, features, err := training.LoadDataset(v.GetString("dataset"))
	if err != nil {
		return err
	}
	_, cols := targets.Dims()

	sampler, err := training.NewSliceSampler(sequences, targets, features, training.SliceSamplerConfig{
		ValidationFraction: v.GetFloat64("sampler.validation_fraction"),
		TestFraction:       v.GetFloat64("sampler.test_fraction"),
		Seed:               v.GetInt64("sampler.seed"),
	})
	if err != nil {
		return err
	}

	var trainSource training.Sampler = sampler
	if depth := v.GetInt("prefetch_batches"); depth > 0 {
		prefetch, err := training.NewPrefetchSampler(sampler, training.PrefetchConfig{
			BatchSize:     v.GetInt("batch_size"),
			PrefetchDepth: depth,
		})
		if err != nil {
			return err
		}
		defer prefetch.Stop()
		trainSource = prefetch
	}

	m, err := model.New(v.GetString("model"), len(sequences[0]), cols)
	if err != nil {
		return err
	}

	criterion, err := model.NewLoss(v.GetString("loss"))
	if err != nil {
		return err
	}

	optimizerArgs := make(map[string]float64)
	for key, value := range v.GetStringMap("optimizer.args") {
		f, err := toFloat(value)
		if err != nil {
			return fmt.Errorf("optimizer argument %q: %w", key, err)
		}
		optimizerArgs[key] = f
	}
	opt, err := optimizer.New(v.GetString("optimizer.name"), v.GetFloat64("optimizer.lr"), optimizerArgs)
	if err != nil {
		return err
	}

	controller, err := training.NewModelController(m, trainSource, criterion, opt, training.Config{
		BatchSize:          v.GetInt("batch_size"),
		MaxSteps:           v.GetInt("max_steps"),
		ReportInterval:     v.GetInt("report_interval"),
		CheckpointInterval: v.GetInt("checkpoint_interval"),
		OutputDir:          v.GetString("output_dir"),
		NValidationSamples: v.GetInt("n_validation_samples"),
		NTestSamples:       v.GetInt("n_test_samples"),
		MinPositives:       v.GetInt("report_gt_feature_n_positives"),
		LRFactor:           v.GetFloat64("lr_factor"),
		LRPatience:         v.GetInt("lr_patience"),
		CPUThreads:         v.GetInt("cpu_threads"),
		UseAccelerator:     v.GetBool("use_accelerator"),
		DataParallel:       v.GetBool("data_parallel"),
		ResumeCheckpoint:   v.GetString("resume_checkpoint"),
		LoggingVerbosity:   v.GetInt("logging_verbosity"),
	})
	if err != nil {
		return err
	}
	defer controller.Close()

	if v.GetBool("save_datasets") {
		if err := controller.WriteDatasetsToFile(); err != nil {
			return err
		}
	}

	if err := controller.TrainAndValidate(); err != nil {
		return err
	}

	if sampler.HasTest() {
		if _, err := controller.Evaluate(); err != nil {
			return err
		}
	}
	return nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
}
