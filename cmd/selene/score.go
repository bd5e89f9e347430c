package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jorenretel/selene/checkpoints"
	"github.com/jorenretel/selene/predict"
	"github.com/jorenretel/selene/sequence"
)

var (
	scoreCheckpoint string
	scoreFeatures   string
	scoreOutputDir  string
	scoreOutputs    []string
	scoreBatchSize  int

	ismSequence string
	ismMutateN  int

	vepVCF   string
	vepFASTA string
)

var ismCmd = &cobra.Command{
	Use:   "ism",
	Short: "Score every point mutation of a sequence (in-silico mutagenesis)",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := buildEngine(len(ismSequence))
		if err != nil {
			return err
		}
		return engine.InSilicoMutagenesis(ismSequence, parseOutputs(scoreOutputs),
			scoreOutputDir, "ism", ismMutateN)
	},
}

var vepCmd = &cobra.Command{
	Use:   "vep",
	Short: "Score variants from a VCF against a reference genome",
	RunE: func(cmd *cobra.Command, args []string) error {
		genome, err := sequence.ReadFASTA(vepFASTA)
		if err != nil {
			return err
		}
		engine, err := buildEngine(0)
		if err != nil {
			return err
		}
		return engine.VariantEffectPrediction(vepVCF, parseOutputs(scoreOutputs), genome, scoreOutputDir)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{ismCmd, vepCmd} {
		cmd.Flags().StringVar(&scoreCheckpoint, "checkpoint", "", "trained model checkpoint")
		cmd.Flags().StringVar(&scoreFeatures, "features", "", "file listing model output feature names, one per line")
		cmd.Flags().StringVarP(&scoreOutputDir, "output-dir", "o", ".", "directory for result files")
		cmd.Flags().StringSliceVar(&scoreOutputs, "outputs", []string{"predictions"},
			"result types to write: diffs, logits, predictions")
		cmd.Flags().IntVar(&scoreBatchSize, "batch-size", 64, "inference batch size")
		cmd.MarkFlagRequired("checkpoint")
		cmd.MarkFlagRequired("features")
	}

	ismCmd.Flags().StringVar(&ismSequence, "sequence", "", "input sequence to mutate")
	ismCmd.Flags().IntVar(&ismMutateN, "mutate-n", 1, "number of bases to mutate per spec")
	ismCmd.MarkFlagRequired("sequence")

	vepCmd.Flags().StringVar(&vepVCF, "vcf", "", "variant file to score")
	vepCmd.Flags().StringVar(&vepFASTA, "fasta", "", "reference genome FASTA")
	vepCmd.MarkFlagRequired("vcf")
	vepCmd.MarkFlagRequired("fasta")

	rootCmd.AddCommand(ismCmd, vepCmd)
}

// buildEngine restores the frozen model from the checkpoint and wraps it
// in a scoring engine. sequenceLength zero means "use the model's own
// window length".
func buildEngine(sequenceLength int) (*predict.AnalyzeSequences, error) {
	checkpoint, err := checkpoints.Load(scoreCheckpoint)
	if err != nil {
		return nil, err
	}
	m, err := checkpoints.RestoreModel(checkpoint)
	if err != nil {
		return nil, err
	}

	features, err := loadFeatureList(scoreFeatures)
	if err != nil {
		return nil, err
	}

	if sequenceLength == 0 {
		type windowed interface{ SequenceLength() int }
		w, ok := m.(windowed)
		if !ok {
			return nil, fmt.Errorf("model does not expose its window length; pass a sequence")
		}
		sequenceLength = w.SequenceLength()
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return predict.NewAnalyzeSequences(m, sequenceLength, scoreBatchSize, features, logger)
}

func parseOutputs(names []string) []predict.Output {
	outputs := make([]predict.Output, len(names))
	for i, name := range names {
		outputs[i] = predict.Output(name)
	}
	return outputs
}

// loadFeatureList reads feature names, one per line, skipping blanks.
func loadFeatureList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open features file: %w", err)
	}
	defer file.Close()

	var features []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			features = append(features, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read features file: %w", err)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("features file %s is empty", path)
	}
	return features, nil
}
