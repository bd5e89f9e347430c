package training

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/jorenretel/selene/sequence"
)

// Batch is a fixed-size collection of sequence encodings with their target
// matrix (one row per encoding, one column per feature).
type Batch struct {
	Sequences []*mat.Dense
	Targets   *mat.Dense
}

// Sampler is the batch source the controller trains from. The validation
// and test sets are assembled once and are excluded from training
// sampling.
type Sampler interface {
	// Sample draws one training batch.
	Sample(batchSize int) (*Batch, error)

	// ValidationSet assembles the held-out validation batches and the
	// stacked target matrix across all of them. maxSamples caps the
	// number of examples; zero means no cap.
	ValidationSet(batchSize, maxSamples int) ([]*Batch, *mat.Dense, error)

	// HasTest reports whether the sampler carries a test partition.
	HasTest() bool

	// TestSet assembles the held-out test batches, as ValidationSet does.
	TestSet(batchSize, maxSamples int) ([]*Batch, *mat.Dense, error)

	// FeatureNames returns the target feature names in model output order.
	FeatureNames() []string

	// SaveDatasetsToFile dumps the sampler's partitions under dir.
	SaveDatasetsToFile(dir string) error
}

// SliceSampler is an in-memory Sampler over a fixed set of sequences and
// targets, partitioned into train/validate/test splits at construction.
type SliceSampler struct {
	sequences []string
	targets   *mat.Dense
	features  []string

	train    []int
	validate []int
	test     []int

	rng *rand.Rand
}

// SliceSamplerConfig controls partitioning of a SliceSampler.
type SliceSamplerConfig struct {
	ValidationFraction float64
	TestFraction       float64 // zero disables the test partition
	Seed               int64
}

// NewSliceSampler partitions the given examples into train, validation,
// and optional test splits. Targets must have one row per sequence.
func NewSliceSampler(sequences []string, targets *mat.Dense, features []string, cfg SliceSamplerConfig) (*SliceSampler, error) {
	rows, cols := targets.Dims()
	if rows != len(sequences) {
		return nil, fmt.Errorf("target rows %d do not match sequence count %d", rows, len(sequences))
	}
	if cols != len(features) {
		return nil, fmt.Errorf("target columns %d do not match feature count %d", cols, len(features))
	}
	if cfg.ValidationFraction <= 0 {
		cfg.ValidationFraction = 0.1
	}
	if cfg.ValidationFraction+cfg.TestFraction >= 1 {
		return nil, fmt.Errorf("validation fraction %.2f plus test fraction %.2f leaves no training data",
			cfg.ValidationFraction, cfg.TestFraction)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	perm := rng.Perm(len(sequences))

	nValidate := int(float64(len(sequences)) * cfg.ValidationFraction)
	nTest := int(float64(len(sequences)) * cfg.TestFraction)
	if nValidate == 0 {
		nValidate = 1
	}
	if nValidate+nTest >= len(sequences) {
		return nil, fmt.Errorf("not enough examples (%d) for the requested splits", len(sequences))
	}

	s := &SliceSampler{
		sequences: sequences,
		targets:   targets,
		features:  features,
		validate:  perm[:nValidate],
		test:      perm[nValidate : nValidate+nTest],
		train:     perm[nValidate+nTest:],
		rng:       rng,
	}
	return s, nil
}

// Sample draws a random training batch with replacement.
func (s *SliceSampler) Sample(batchSize int) (*Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	indices := make([]int, batchSize)
	for i := range indices {
		indices[i] = s.train[s.rng.Intn(len(s.train))]
	}
	return s.assemble(indices), nil
}

// ValidationSet returns the validation partition in fixed batches.
func (s *SliceSampler) ValidationSet(batchSize, maxSamples int) ([]*Batch, *mat.Dense, error) {
	return s.fixedSet(s.validate, batchSize, maxSamples)
}

// HasTest reports whether a test partition was configured.
func (s *SliceSampler) HasTest() bool {
	return len(s.test) > 0
}

// TestSet returns the test partition in fixed batches.
func (s *SliceSampler) TestSet(batchSize, maxSamples int) ([]*Batch, *mat.Dense, error) {
	if !s.HasTest() {
		return nil, nil, fmt.Errorf("sampler has no test partition")
	}
	return s.fixedSet(s.test, batchSize, maxSamples)
}

// FeatureNames returns the feature names in target column order.
func (s *SliceSampler) FeatureNames() []string {
	return s.features
}

func (s *SliceSampler) fixedSet(indices []int, batchSize, maxSamples int) ([]*Batch, *mat.Dense, error) {
	if batchSize <= 0 {
		return nil, nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if maxSamples > 0 && maxSamples < len(indices) {
		indices = indices[:maxSamples]
	}
	if len(indices) == 0 {
		return nil, nil, fmt.Errorf("empty evaluation partition")
	}

	var batches []*Batch
	for start := 0; start < len(indices); start += batchSize {
		end := start + batchSize
		if end > len(indices) {
			end = len(indices)
		}
		batches = append(batches, s.assemble(indices[start:end]))
	}

	_, cols := s.targets.Dims()
	allTargets := mat.NewDense(len(indices), cols, nil)
	for i, idx := range indices {
		for j := 0; j < cols; j++ {
			allTargets.Set(i, j, s.targets.At(idx, j))
		}
	}
	return batches, allTargets, nil
}

func (s *SliceSampler) assemble(indices []int) *Batch {
	_, cols := s.targets.Dims()
	encodings := make([]*mat.Dense, len(indices))
	targets := mat.NewDense(len(indices), cols, nil)
	for i, idx := range indices {
		encodings[i] = sequence.Encode(s.sequences[idx])
		for j := 0; j < cols; j++ {
			targets.Set(i, j, s.targets.At(idx, j))
		}
	}
	return &Batch{Sequences: encodings, Targets: targets}
}

// SaveDatasetsToFile dumps the train/validate/test partitions as TSV files
// under dir.
func (s *SliceSampler) SaveDatasetsToFile(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}
	partitions := map[string][]int{
		"train":    s.train,
		"validate": s.validate,
	}
	if s.HasTest() {
		partitions["test"] = s.test
	}
	for name, indices := range partitions {
		if err := s.writePartition(filepath.Join(dir, name+".tsv"), indices); err != nil {
			return err
		}
	}
	return nil
}

func (s *SliceSampler) writePartition(path string, indices []int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file %s: %w", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	header := append([]string{"sequence"}, s.features...)
	if _, err := w.WriteString(strings.Join(header, "\t") + "\n"); err != nil {
		return fmt.Errorf("failed to write dataset header: %w", err)
	}
	_, cols := s.targets.Dims()
	for _, idx := range indices {
		fields := make([]string, 0, cols+1)
		fields = append(fields, s.sequences[idx])
		for j := 0; j < cols; j++ {
			fields = append(fields, strconv.FormatFloat(s.targets.At(idx, j), 'g', -1, 64))
		}
		if _, err := w.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return fmt.Errorf("failed to write dataset row: %w", err)
		}
	}
	return w.Flush()
}

// LoadDataset reads a TSV dataset of the form written by
// SaveDatasetsToFile: a header line "sequence<TAB>feature..." followed by
// one example per row.
func LoadDataset(path string) (sequences []string, targets *mat.Dense, features []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return nil, nil, nil, fmt.Errorf("dataset %s is empty", path)
	}
	header := strings.Split(scanner.Text(), "\t")
	if len(header) < 2 || header[0] != "sequence" {
		return nil, nil, nil, fmt.Errorf("dataset %s: header must start with \"sequence\" followed by feature names", path)
	}
	features = header[1:]

	var values []float64
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(header) {
			return nil, nil, nil, fmt.Errorf("dataset %s: row has %d columns, expected %d", path, len(fields), len(header))
		}
		sequences = append(sequences, fields[0])
		for _, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("dataset %s: invalid target value %q: %w", path, f, err)
			}
			values = append(values, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	if len(sequences) == 0 {
		return nil, nil, nil, fmt.Errorf("dataset %s has no examples", path)
	}

	targets = mat.NewDense(len(sequences), len(features), values)
	return sequences, targets, features, nil
}
