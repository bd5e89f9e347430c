package predict

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// DefaultFlushThreshold is the buffered row count at which a handler
// flushes to disk on its own to bound memory.
const DefaultFlushThreshold = 200000

// RowID identifies the provenance of one prediction row: positions/ref/alt
// for in-silico mutagenesis, chrom/pos/name/ref/alt for variants.
type RowID []string

// Handler consumes batches of model predictions and serializes them to a
// durable output. Implementations declare via NeedsBaseline whether
// HandleBatch must be given baseline predictions alongside the batch.
type Handler interface {
	// NeedsBaseline reports whether HandleBatch requires a baseline matrix.
	NeedsBaseline() bool

	// HandleBatch consumes one batch of predictions with their row
	// identifiers. For handlers that need a baseline, baseline is either a
	// single-row matrix broadcast across the batch or a matrix with one
	// row per prediction.
	HandleBatch(predictions *mat.Dense, ids []RowID, baseline *mat.Dense) error

	// HandleNA routes an unscored identifier to the side NA output.
	HandleNA(id RowID) error

	// Flush writes all buffered rows. With final set, the output resource
	// is closed afterwards. Safe to call with an empty buffer.
	Flush(final bool) error
}

// accumulator is the shared buffering and serialization core of the
// concrete handlers. Output resources open eagerly at construction and the
// header row is written immediately, so unwritable paths fail before any
// inference work happens.
type accumulator struct {
	features       []string
	columns        []string
	path           string
	file           *os.File
	writer         *bufio.Writer
	rows           [][]float64
	ids            []RowID
	naRows         []RowID
	flushThreshold int
}

func newAccumulator(features, columns []string, path string, flushThreshold int) (*accumulator, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("no feature names provided for output %s", path)
	}
	if flushThreshold <= 0 {
		flushThreshold = DefaultFlushThreshold
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	writer := bufio.NewWriter(file)

	header := strings.Join(append(append([]string{}, columns...), features...), "\t")
	if _, err := writer.WriteString(header + "\n"); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write header to %s: %w", path, err)
	}

	return &accumulator{
		features:       features,
		columns:        columns,
		path:           path,
		file:           file,
		writer:         writer,
		flushThreshold: flushThreshold,
	}, nil
}

// append buffers scored rows and flushes when the buffer crosses the
// threshold.
func (a *accumulator) append(rows [][]float64, ids []RowID) error {
	if len(rows) != len(ids) {
		return fmt.Errorf("row count %d does not match identifier count %d", len(rows), len(ids))
	}
	a.rows = append(a.rows, rows...)
	a.ids = append(a.ids, ids...)
	if len(a.rows) > a.flushThreshold {
		return a.flush(false)
	}
	return nil
}

func (a *accumulator) handleNA(id RowID) error {
	if len(id) != len(a.columns) {
		return fmt.Errorf("NA identifier has %d columns, expected %d", len(id), len(a.columns))
	}
	a.naRows = append(a.naRows, id)
	return nil
}

// naPath derives the sibling NA output path from the main output path.
func (a *accumulator) naPath() string {
	if ext := strings.LastIndex(a.path, "."); ext > 0 {
		return a.path[:ext] + ".NA"
	}
	return a.path + ".NA"
}

func (a *accumulator) flush(final bool) error {
	if len(a.naRows) > 0 {
		if err := a.writeNAs(); err != nil {
			return err
		}
		a.naRows = nil
	}

	for i, row := range a.rows {
		fields := make([]string, 0, len(a.columns)+len(row))
		fields = append(fields, a.ids[i]...)
		for _, v := range row {
			fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if _, err := a.writer.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return fmt.Errorf("failed to write row to %s: %w", a.path, err)
		}
	}
	a.rows = nil
	a.ids = nil

	if err := a.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", a.path, err)
	}
	if final {
		if err := a.file.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", a.path, err)
		}
	}
	return nil
}

// writeNAs appends buffered NA identifiers to the sibling NA file,
// creating it with an identifier-column header on first use.
func (a *accumulator) writeNAs() error {
	path := a.naPath()
	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open NA file %s: %w", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if newFile {
		if _, err := w.WriteString(strings.Join(a.columns, "\t") + "\n"); err != nil {
			return fmt.Errorf("failed to write NA header to %s: %w", path, err)
		}
	}
	for _, id := range a.naRows {
		if _, err := w.WriteString(strings.Join(id, "\t") + "\n"); err != nil {
			return fmt.Errorf("failed to write NA row to %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush NA file %s: %w", path, err)
	}
	return nil
}

// matrixRows converts a prediction matrix into per-row slices.
func matrixRows(m *mat.Dense) [][]float64 {
	rows, cols := m.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		for j := 0; j < cols; j++ {
			row[j] = m.At(i, j)
		}
		out[i] = row
	}
	return out
}

// baselineRow resolves the baseline row for batch index i, broadcasting a
// single-row baseline across the batch.
func baselineRow(baseline *mat.Dense, i int) int {
	rows, _ := baseline.Dims()
	if rows == 1 {
		return 0
	}
	return i
}

func checkBaseline(baseline *mat.Dense, batchRows int) error {
	if baseline == nil {
		return fmt.Errorf("handler requires baseline predictions but none were provided")
	}
	rows, _ := baseline.Dims()
	if rows != 1 && rows != batchRows {
		return fmt.Errorf("baseline has %d rows, expected 1 or %d", rows, batchRows)
	}
	return nil
}

// WritePredictionsHandler writes raw model predictions.
type WritePredictionsHandler struct {
	*accumulator
}

// NewWritePredictionsHandler creates a raw-prediction writer at path.
func NewWritePredictionsHandler(features, columns []string, path string) (*WritePredictionsHandler, error) {
	acc, err := newAccumulator(features, columns, path, DefaultFlushThreshold)
	if err != nil {
		return nil, err
	}
	return &WritePredictionsHandler{accumulator: acc}, nil
}

func (h *WritePredictionsHandler) NeedsBaseline() bool { return false }

func (h *WritePredictionsHandler) HandleBatch(predictions *mat.Dense, ids []RowID, baseline *mat.Dense) error {
	return h.append(matrixRows(predictions), ids)
}

func (h *WritePredictionsHandler) HandleNA(id RowID) error { return h.handleNA(id) }

func (h *WritePredictionsHandler) Flush(final bool) error { return h.flush(final) }

// DiffScoreHandler writes prediction minus baseline for each feature.
type DiffScoreHandler struct {
	*accumulator
}

// NewDiffScoreHandler creates a difference-score writer at path.
func NewDiffScoreHandler(features, columns []string, path string) (*DiffScoreHandler, error) {
	acc, err := newAccumulator(features, columns, path, DefaultFlushThreshold)
	if err != nil {
		return nil, err
	}
	return &DiffScoreHandler{accumulator: acc}, nil
}

func (h *DiffScoreHandler) NeedsBaseline() bool { return true }

func (h *DiffScoreHandler) HandleBatch(predictions *mat.Dense, ids []RowID, baseline *mat.Dense) error {
	rows, cols := predictions.Dims()
	if err := checkBaseline(baseline, rows); err != nil {
		return err
	}
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		b := baselineRow(baseline, i)
		row := make([]float64, cols)
		for j := 0; j < cols; j++ {
			row[j] = predictions.At(i, j) - baseline.At(b, j)
		}
		out[i] = row
	}
	return h.append(out, ids)
}

func (h *DiffScoreHandler) HandleNA(id RowID) error { return h.handleNA(id) }

func (h *DiffScoreHandler) Flush(final bool) error { return h.flush(final) }

// LogitScoreHandler writes logit(prediction) minus logit(baseline) for each
// feature.
type LogitScoreHandler struct {
	*accumulator
}

// NewLogitScoreHandler creates a logit-score writer at path.
func NewLogitScoreHandler(features, columns []string, path string) (*LogitScoreHandler, error) {
	acc, err := newAccumulator(features, columns, path, DefaultFlushThreshold)
	if err != nil {
		return nil, err
	}
	return &LogitScoreHandler{accumulator: acc}, nil
}

func (h *LogitScoreHandler) NeedsBaseline() bool { return true }

func (h *LogitScoreHandler) HandleBatch(predictions *mat.Dense, ids []RowID, baseline *mat.Dense) error {
	rows, cols := predictions.Dims()
	if err := checkBaseline(baseline, rows); err != nil {
		return err
	}
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		b := baselineRow(baseline, i)
		row := make([]float64, cols)
		for j := 0; j < cols; j++ {
			row[j] = logit(predictions.At(i, j)) - logit(baseline.At(b, j))
		}
		out[i] = row
	}
	return h.append(out, ids)
}

func (h *LogitScoreHandler) HandleNA(id RowID) error { return h.handleNA(id) }

func (h *LogitScoreHandler) Flush(final bool) error { return h.flush(final) }

const logitEpsilon = 1e-12

func logit(p float64) float64 {
	if p < logitEpsilon {
		p = logitEpsilon
	}
	if p > 1-logitEpsilon {
		p = 1 - logitEpsilon
	}
	return math.Log(p / (1 - p))
}

// WriteRefAltHandler writes the reference and alternate predictions of each
// variant to paired ".ref" and ".alt" outputs.
type WriteRefAltHandler struct {
	ref *WritePredictionsHandler
	alt *WritePredictionsHandler
}

// NewWriteRefAltHandler creates paired prediction writers at
// pathPrefix.ref.txt and pathPrefix.alt.txt.
func NewWriteRefAltHandler(features, columns []string, pathPrefix string) (*WriteRefAltHandler, error) {
	ref, err := NewWritePredictionsHandler(features, columns, pathPrefix+".ref.txt")
	if err != nil {
		return nil, err
	}
	alt, err := NewWritePredictionsHandler(features, columns, pathPrefix+".alt.txt")
	if err != nil {
		ref.Flush(true)
		return nil, err
	}
	return &WriteRefAltHandler{ref: ref, alt: alt}, nil
}

func (h *WriteRefAltHandler) NeedsBaseline() bool { return true }

// HandleBatch records the alternate-allele predictions and the baseline
// reference predictions under the same identifiers. A single-row baseline
// is materialized into one row per identifier before writing.
func (h *WriteRefAltHandler) HandleBatch(predictions *mat.Dense, ids []RowID, baseline *mat.Dense) error {
	rows, _ := predictions.Dims()
	if err := checkBaseline(baseline, rows); err != nil {
		return err
	}

	_, cols := baseline.Dims()
	refRows := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		b := baselineRow(baseline, i)
		row := make([]float64, cols)
		for j := 0; j < cols; j++ {
			row[j] = baseline.At(b, j)
		}
		refRows[i] = row
	}
	if err := h.ref.append(refRows, ids); err != nil {
		return err
	}
	return h.alt.HandleBatch(predictions, ids, nil)
}

func (h *WriteRefAltHandler) HandleNA(id RowID) error {
	if err := h.ref.HandleNA(id); err != nil {
		return err
	}
	return h.alt.HandleNA(id)
}

func (h *WriteRefAltHandler) Flush(final bool) error {
	if err := h.ref.Flush(final); err != nil {
		return err
	}
	return h.alt.Flush(final)
}
