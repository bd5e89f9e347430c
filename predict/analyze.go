package predict

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/jorenretel/selene/sequence"
)

// ISMCols are the identifier columns of in-silico mutagenesis outputs.
var ISMCols = []string{"pos", "ref", "alt"}

// VariantEffectCols are the identifier columns of variant-effect outputs.
var VariantEffectCols = []string{"chrom", "pos", "name", "ref", "alt"}

// Output names the result artifacts a scoring run can produce.
type Output string

const (
	// OutputDiffs writes prediction-minus-baseline scores.
	OutputDiffs Output = "diffs"
	// OutputLogits writes logit-difference scores.
	OutputLogits Output = "logits"
	// OutputPredictions writes raw predictions (ISM) or ref/alt
	// prediction pairs (variant effect).
	OutputPredictions Output = "predictions"
)

// Predictor is the read-only model capability the engine needs: a pure
// forward pass with no gradient tracking. It must be backed by a frozen
// parameter snapshot, never by a model being trained concurrently.
type Predictor interface {
	Forward(batch []*mat.Dense) (*mat.Dense, error)
}

// WindowLengthError reports a reconstructed alt-allele window whose length
// does not match the model's sequence length. It is an internal invariant
// failure for that record, not a user error.
type WindowLengthError struct {
	Chrom  string
	Pos    int
	Allele string
	Got    int
	Want   int
}

func (e *WindowLengthError) Error() string {
	return fmt.Sprintf("alt window for %s:%d allele %q has length %d, expected %d",
		e.Chrom, e.Pos, e.Allele, e.Got, e.Want)
}

// AnalyzeSequences scores sequences and their variants using a trained
// model.
type AnalyzeSequences struct {
	model          Predictor
	sequenceLength int
	batchSize      int
	features       []string
	logger         *logrus.Logger

	startRadius int
	endRadius   int
}

// NewAnalyzeSequences creates a scoring engine around a frozen model.
func NewAnalyzeSequences(predictor Predictor, sequenceLength, batchSize int, features []string, logger *logrus.Logger) (*AnalyzeSequences, error) {
	if sequenceLength <= 0 {
		return nil, fmt.Errorf("sequence length must be positive, got %d", sequenceLength)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("no feature names provided")
	}
	if logger == nil {
		logger = logrus.New()
	}

	startRadius := sequenceLength / 2
	endRadius := startRadius
	if sequenceLength%2 != 0 {
		endRadius++
	}

	return &AnalyzeSequences{
		model:          predictor,
		sequenceLength: sequenceLength,
		batchSize:      batchSize,
		features:       features,
		logger:         logger,
		startRadius:    startRadius,
		endRadius:      endRadius,
	}, nil
}

// Predict runs a pure forward pass over a batch of encodings.
func (a *AnalyzeSequences) Predict(batch []*mat.Dense) (*mat.Dense, error) {
	return a.model.Forward(batch)
}

// initializeHandlers builds the handler set for the requested outputs. The
// mode decides which writer serves OutputPredictions.
func (a *AnalyzeSequences) initializeHandlers(outputs []Output, outputDir, prefix string, columns []string, variantEffect bool) ([]Handler, error) {
	var handlers []Handler
	for _, out := range outputs {
		switch out {
		case OutputDiffs:
			h, err := NewDiffScoreHandler(a.features, columns,
				filepath.Join(outputDir, prefix+"_diffs.txt"))
			if err != nil {
				return nil, err
			}
			handlers = append(handlers, h)
		case OutputLogits:
			h, err := NewLogitScoreHandler(a.features, columns,
				filepath.Join(outputDir, prefix+"_logits.txt"))
			if err != nil {
				return nil, err
			}
			handlers = append(handlers, h)
		case OutputPredictions:
			if variantEffect {
				h, err := NewWriteRefAltHandler(a.features, columns,
					filepath.Join(outputDir, prefix+"_preds"))
				if err != nil {
					return nil, err
				}
				handlers = append(handlers, h)
			} else {
				h, err := NewWritePredictionsHandler(a.features, columns,
					filepath.Join(outputDir, prefix+"_preds.txt"))
				if err != nil {
					return nil, err
				}
				handlers = append(handlers, h)
			}
		default:
			return nil, fmt.Errorf("unknown output type %q", out)
		}
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("no outputs requested")
	}
	return handlers, nil
}

// InSilicoMutagenesis scores every mutateN-base substitution of the input
// sequence and routes results through the requested outputs. A baseline
// prediction for the unmutated sequence is computed once: raw-prediction
// outputs record it as a sentinel NA row and baseline-relative outputs
// reuse it for every mutated batch.
func (a *AnalyzeSequences) InSilicoMutagenesis(inputSequence string, outputs []Output, outputDir, prefix string, mutateN int) error {
	if len(inputSequence) != a.sequenceLength {
		return fmt.Errorf("input sequence length %d does not match model sequence length %d",
			len(inputSequence), a.sequenceLength)
	}
	if prefix == "" {
		prefix = "ism"
	}

	specs, err := EnumerateMutations(inputSequence, mutateN)
	if err != nil {
		return err
	}

	handlers, err := a.initializeHandlers(outputs, outputDir, prefix, ISMCols, false)
	if err != nil {
		return err
	}

	refEncoding := sequence.Encode(inputSequence)
	basePreds, err := a.Predict([]*mat.Dense{refEncoding})
	if err != nil {
		return fmt.Errorf("baseline prediction failed: %w", err)
	}

	naID := RowID{"NA", "NA", "NA"}
	for _, h := range handlers {
		if h.NeedsBaseline() {
			continue
		}
		if err := h.HandleBatch(basePreds, []RowID{naID}, nil); err != nil {
			return fmt.Errorf("failed to record baseline row: %w", err)
		}
	}

	a.logger.WithFields(logrus.Fields{
		"mutations": len(specs),
		"mutate_n":  mutateN,
	}).Info("scoring in-silico mutagenesis sequences")

	for start := 0; start < len(specs); start += a.batchSize {
		end := start + a.batchSize
		if end > len(specs) {
			end = len(specs)
		}

		batch := make([]*mat.Dense, 0, end-start)
		ids := make([]RowID, 0, end-start)
		for _, spec := range specs[start:end] {
			mutated, err := ApplyMutations(refEncoding, spec)
			if err != nil {
				return fmt.Errorf("failed to apply mutations: %w", err)
			}
			batch = append(batch, mutated)
			ids = append(ids, ismRowID(inputSequence, spec))
		}

		preds, err := a.Predict(batch)
		if err != nil {
			return fmt.Errorf("prediction failed for batch at offset %d: %w", start, err)
		}
		for _, h := range handlers {
			if h.NeedsBaseline() {
				err = h.HandleBatch(preds, ids, basePreds)
			} else {
				err = h.HandleBatch(preds, ids, nil)
			}
			if err != nil {
				return fmt.Errorf("handler failed at batch offset %d: %w", start, err)
			}
		}
	}

	for _, h := range handlers {
		if err := h.Flush(true); err != nil {
			return err
		}
	}
	return nil
}

// VariantEffectPrediction scores every (variant, alternate allele) pair in
// a VCF file against the reference genome. Variants whose centered window
// falls outside the sequence provider's bounds are routed to the NA output
// and never abort the run.
func (a *AnalyzeSequences) VariantEffectPrediction(vcfPath string, outputs []Output, genome sequence.Provider, outputDir string) error {
	variants, err := ReadVCF(vcfPath)
	if err != nil {
		return err
	}

	prefix := strings.SplitN(filepath.Base(vcfPath), ".", 2)[0]
	handlers, err := a.initializeHandlers(outputs, outputDir, prefix, VariantEffectCols, true)
	if err != nil {
		return err
	}

	a.logger.WithField("variants", len(variants)).Info("scoring variants")

	var batchRef, batchAlt []*mat.Dense
	var batchIDs []RowID

	flushBatch := func() error {
		if len(batchIDs) == 0 {
			return nil
		}
		refPreds, err := a.Predict(batchRef)
		if err != nil {
			return fmt.Errorf("reference prediction failed: %w", err)
		}
		altPreds, err := a.Predict(batchAlt)
		if err != nil {
			return fmt.Errorf("alternate prediction failed: %w", err)
		}
		for _, h := range handlers {
			if h.NeedsBaseline() {
				err = h.HandleBatch(altPreds, batchIDs, refPreds)
			} else {
				err = h.HandleBatch(altPreds, batchIDs, nil)
			}
			if err != nil {
				return fmt.Errorf("handler failed: %w", err)
			}
		}
		batchRef = nil
		batchAlt = nil
		batchIDs = nil
		return nil
	}

	routeNA := func(v Variant, allele string) error {
		id := RowID{v.Chrom, strconv.Itoa(v.Pos), v.Name, v.Ref, allele}
		for _, h := range handlers {
			if err := h.HandleNA(id); err != nil {
				return err
			}
		}
		return nil
	}

	for _, v := range variants {
		start := v.Pos - a.startRadius
		end := v.Pos + a.endRadius
		alleles := strings.Split(v.Alt, ",")

		if !genome.SequenceInBounds(v.Chrom, start, end) {
			for _, allele := range alleles {
				if err := routeNA(v, allele); err != nil {
					return err
				}
			}
			continue
		}

		refSeq, err := genome.SequenceFromCoords(v.Chrom, start, end)
		if err != nil {
			return fmt.Errorf("failed to fetch reference window for %s:%d: %w", v.Chrom, v.Pos, err)
		}
		if len(refSeq) != a.sequenceLength {
			werr := &WindowLengthError{Chrom: v.Chrom, Pos: v.Pos, Allele: v.Ref,
				Got: len(refSeq), Want: a.sequenceLength}
			a.logger.WithError(werr).Error("reference window length mismatch, routing variant to NA output")
			for _, allele := range alleles {
				if err := routeNA(v, allele); err != nil {
					return err
				}
			}
			continue
		}
		refEncoding := sequence.Encode(refSeq)

		for _, allele := range alleles {
			altSeq, err := a.spliceAlt(v, allele, refSeq, start, end, genome)
			if err != nil {
				var werr *WindowLengthError
				if errors.As(err, &werr) {
					a.logger.WithError(werr).Error("alt window length mismatch, routing allele to NA output")
					if err := routeNA(v, allele); err != nil {
						return err
					}
					continue
				}
				return err
			}

			batchRef = append(batchRef, refEncoding)
			batchAlt = append(batchAlt, sequence.Encode(altSeq))
			batchIDs = append(batchIDs, RowID{v.Chrom, strconv.Itoa(v.Pos), v.Name, v.Ref, allele})

			if len(batchIDs) >= a.batchSize {
				if err := flushBatch(); err != nil {
					return err
				}
			}
		}
	}

	if err := flushBatch(); err != nil {
		return err
	}
	for _, h := range handlers {
		if err := h.Flush(true); err != nil {
			return err
		}
	}
	return nil
}

// spliceAlt builds the fixed-length alternate-allele window for a variant.
// When the allele changes the sequence length the window is re-padded from
// adjacent genomic coordinates, extending past the window end when the
// genome allows it and otherwise shifting the window backward. The
// returned sequence is always exactly sequenceLength long; any other
// outcome is a WindowLengthError.
func (a *AnalyzeSequences) spliceAlt(v Variant, allele, refSeq string, start, end int, genome sequence.Provider) (string, error) {
	if a.startRadius+len(v.Ref) > len(refSeq) {
		return "", &WindowLengthError{Chrom: v.Chrom, Pos: v.Pos, Allele: allele,
			Got: a.startRadius + len(v.Ref), Want: len(refSeq)}
	}

	prefix := refSeq[:a.startRadius]
	suffix := refSeq[a.startRadius+len(v.Ref):]
	altSeq := prefix + allele + suffix

	switch {
	case len(altSeq) > a.sequenceLength:
		altSeq = altSeq[:a.sequenceLength]
	case len(altSeq) < a.sequenceLength:
		addStart := end
		addEnd := end + a.sequenceLength - len(altSeq)
		if genome.SequenceInBounds(v.Chrom, addStart, addEnd) {
			pad, err := genome.SequenceFromCoords(v.Chrom, addStart, addEnd)
			if err != nil {
				return "", fmt.Errorf("failed to fetch padding for %s:%d: %w", v.Chrom, v.Pos, err)
			}
			altSeq += pad
		} else {
			addEnd = start
			addStart = start - (a.sequenceLength - len(altSeq))
			if !genome.SequenceInBounds(v.Chrom, addStart, addEnd) {
				return "", &WindowLengthError{Chrom: v.Chrom, Pos: v.Pos, Allele: allele,
					Got: len(altSeq), Want: a.sequenceLength}
			}
			pad, err := genome.SequenceFromCoords(v.Chrom, addStart, addEnd)
			if err != nil {
				return "", fmt.Errorf("failed to fetch padding for %s:%d: %w", v.Chrom, v.Pos, err)
			}
			altSeq = pad + altSeq
		}
	}

	if len(altSeq) != a.sequenceLength {
		return "", &WindowLengthError{Chrom: v.Chrom, Pos: v.Pos, Allele: allele,
			Got: len(altSeq), Want: a.sequenceLength}
	}
	return altSeq, nil
}
