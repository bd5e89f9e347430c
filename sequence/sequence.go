package sequence

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// BasesArr lists the DNA alphabet in the fixed iteration order used for
// one-hot encoding columns and mutation enumeration.
var BasesArr = []byte{'A', 'C', 'G', 'T'}

// BaseToIndex maps a base to its one-hot column index.
var BaseToIndex = map[byte]int{
	'A': 0,
	'C': 1,
	'G': 2,
	'T': 3,
}

// ComplementaryBase maps each base to its complement.
var ComplementaryBase = map[byte]byte{
	'A': 'T',
	'C': 'G',
	'G': 'C',
	'T': 'A',
	'N': 'N',
}

// AlphabetSize is the number of one-hot encoding columns.
const AlphabetSize = 4

// Encode converts a sequence into an L-by-4 one-hot encoding. Positions
// holding a base outside the alphabet (e.g. N) are encoded as a uniform
// 0.25 row rather than a one-hot row.
func Encode(sequence string) *mat.Dense {
	seq := strings.ToUpper(sequence)
	enc := mat.NewDense(len(seq), AlphabetSize, nil)
	for i := 0; i < len(seq); i++ {
		if col, ok := BaseToIndex[seq[i]]; ok {
			enc.Set(i, col, 1)
		} else {
			for j := 0; j < AlphabetSize; j++ {
				enc.Set(i, j, 0.25)
			}
		}
	}
	return enc
}

// EncodingToSequence converts a one-hot encoding back into a base string.
// Rows without a definite one-hot entry decode to N.
func EncodingToSequence(enc *mat.Dense) string {
	rows, _ := enc.Dims()
	out := make([]byte, rows)
	for i := 0; i < rows; i++ {
		out[i] = 'N'
		for j := 0; j < AlphabetSize; j++ {
			if enc.At(i, j) == 1 {
				out[i] = BasesArr[j]
				break
			}
		}
	}
	return string(out)
}

// ReverseComplement returns the reverse-complemented sequence.
func ReverseComplement(sequence string) string {
	seq := strings.ToUpper(sequence)
	out := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		c, ok := ComplementaryBase[seq[len(seq)-1-i]]
		if !ok {
			c = 'N'
		}
		out[i] = c
	}
	return string(out)
}

// Provider is a coordinate-addressable sequence store. Coordinates are
// 0-based half-open [start, end) within a named chromosome.
type Provider interface {
	// SequenceInBounds reports whether [start, end) lies fully within the
	// named chromosome.
	SequenceInBounds(chrom string, start, end int) bool

	// SequenceFromCoords returns the subsequence at [start, end).
	SequenceFromCoords(chrom string, start, end int) (string, error)
}

// MemoryGenome is an in-memory Provider backed by a chromosome-to-sequence
// map.
type MemoryGenome struct {
	chroms map[string]string
}

// NewMemoryGenome creates a MemoryGenome from a map of chromosome names to
// sequences.
func NewMemoryGenome(chroms map[string]string) *MemoryGenome {
	upper := make(map[string]string, len(chroms))
	for name, seq := range chroms {
		upper[name] = strings.ToUpper(seq)
	}
	return &MemoryGenome{chroms: upper}
}

// Chroms returns the chromosome names held by the genome.
func (g *MemoryGenome) Chroms() []string {
	names := make([]string, 0, len(g.chroms))
	for name := range g.chroms {
		names = append(names, name)
	}
	return names
}

// SequenceInBounds reports whether [start, end) is a valid range on chrom.
func (g *MemoryGenome) SequenceInBounds(chrom string, start, end int) bool {
	seq, ok := g.chroms[chrom]
	if !ok {
		return false
	}
	return start >= 0 && end <= len(seq) && start <= end
}

// SequenceFromCoords returns the subsequence of chrom at [start, end).
func (g *MemoryGenome) SequenceFromCoords(chrom string, start, end int) (string, error) {
	seq, ok := g.chroms[chrom]
	if !ok {
		return "", fmt.Errorf("unknown chromosome %q", chrom)
	}
	if !g.SequenceInBounds(chrom, start, end) {
		return "", fmt.Errorf("coordinates [%d, %d) out of bounds for chromosome %q (length %d)",
			start, end, chrom, len(seq))
	}
	return seq[start:end], nil
}
