package predict

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/jorenretel/selene/sequence"
)

// Mutation is a single positional base substitution within a sequence
// window.
type Mutation struct {
	Position int
	Alt      byte
}

// EnumerateMutations generates every mutation spec that substitutes
// mutateN distinct positions of the sequence with non-reference bases.
// Position sets are emitted in ascending-index combination order and, for
// each set, alternates are emitted in alphabet iteration order, so output
// order is stable across runs. The number of specs is
// C(len(seq), mutateN) * 3^mutateN for DNA.
func EnumerateMutations(seq string, mutateN int) ([][]Mutation, error) {
	if mutateN < 1 || mutateN > len(seq) {
		return nil, fmt.Errorf("mutate count %d out of range [1, %d]", mutateN, len(seq))
	}

	upper := strings.ToUpper(seq)

	// Per-position alternate bases, excluding the reference base.
	alts := make([][]byte, len(upper))
	for i := 0; i < len(upper); i++ {
		for _, base := range sequence.BasesArr {
			if base == upper[i] {
				continue
			}
			alts[i] = append(alts[i], base)
		}
	}

	var specs [][]Mutation
	positions := make([]int, mutateN)

	var combine func(start, depth int)
	combine = func(start, depth int) {
		if depth == mutateN {
			specs = append(specs, crossAlternates(positions, alts)...)
			return
		}
		for i := start; i <= len(upper)-(mutateN-depth); i++ {
			positions[depth] = i
			combine(i+1, depth+1)
		}
	}
	combine(0, 0)

	return specs, nil
}

// crossAlternates expands one position combination into the cartesian
// product of its per-position alternates.
func crossAlternates(positions []int, alts [][]byte) [][]Mutation {
	var out [][]Mutation
	choice := make([]int, len(positions))
	for {
		spec := make([]Mutation, len(positions))
		for i, pos := range positions {
			spec[i] = Mutation{Position: pos, Alt: alts[pos][choice[i]]}
		}
		out = append(out, spec)

		// Advance the odometer, rightmost digit fastest.
		i := len(positions) - 1
		for i >= 0 {
			choice[i]++
			if choice[i] < len(alts[positions[i]]) {
				break
			}
			choice[i] = 0
			i--
		}
		if i < 0 {
			return out
		}
	}
}

// ApplyMutations returns a new encoding with the mutations applied. The
// input encoding is never modified. Each mutated row keeps the one-hot
// invariant: the row is zeroed and the alternate base column set to 1.
func ApplyMutations(enc *mat.Dense, muts []Mutation) (*mat.Dense, error) {
	rows, cols := enc.Dims()
	mutated := mat.NewDense(rows, cols, nil)
	mutated.Copy(enc)

	for _, m := range muts {
		if m.Position < 0 || m.Position >= rows {
			return nil, fmt.Errorf("mutation position %d out of range [0, %d)", m.Position, rows)
		}
		col, ok := sequence.BaseToIndex[m.Alt]
		if !ok {
			return nil, fmt.Errorf("mutation to unknown base %q", string(m.Alt))
		}
		for j := 0; j < cols; j++ {
			mutated.Set(m.Position, j, 0)
		}
		mutated.Set(m.Position, col, 1)
	}
	return mutated, nil
}

// ismRowID builds the (positions, refs, alts) identifier for one mutation
// spec, semicolon-joining the components of multi-base specs.
func ismRowID(seq string, muts []Mutation) RowID {
	positions := make([]string, len(muts))
	refs := make([]string, len(muts))
	alts := make([]string, len(muts))
	for i, m := range muts {
		positions[i] = strconv.Itoa(m.Position)
		refs[i] = string(seq[m.Position])
		alts[i] = string(m.Alt)
	}
	return RowID{
		strings.Join(positions, ";"),
		strings.Join(refs, ";"),
		strings.Join(alts, ";"),
	}
}
