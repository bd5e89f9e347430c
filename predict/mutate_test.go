package predict

import (
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/jorenretel/selene/sequence"
)

func TestEnumerateMutationsCount(t *testing.T) {
	tests := []struct {
		seq     string
		mutateN int
		want    int
	}{
		{"ACGT", 1, 12},  // 4 positions x 3 alternates
		{"ACGT", 2, 54},  // C(4,2)=6 combinations x 9 alternate pairs
		{"AAAAAA", 1, 18},
		{"ACGT", 4, 81}, // 3^4
	}
	for _, tt := range tests {
		specs, err := EnumerateMutations(tt.seq, tt.mutateN)
		if err != nil {
			t.Fatalf("EnumerateMutations(%q, %d) failed: %v", tt.seq, tt.mutateN, err)
		}
		if len(specs) != tt.want {
			t.Errorf("EnumerateMutations(%q, %d): expected %d specs, got %d",
				tt.seq, tt.mutateN, tt.want, len(specs))
		}
	}
}

func TestEnumerateMutationsRange(t *testing.T) {
	if _, err := EnumerateMutations("ACGT", 0); err == nil {
		t.Error("expected error for mutate count 0")
	}
	if _, err := EnumerateMutations("ACGT", 5); err == nil {
		t.Error("expected error for mutate count beyond sequence length")
	}
}

func TestEnumerateMutationsNeverProposesReference(t *testing.T) {
	seq := "ACGTAC"
	specs, err := EnumerateMutations(seq, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, spec := range specs {
		for _, m := range spec {
			if m.Alt == seq[m.Position] {
				t.Fatalf("spec proposes reference base %q at position %d", string(m.Alt), m.Position)
			}
		}
	}
}

func TestEnumerateMutationsDeterministic(t *testing.T) {
	first, err := EnumerateMutations("ACGTACGT", 2)
	if err != nil {
		t.Fatal(err)
	}
	second, err := EnumerateMutations("ACGTACGT", 2)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("enumeration order differs between runs")
	}
}

func TestEnumerateMutationsAscendingPositions(t *testing.T) {
	specs, err := EnumerateMutations("ACGTA", 3)
	if err != nil {
		t.Fatal(err)
	}
	for _, spec := range specs {
		for i := 1; i < len(spec); i++ {
			if spec[i].Position <= spec[i-1].Position {
				t.Fatalf("positions not strictly ascending: %v", spec)
			}
		}
	}
}

func TestApplyMutationsNonDestructive(t *testing.T) {
	enc := sequence.Encode("ACGT")
	original := mat.DenseCopyOf(enc)

	mutated, err := ApplyMutations(enc, []Mutation{{Position: 0, Alt: 'T'}, {Position: 2, Alt: 'A'}})
	if err != nil {
		t.Fatalf("ApplyMutations failed: %v", err)
	}

	if !mat.Equal(enc, original) {
		t.Error("input encoding was modified by ApplyMutations")
	}
	if mat.Equal(mutated, original) {
		t.Error("mutated encoding is identical to the original")
	}
}

func TestApplyMutationsOneHotInvariant(t *testing.T) {
	enc := sequence.Encode("ACGTACGT")
	mutated, err := ApplyMutations(enc, []Mutation{{Position: 1, Alt: 'G'}, {Position: 7, Alt: 'A'}})
	if err != nil {
		t.Fatal(err)
	}

	rows, cols := mutated.Dims()
	for i := 0; i < rows; i++ {
		ones := 0
		for j := 0; j < cols; j++ {
			switch mutated.At(i, j) {
			case 1:
				ones++
			case 0:
			default:
				t.Errorf("row %d col %d: unexpected value %f", i, j, mutated.At(i, j))
			}
		}
		if ones != 1 {
			t.Errorf("row %d: expected exactly one 1, got %d", i, ones)
		}
	}

	if mutated.At(1, 2) != 1 {
		t.Error("position 1 should encode G after mutation")
	}
	if mutated.At(7, 0) != 1 {
		t.Error("position 7 should encode A after mutation")
	}
}

func TestApplyMutationsErrors(t *testing.T) {
	enc := sequence.Encode("ACGT")
	if _, err := ApplyMutations(enc, []Mutation{{Position: 9, Alt: 'A'}}); err == nil {
		t.Error("expected error for out-of-range position")
	}
	if _, err := ApplyMutations(enc, []Mutation{{Position: 0, Alt: 'X'}}); err == nil {
		t.Error("expected error for unknown base")
	}
}

func TestISMRowID(t *testing.T) {
	seq := "ACGT"
	id := ismRowID(seq, []Mutation{{Position: 0, Alt: 'T'}, {Position: 3, Alt: 'C'}})
	want := RowID{"0;3", "A;T", "T;C"}
	if !reflect.DeepEqual(id, want) {
		t.Errorf("expected %v, got %v", want, id)
	}
}
