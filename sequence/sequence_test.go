package sequence

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeOneHot(t *testing.T) {
	enc := Encode("ACGT")
	rows, cols := enc.Dims()
	if rows != 4 || cols != AlphabetSize {
		t.Fatalf("expected 4x%d encoding, got %dx%d", AlphabetSize, rows, cols)
	}

	for i := 0; i < rows; i++ {
		ones := 0
		for j := 0; j < cols; j++ {
			switch enc.At(i, j) {
			case 1:
				ones++
			case 0:
			default:
				t.Errorf("row %d col %d: unexpected value %f", i, j, enc.At(i, j))
			}
		}
		if ones != 1 {
			t.Errorf("row %d: expected exactly one 1, got %d", i, ones)
		}
		if enc.At(i, i) != 1 {
			t.Errorf("row %d: expected 1 at column %d", i, i)
		}
	}
}

func TestEncodeUnknownBase(t *testing.T) {
	enc := Encode("N")
	for j := 0; j < AlphabetSize; j++ {
		if enc.At(0, j) != 0.25 {
			t.Errorf("column %d: expected 0.25 for unknown base, got %f", j, enc.At(0, j))
		}
	}
}

func TestEncodeLowercase(t *testing.T) {
	enc := Encode("acgt")
	for i := 0; i < 4; i++ {
		if enc.At(i, i) != 1 {
			t.Errorf("lowercase input: row %d expected 1 at column %d", i, i)
		}
	}
}

func TestEncodingToSequence(t *testing.T) {
	tests := []string{"ACGT", "TTTT", "GATTACA"}
	for _, seq := range tests {
		if got := EncodingToSequence(Encode(seq)); got != seq {
			t.Errorf("round trip of %q: got %q", seq, got)
		}
	}

	if got := EncodingToSequence(Encode("ANT")); got != "ANT" {
		t.Errorf("expected N to survive the round trip, got %q", got)
	}
}

func TestReverseComplement(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ACGT", "ACGT"},
		{"AAAA", "TTTT"},
		{"GATTACA", "TGTAATC"},
		{"ANT", "ANT"},
	}
	for _, tt := range tests {
		if got := ReverseComplement(tt.in); got != tt.want {
			t.Errorf("ReverseComplement(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemoryGenomeBounds(t *testing.T) {
	genome := NewMemoryGenome(map[string]string{"chr1": "ACGTACGTAC"})

	tests := []struct {
		chrom      string
		start, end int
		want       bool
	}{
		{"chr1", 0, 10, true},
		{"chr1", 2, 6, true},
		{"chr1", -1, 4, false},
		{"chr1", 5, 11, false},
		{"chr2", 0, 4, false},
	}
	for _, tt := range tests {
		if got := genome.SequenceInBounds(tt.chrom, tt.start, tt.end); got != tt.want {
			t.Errorf("SequenceInBounds(%s, %d, %d) = %v, want %v",
				tt.chrom, tt.start, tt.end, got, tt.want)
		}
	}
}

func TestMemoryGenomeSequenceFromCoords(t *testing.T) {
	genome := NewMemoryGenome(map[string]string{"chr1": "ACGTACGTAC"})

	got, err := genome.SequenceFromCoords("chr1", 2, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "GTAC" {
		t.Errorf("expected GTAC, got %q", got)
	}

	if _, err := genome.SequenceFromCoords("chr1", 8, 12); err == nil {
		t.Error("expected error for out-of-bounds coordinates")
	}
	if _, err := genome.SequenceFromCoords("chrX", 0, 2); err == nil {
		t.Error("expected error for unknown chromosome")
	}
}

func TestReadFASTA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genome.fa")
	content := ">chr1 some description\nACGT\nACGT\n>chr2\nTTTT\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write FASTA fixture: %v", err)
	}

	genome, err := ReadFASTA(path)
	if err != nil {
		t.Fatalf("ReadFASTA failed: %v", err)
	}

	seq, err := genome.SequenceFromCoords("chr1", 0, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seq != "ACGTACGT" {
		t.Errorf("chr1: expected ACGTACGT, got %q", seq)
	}

	seq, err = genome.SequenceFromCoords("chr2", 0, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seq != "TTTT" {
		t.Errorf("chr2: expected TTTT, got %q", seq)
	}
}

func TestReadFASTAErrors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.fa")
	if err := os.WriteFile(empty, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFASTA(empty); err == nil {
		t.Error("expected error for empty FASTA")
	}

	headerless := filepath.Join(dir, "headerless.fa")
	if err := os.WriteFile(headerless, []byte("ACGT\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFASTA(headerless); err == nil {
		t.Error("expected error for sequence data before first header")
	}
}
