package predict

import (
	"os"
	"path/filepath"
	"testing"
)

func writeVCF(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "variants.vcf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write VCF fixture: %v", err)
	}
	return path
}

func TestReadVCF(t *testing.T) {
	path := writeVCF(t, "##fileformat=VCFv4.2\n"+
		"#CHROM\tPOS\tID\tREF\tALT\n"+
		"chr1\t100\trs1\tA\tT\n"+
		"chr2\t250\trs2\tG\tC,A\textra\tcolumns\n")

	variants, err := ReadVCF(path)
	if err != nil {
		t.Fatalf("ReadVCF failed: %v", err)
	}
	if len(variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(variants))
	}

	if variants[0].Chrom != "chr1" || variants[0].Pos != 100 ||
		variants[0].Name != "rs1" || variants[0].Ref != "A" || variants[0].Alt != "T" {
		t.Errorf("unexpected first variant: %+v", variants[0])
	}
	if variants[1].Alt != "C,A" {
		t.Errorf("multi-allelic ALT should be preserved, got %q", variants[1].Alt)
	}
}

func TestReadVCFSkipsShortRows(t *testing.T) {
	path := writeVCF(t, "#CHROM\tPOS\tID\tREF\tALT\n"+
		"chr1\t100\trs1\n"+
		"chr1\t200\trs2\tA\tG\n")

	variants, err := ReadVCF(path)
	if err != nil {
		t.Fatalf("ReadVCF failed: %v", err)
	}
	if len(variants) != 1 {
		t.Fatalf("expected 1 variant, got %d", len(variants))
	}
	if variants[0].Pos != 200 {
		t.Errorf("expected the complete row to survive, got %+v", variants[0])
	}
}

func TestReadVCFHeaderMismatch(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "wrong column order",
			content: "#CHROM\tID\tPOS\tREF\tALT\nchr1\trs1\t100\tA\tT\n",
		},
		{
			name:    "missing columns",
			content: "#CHROM\tPOS\tID\n",
		},
		{
			name:    "no header at all",
			content: "chr1\t100\trs1\tA\tT\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeVCF(t, tt.content)
			if _, err := ReadVCF(path); err == nil {
				t.Error("expected header validation error")
			}
		})
	}
}

func TestReadVCFInvalidPos(t *testing.T) {
	path := writeVCF(t, "#CHROM\tPOS\tID\tREF\tALT\nchr1\tnotanumber\trs1\tA\tT\n")
	if _, err := ReadVCF(path); err == nil {
		t.Error("expected error for non-numeric POS")
	}
}
