package predict

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// VCFRequiredCols are the five leading columns a variant file header must
// declare, in order.
var VCFRequiredCols = []string{"#CHROM", "POS", "ID", "REF", "ALT"}

// Variant is one record from a variant file. Alt may be a comma-separated
// multi-allelic list.
type Variant struct {
	Chrom string
	Pos   int
	Name  string
	Ref   string
	Alt   string
}

// ReadVCF reads the variant records from a VCF file. The file must carry a
// header line whose first five columns are exactly VCFRequiredCols; any
// mismatch fails before inference starts. Data rows with fewer than five
// columns are skipped; extra columns are ignored.
func ReadVCF(path string) ([]Variant, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open variant file: %w", err)
	}
	defer file.Close()

	var variants []Variant
	sawHeader := false

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "#CHROM") {
				cols := strings.Split(line, "\t")
				if len(cols) < len(VCFRequiredCols) {
					return nil, fmt.Errorf("variant file %s header has %d columns, expected at least %d",
						path, len(cols), len(VCFRequiredCols))
				}
				for i, want := range VCFRequiredCols {
					if cols[i] != want {
						return nil, fmt.Errorf("variant file %s: header column %d is %q, expected %q",
							path, i, cols[i], want)
					}
				}
				sawHeader = true
			}
			continue
		}

		if !sawHeader {
			return nil, fmt.Errorf("variant file %s has no %s header line", path, VCFRequiredCols[0])
		}

		cols := strings.Split(line, "\t")
		if len(cols) < 5 {
			continue
		}
		pos, err := strconv.Atoi(cols[1])
		if err != nil {
			return nil, fmt.Errorf("variant file %s: invalid POS %q: %w", path, cols[1], err)
		}
		variants = append(variants, Variant{
			Chrom: cols[0],
			Pos:   pos,
			Name:  cols[2],
			Ref:   cols[3],
			Alt:   cols[4],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read variant file: %w", err)
	}
	return variants, nil
}
