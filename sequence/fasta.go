package sequence

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadFASTA loads a FASTA file into a MemoryGenome. Record names are taken
// from the first whitespace-delimited token of each header line.
func ReadFASTA(path string) (*MemoryGenome, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FASTA file: %w", err)
	}
	defer file.Close()

	chroms := make(map[string]string)
	var name string
	var seq strings.Builder

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			if name != "" {
				chroms[name] = seq.String()
			}
			name = strings.Fields(line[1:])[0]
			seq.Reset()
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("FASTA file %s: sequence data before first header", path)
		}
		seq.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read FASTA file: %w", err)
	}
	if name != "" {
		chroms[name] = seq.String()
	}
	if len(chroms) == 0 {
		return nil, fmt.Errorf("FASTA file %s contains no records", path)
	}

	return NewMemoryGenome(chroms), nil
}
