package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Snapshot rows carry a fixed column order. Early collector versions wrote
// only the first seven columns; rows collected with scheduler support carry
// all eleven.
const (
	numBaseColumns = 7
	numColumns     = 11
)

// ReadDir reads every snapshot file in dir whose name ends in suffix and
// returns the parsed records in file order. A row whose numeric fields do not
// parse aborts the whole read: numeric corruption means the file's schema
// cannot be trusted, so there is no partial-row recovery.
func ReadDir(dir, suffix string, delimiter rune) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory %s: %w", dir, err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		recs, err := readFile(path, delimiter)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}

	return records, nil
}

func readFile(path string, delimiter rune) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records []Record
	for line := 1; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func parseRow(row []string) (Record, error) {
	var rec Record

	if len(row) != numBaseColumns && len(row) != numColumns {
		return rec, fmt.Errorf("expected %d or %d columns, got %d", numBaseColumns, numColumns, len(row))
	}

	ts, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		return rec, fmt.Errorf("invalid timestamp %q: %w", row[0], err)
	}

	cores, err := strconv.Atoi(row[2])
	if err != nil {
		return rec, fmt.Errorf("invalid cores-on-node %q: %w", row[2], err)
	}

	cpu, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return rec, fmt.Errorf("invalid cpu percentage %q: %w", row[5], err)
	}

	rec = Record{
		Timestamp:   ts,
		Hostname:    row[1],
		CoresOnNode: cores,
		User:        row[3],
		Process:     row[4],
		CPUPercent:  cpu,
		Project:     NoJobContext,
		JobID:       NoJobContext,
	}

	if present(row[6]) {
		mem, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			return rec, fmt.Errorf("invalid memory %q: %w", row[6], err)
		}
		rec.MemUsedMB = &mem
	}

	if len(row) == numBaseColumns {
		return rec, nil
	}

	rec.Project = row[7]
	rec.JobID = row[8]

	if present(row[9]) {
		n, err := strconv.Atoi(row[9])
		if err != nil {
			return rec, fmt.Errorf("invalid requested cores %q: %w", row[9], err)
		}
		rec.RequestedCores = &n
	}

	if present(row[10]) {
		mb, err := ParseMemMB(row[10])
		if err != nil {
			return rec, fmt.Errorf("invalid requested memory %q: %w", row[10], err)
		}
		rec.RequestedMemMB = &mb
	}

	return rec, nil
}

func present(field string) bool {
	return field != "" && field != NoJobContext
}

// ParseMemMB normalizes a memory magnitude to MB. The scheduler reports
// values with an optional unit suffix: M is taken literally, G as 1000 MB.
func ParseMemMB(s string) (float64, error) {
	factor := 1.0
	switch {
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "G"), strings.HasSuffix(s, "g"):
		s = s[:len(s)-1]
		factor = 1000.0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return v * factor, nil
}
