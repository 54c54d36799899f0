package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSnapshot(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "node1.tsv",
		"2022-10-09T15:05:18.209288+02:00\tc1-5\t64\tbob\tfirefox\t150.5\t1024\tnn9999k\t123456\t16\t4G\n"+
			"2022-10-09T15:05:18.209288+02:00\tc1-5\t64\talice\tslack\t10.0\t512\t-\t-\t-\t-\n")
	writeSnapshot(t, dir, "node2.tsv",
		// Early collector format without scheduler columns.
		"2022-10-10T08:00:00+02:00\tc1-6\t8\tbob\tslack\t5.0\t-\n")
	writeSnapshot(t, dir, "ignored.csv",
		"this file does not match the suffix and is never parsed\n")

	records, err := ReadDir(dir, ".tsv", '\t')
	require.NoError(t, err)
	require.Len(t, records, 3)

	rec := records[0]
	assert.Equal(t, "c1-5", rec.Hostname)
	assert.Equal(t, 64, rec.CoresOnNode)
	assert.Equal(t, "bob", rec.User)
	assert.Equal(t, "firefox", rec.Process)
	assert.Equal(t, 150.5, rec.CPUPercent)
	assert.Equal(t, "nn9999k", rec.Project)
	assert.Equal(t, "123456", rec.JobID)
	assert.Equal(t, "2022-10-09", rec.Timestamp.Format("2006-01-02"))
	require.NotNil(t, rec.MemUsedMB)
	assert.Equal(t, 1024.0, *rec.MemUsedMB)
	require.NotNil(t, rec.RequestedCores)
	assert.Equal(t, 16, *rec.RequestedCores)
	require.NotNil(t, rec.RequestedMemMB)
	assert.Equal(t, 4000.0, *rec.RequestedMemMB, "4G should normalize to 4000 MB")

	rec = records[1]
	assert.Equal(t, NoJobContext, rec.Project, "dash sentinel means no job context")
	assert.Nil(t, rec.RequestedCores)
	assert.Nil(t, rec.RequestedMemMB)

	rec = records[2]
	assert.Equal(t, "slack", rec.Process)
	assert.Nil(t, rec.MemUsedMB)
	assert.Nil(t, rec.RequestedCores)
}

func TestReadDirBadNumericIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "node1.tsv",
		"2022-10-09T15:05:18+02:00\tc1-5\t64\tbob\tfirefox\tnot-a-number\t1024\t-\t-\t-\t-\n")

	_, err := ReadDir(dir, ".tsv", '\t')
	assert.Error(t, err, "a malformed numeric field aborts the whole run")
}

func TestReadDirBadColumnCount(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "node1.tsv",
		"2022-10-09T15:05:18+02:00\tc1-5\t64\n")

	_, err := ReadDir(dir, ".tsv", '\t')
	assert.Error(t, err)
}

func TestReadDirMissingDirectory(t *testing.T) {
	_, err := ReadDir(filepath.Join(t.TempDir(), "missing"), ".tsv", '\t')
	assert.Error(t, err)
}

func TestParseMemMB(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"512", 512},
		{"4000M", 4000},
		{"4000m", 4000},
		{"4G", 4000},
		{"1.5G", 1500},
	}
	for _, tt := range tests {
		got, err := ParseMemMB(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}

	_, err := ParseMemMB("lots")
	assert.Error(t, err)
}
