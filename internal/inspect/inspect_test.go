package inspect

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"penormalize/pkg/mapview"
	"penormalize/pkg/pe"
)

// testdata/app64.dll is a PE32+ image with a CodeView record, CLI metadata,
// a TYPELIB resource and version info, all holding build-dependent values.
const fixture = "testdata/app64.dll"

func TestReadBeforeAndAfterNormalize(t *testing.T) {
	data, err := os.ReadFile(fixture)
	require.NoError(t, err)

	before, err := Read(fixture, data)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x5F000003), before.Timestamp)
	assert.Equal(t, "app.pdb", before.PDB)
	assert.Equal(t, "1.2.3.5", before.Version["FileVersion"])
	assert.Equal(t, "built on Tuesday", before.Version["Comments"])
	assert.Equal(t, []string{"TimeDateStamp", "GUIDAge", "FileVersion", "ProductVersion"}, before.Residue())

	w := pe.NewWalker(pe.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, w.Process(mapview.New(data)))

	after, err := Read(fixture, data)
	require.NoError(t, err)
	assert.Zero(t, after.Timestamp)
	assert.Equal(t, "app.pdb", after.PDB)
	assert.Equal(t, "built on Tuesday", after.Version["Comments"])
	assert.Empty(t, after.Residue())
}

func TestFile(t *testing.T) {
	data, err := os.ReadFile(fixture)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "app64.dll")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	report, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, path, report.Path)
	assert.NotEmpty(t, report.Residue())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got, "inspecting must not modify the file")
}

func TestReadNotPE(t *testing.T) {
	_, err := Read("build.sh", []byte("#!/bin/sh\n"))
	assert.ErrorIs(t, err, pe.ErrNotPEImage)
}

func TestReportResidue(t *testing.T) {
	for _, tc := range []struct {
		name   string
		report Report
		want   []string
	}{
		{
			name:   "normalized",
			report: Report{GUIDAge: "000000000000000000000000000000000", Version: map[string]string{"FileVersion": "", "CompanyName": "Example"}},
		},
		{
			name:   "native build",
			report: Report{Timestamp: 0x5F5E1000, GUIDAge: "6E4A1B2C3D4E5F60718293A4B5C6D7E81"},
			want:   []string{"TimeDateStamp", "GUIDAge"},
		},
		{
			name:   "version strings",
			report: Report{Version: map[string]string{"FileVersion": "1.2.3.4", "ProductVersion": "\x00\x00"}},
			want:   []string{"FileVersion"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.report.Residue())
		})
	}
}

func TestReportWriteTo(t *testing.T) {
	r := &Report{
		Path:      "app.exe",
		Machine:   "IMAGE_FILE_MACHINE_AMD64",
		Timestamp: 0x61000000,
		Version:   map[string]string{"ProductVersion": "2.0", "CompanyName": "Example"},
	}

	var buf bytes.Buffer
	n, err := r.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	out := buf.String()
	assert.Contains(t, out, "TimeDateStamp: 0x61000000")
	assert.NotContains(t, out, "PDB:")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("CompanyName")), bytes.Index(buf.Bytes(), []byte("ProductVersion")))
	assert.Contains(t, out, "not normalized: TimeDateStamp, ProductVersion")
}

func TestFileMissing(t *testing.T) {
	_, err := File("does-not-exist.exe")
	assert.Error(t, err)
}
