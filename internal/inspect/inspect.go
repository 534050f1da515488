// Package inspect reads back the fields the normalizer erases, through an
// independent PE parser, so a normalized file can be checked.
package inspect

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	gope "github.com/Velocidex/go-pe"

	"penormalize/pkg/mapview"
	"penormalize/pkg/pe"
)

// Report lists the build-dependent values of one image.
type Report struct {
	Path      string
	Machine   string
	Timestamp uint32
	PDB       string
	GUIDAge   string
	Version   map[string]string
}

// volatileVersionKeys are the version strings that change from build to build.
var volatileVersionKeys = []string{"FileVersion", "ProductVersion"}

// File maps path read-only and reports on it.
func File(path string) (*Report, error) {
	v, err := mapview.Open(path, mapview.CopyOnWrite)
	if err != nil {
		return nil, err
	}
	defer v.Close()

	return Read(path, v.Bytes())
}

// Read reports on an image held in memory. The raw COFF timestamp comes from
// the normalizer's own header parsing, everything else from go-pe.
func Read(path string, data []byte) (*Report, error) {
	timestamp, err := pe.FileTimestamp(mapview.New(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	pefile, err := gope.NewPEFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &Report{
		Path:      path,
		Machine:   pefile.Machine,
		Timestamp: timestamp,
		PDB:       pefile.PDB,
		GUIDAge:   pefile.GUIDAge,
		Version:   pefile.VersionInformation,
	}, nil
}

// Residue returns the names of build-dependent fields that still hold a
// value. It is empty for a normalized image.
func (r *Report) Residue() []string {
	var residue []string
	if r.Timestamp != 0 {
		residue = append(residue, "TimeDateStamp")
	}
	if strings.Trim(r.GUIDAge, "0-{}") != "" {
		residue = append(residue, "GUIDAge")
	}
	for _, key := range volatileVersionKeys {
		if strings.Trim(r.Version[key], "\x00") != "" {
			residue = append(residue, key)
		}
	}
	return residue
}

func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", r.Path)
	fmt.Fprintf(&b, "  Machine:       %s\n", r.Machine)
	fmt.Fprintf(&b, "  TimeDateStamp: 0x%08x\n", r.Timestamp)
	if r.PDB != "" {
		fmt.Fprintf(&b, "  PDB:           %s\n", r.PDB)
		fmt.Fprintf(&b, "  GUID/Age:      %s\n", r.GUIDAge)
	}
	for _, key := range slices.Sorted(maps.Keys(r.Version)) {
		fmt.Fprintf(&b, "  %-14s %s\n", key+":", r.Version[key])
	}
	if residue := r.Residue(); len(residue) > 0 {
		fmt.Fprintf(&b, "  not normalized: %s\n", strings.Join(residue, ", "))
	} else {
		fmt.Fprintf(&b, "  normalized\n")
	}

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
