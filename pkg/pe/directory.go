package pe

import (
	"fmt"
	"strconv"
)

// DirectoryIndex is the slot of a data directory in the optional header.
type DirectoryIndex uint16

const (
	DirectoryExport DirectoryIndex = iota
	DirectoryImport
	DirectoryResource
	DirectoryException
	DirectoryCertificate
	DirectoryBaseReloc
	DirectoryDebug
	DirectoryArchitecture
	DirectoryGlobalPtr
	DirectoryTLS
	DirectoryLoadConfig
	DirectoryBoundImport
	DirectoryIAT
	DirectoryDelayImport
	DirectoryCLIHeader
	DirectoryReserved
)

func (i DirectoryIndex) String() string {
	switch i {
	case DirectoryExport:
		return "Export"
	case DirectoryImport:
		return "Import"
	case DirectoryResource:
		return "Resource"
	case DirectoryException:
		return "Exception"
	case DirectoryCertificate:
		return "Certificate"
	case DirectoryBaseReloc:
		return "BaseReloc"
	case DirectoryDebug:
		return "Debug"
	case DirectoryArchitecture:
		return "Architecture"
	case DirectoryGlobalPtr:
		return "GlobalPtr"
	case DirectoryTLS:
		return "TLS"
	case DirectoryLoadConfig:
		return "LoadConfig"
	case DirectoryBoundImport:
		return "BoundImport"
	case DirectoryIAT:
		return "IAT"
	case DirectoryDelayImport:
		return "DelayImport"
	case DirectoryCLIHeader:
		return "CLIHeader"
	case DirectoryReserved:
		return "Reserved"
	}
	return "Directory(" + strconv.Itoa(int(i)) + ")"
}

// DirectoryEntry describes one data directory slot. It is never modified
// after the optional header has been parsed.
type DirectoryEntry struct {
	VirtualAddress uint32
	Size           uint32
	Index          DirectoryIndex
}

// End returns the first RVA past the directory.
func (d DirectoryEntry) End() uint64 {
	return uint64(d.VirtualAddress) + uint64(d.Size)
}

func (d DirectoryEntry) Empty() bool {
	return d.VirtualAddress == 0 || d.Size == 0
}

func (d DirectoryEntry) String() string {
	return fmt.Sprintf("%s [0x%x, 0x%x)", d.Index, d.VirtualAddress, d.End())
}

// SectionRecord is the file-offset window of one section table row.
type SectionRecord struct {
	Name           string
	VirtualSize    uint32
	VirtualAddress uint32
	RawSize        uint32
	RawOffset      uint32
}

// Span is the virtual extent of the section. Linkers leave VirtualSize at
// zero in some object-derived images, the raw size is used then.
func (s SectionRecord) Span() uint32 {
	if s.VirtualSize == 0 {
		return s.RawSize
	}
	return s.VirtualSize
}

// Contains reports whether the whole directory lies in the section.
func (s SectionRecord) Contains(d DirectoryEntry) bool {
	if d.Empty() {
		return false
	}
	return d.VirtualAddress >= s.VirtualAddress &&
		d.End() <= uint64(s.VirtualAddress)+uint64(s.Span())
}

// FileOffset translates an RVA through this section. The result can be
// negative or past the end of the file for RVAs the section does not hold;
// the view rejects those on seek.
func (s SectionRecord) FileOffset(rva uint32) int64 {
	return int64(rva) - int64(s.VirtualAddress) + int64(s.RawOffset)
}

func (s SectionRecord) String() string {
	return fmt.Sprintf("%-8s va=0x%08x vsize=0x%08x raw=0x%08x rsize=0x%08x",
		s.Name, s.VirtualAddress, s.VirtualSize, s.RawOffset, s.RawSize)
}

// StreamInfo is one row of the CLI metadata stream directory. Offset is
// relative to the metadata root.
type StreamInfo struct {
	Offset uint32
	Size   uint32
	Name   string
}
