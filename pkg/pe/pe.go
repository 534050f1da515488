package pe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
)

// View is the single-cursor byte window the walker reads and patches in
// place. Every read and write moves the same cursor.
type View interface {
	io.ReadWriteSeeker
	Len() int64
	Pos() int64
	SeekTo(offset int64) error
	Skip(n int64) error
	ReadBytes(n int64) ([]byte, error)
	ReadUint16() (uint16, error)
	ReadUint32() (uint32, error)
	ReadInt16() (int16, error)
	ReadInt32() (int32, error)
	Zero(n int64) error
}

type Option func(*Walker)

// WithLogger sets the logger patches are reported to at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Walker) {
		w.logger = logger
	}
}

// WithMaxResourceDepth bounds the recursion into resource subdirectories.
// Well-formed trees are three levels deep (type, name, language).
func WithMaxResourceDepth(depth int) Option {
	return func(w *Walker) {
		if depth > 0 {
			w.maxResourceDepth = depth
		}
	}
}

// Walker zeroes the build-nondeterministic fields of one PE image. A Walker
// can be reused for several images but not concurrently.
type Walker struct {
	logger           *slog.Logger
	maxResourceDepth int

	view        View
	headerEnd   int64
	is64        bool
	directories []DirectoryEntry
	sections    []SectionRecord
	streams     []StreamInfo
	patches     []Patch
}

func NewWalker(opts ...Option) *Walker {
	w := &Walker{
		logger:           slog.Default(),
		maxResourceDepth: defaultMaxResourceDepth,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// IsPEImage reports whether the view starts with the MS-DOS magic. The
// cursor is left where it was.
func IsPEImage(v View) bool {
	pos := v.Pos()
	defer func() {
		_ = v.SeekTo(pos)
	}()

	if err := v.SeekTo(0); err != nil {
		return false
	}
	magic, err := v.ReadUint16()
	return err == nil && magic == IMAGE_DOS_SIGNATURE
}

// Process walks the image and zeroes every nondeterministic field it finds.
// Inputs without the MS-DOS magic yield ErrNotPEImage and are not modified.
// Any other error leaves the image partially patched and must be treated as
// fatal for this file.
func (w *Walker) Process(v View) error {
	w.reset(v)

	if !IsPEImage(v) {
		return ErrNotPEImage
	}

	sectionCount, optionalHeaderSize, err := w.parseFileHeader()
	if err != nil {
		return err
	}

	if optionalHeaderSize > 0 {
		if err = w.parseOptionalHeader(optionalHeaderSize); err != nil {
			return err
		}
	}

	return w.parseSections(w.headerEnd+optionalHeaderSize, sectionCount)
}

func (w *Walker) reset(v View) {
	w.view = v
	w.headerEnd = 0
	w.is64 = false
	w.directories = nil
	w.sections = nil
	w.streams = nil
	w.patches = nil
}

// Directories returns the data directories of the last processed image.
func (w *Walker) Directories() []DirectoryEntry {
	return w.directories
}

func (w *Walker) Sections() []SectionRecord {
	return w.sections
}

// Streams returns the CLI metadata streams, empty for native images.
func (w *Walker) Streams() []StreamInfo {
	return w.streams
}

// Patches returns every overwrite of the last run in walk order.
func (w *Walker) Patches() []Patch {
	return w.patches
}

func (w *Walker) Is64() bool {
	return w.is64
}

// FileTimestamp returns the COFF TimeDateStamp without modifying the view.
// The cursor is left where it was.
func FileTimestamp(v View) (uint32, error) {
	pos := v.Pos()
	defer func() {
		_ = v.SeekTo(pos)
	}()

	if !IsPEImage(v) {
		return 0, ErrNotPEImage
	}
	if err := seekNTHeaders(v); err != nil {
		return 0, err
	}
	// Machine, NumberOfSections
	if err := v.Skip(4); err != nil {
		return 0, err
	}
	return v.ReadUint32()
}

// seekNTHeaders validates the NT signature and leaves the cursor on the COFF
// file header.
func seekNTHeaders(v View) error {
	if err := v.SeekTo(dosLfanewOffset); err != nil {
		return fmt.Errorf("failed to read e_lfanew: %w", err)
	}
	lfanew, err := v.ReadUint32()
	if err != nil {
		return fmt.Errorf("failed to read e_lfanew: %w", err)
	}

	if err = v.SeekTo(int64(lfanew)); err != nil {
		return fmt.Errorf("%w: invalid e_lfanew value 0x%x: %v", ErrMalformedPEFile, lfanew, err)
	}
	signature, err := v.ReadUint32()
	if err != nil {
		return fmt.Errorf("failed to read NT headers signature: %w", err)
	}
	if signature != IMAGE_NT_SIGNATURE {
		return fmt.Errorf("%w: invalid NT headers signature 0x%08x at 0x%x", ErrMalformedPEFile, signature, lfanew)
	}
	return nil
}

func (w *Walker) parseFileHeader() (sectionCount int, optionalHeaderSize int64, err error) {
	if err = seekNTHeaders(w.view); err != nil {
		return 0, 0, err
	}

	// Machine
	if err = w.view.Skip(2); err != nil {
		return 0, 0, err
	}
	count, err := w.view.ReadInt16()
	if err != nil {
		return 0, 0, err
	}
	if count < 0 {
		return 0, 0, fmt.Errorf("%w: negative section count %d", ErrMalformedPEFile, count)
	}
	if err = w.zero(PatchFileTimestamp, 4); err != nil {
		return 0, 0, err
	}
	// PointerToSymbolTable, NumberOfSymbols
	if err = w.view.Skip(8); err != nil {
		return 0, 0, err
	}
	size, err := w.view.ReadInt16()
	if err != nil {
		return 0, 0, err
	}
	if size < 0 {
		return 0, 0, fmt.Errorf("%w: negative optional header size %d", ErrMalformedPEFile, size)
	}
	// Characteristics
	if err = w.view.Skip(2); err != nil {
		return 0, 0, err
	}

	w.headerEnd = w.view.Pos()
	return int(count), int64(size), nil
}

func (w *Walker) parseOptionalHeader(size int64) error {
	magic, err := w.view.ReadUint16()
	if err != nil {
		return fmt.Errorf("failed to read optional header magic: %w", err)
	}

	var countOffset int64
	switch magic {
	case IMAGE_NT_OPTIONAL_HDR32_MAGIC:
		countOffset = optionalHeader32RvaCountOffset
	case IMAGE_NT_OPTIONAL_HDR64_MAGIC:
		countOffset = optionalHeader64RvaCountOffset
		w.is64 = true
	default:
		return fmt.Errorf("%w: magic 0x%x", ErrMalformedOptionalHeader, magic)
	}

	if err = w.view.SeekTo(w.headerEnd + optionalHeaderChecksumOffset); err != nil {
		return err
	}
	if err = w.zero(PatchChecksum, 4); err != nil {
		return err
	}

	if err = w.view.SeekTo(w.headerEnd + countOffset); err != nil {
		return err
	}
	count, err := w.view.ReadInt32()
	if err != nil {
		return fmt.Errorf("failed to read NumberOfRvaAndSizes: %w", err)
	}

	n := int64(uint32(count) & 0x7fffffff)
	if n > IMAGE_NUMBEROF_DIRECTORY_ENTRIES {
		w.logger.Warn("suspicious NumberOfRvaAndSizes in the optional header", "value", count)
		n = IMAGE_NUMBEROF_DIRECTORY_ENTRIES
	}
	// Never read directories past the declared optional header.
	if avail := (size - countOffset - 4) / 8; n > avail {
		n = max(avail, 0)
	}

	w.directories = make([]DirectoryEntry, 0, n)
	for i := int64(0); i < n; i++ {
		va, err := w.view.ReadUint32()
		if err != nil {
			return err
		}
		sz, err := w.view.ReadUint32()
		if err != nil {
			return err
		}
		w.directories = append(w.directories, DirectoryEntry{
			VirtualAddress: va,
			Size:           sz,
			Index:          DirectoryIndex(i),
		})
	}

	return nil
}

func (w *Walker) parseSections(offset int64, count int) error {
	for i := 0; i < count; i++ {
		var header ImageSectionHeader
		if err := w.parseInterface(&header, offset); err != nil {
			return fmt.Errorf("failed to read section header %d: %w", i, err)
		}

		section := newSectionRecord(&header)
		w.sections = append(w.sections, section)

		if err := w.processSection(section); err != nil {
			return fmt.Errorf("section %q: %w", section.Name, err)
		}

		offset += IMAGE_SIZEOF_SECTION_HEADER
	}

	return nil
}

func newSectionRecord(header *ImageSectionHeader) SectionRecord {
	name := header.Name[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return SectionRecord{
		Name:           string(name),
		VirtualSize:    header.Misc_VirtualSize_PhysicalAddress,
		VirtualAddress: header.VirtualAddress,
		RawSize:        header.SizeOfRawData,
		RawOffset:      header.PointerToRawData,
	}
}

// processSection dispatches every directory that lies inside the section.
func (w *Walker) processSection(s SectionRecord) error {
	for _, d := range w.directories {
		if !s.Contains(d) {
			continue
		}

		if err := w.view.SeekTo(s.FileOffset(d.VirtualAddress)); err != nil {
			return fmt.Errorf("%s directory: %w", d.Index, err)
		}

		var err error
		switch d.Index {
		case DirectoryExport:
			err = w.zeroDirectoryTimestamp(PatchExportTimestamp)
		case DirectoryImport:
			err = w.zeroDirectoryTimestamp(PatchImportTimestamp)
		case DirectoryResource:
			err = w.processResourceDirectory(d, s)
		case DirectoryDebug:
			err = w.processDebugDirectory(d)
		case DirectoryCLIHeader:
			err = w.processCLIHeader(s)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("%s directory: %w", d.Index, err)
		}
	}

	return nil
}

// The export directory and the first import descriptor both keep their
// TimeDateStamp right after a 4-byte field.
func (w *Walker) zeroDirectoryTimestamp(kind PatchKind) error {
	if err := w.view.Skip(4); err != nil {
		return err
	}
	return w.zero(kind, 4)
}

// zero overwrites n bytes at the cursor and records the patch.
func (w *Walker) zero(kind PatchKind, n int64) error {
	offset := w.view.Pos()
	if err := w.view.Zero(n); err != nil {
		return fmt.Errorf("failed to erase %s: %w", kind, err)
	}

	w.patches = append(w.patches, Patch{Kind: kind, Offset: offset, Length: n})
	w.logger.Debug("erased field", "field", kind.String(), "offset", offset, "length", n)
	return nil
}

func (w *Walker) parseInterface(iface interface{}, offset int64) error {
	if err := w.view.SeekTo(offset); err != nil {
		return err
	}
	return binaryRead(w.view, iface)
}

func binaryRead(v View, iface interface{}) error {
	return binary.Read(v, binary.LittleEndian, iface)
}
