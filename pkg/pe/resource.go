package pe

import (
	"fmt"
	"strconv"
)

// ResourceKey identifies one level of the resource tree by numeric ID or
// by name.
type ResourceKey struct {
	ID   uint32
	Name string

	named bool
}

func ResourceID(id uint32) ResourceKey {
	return ResourceKey{ID: id}
}

func ResourceName(name string) ResourceKey {
	return ResourceKey{Name: name, named: true}
}

func (k ResourceKey) IsID(id uint32) bool {
	return !k.named && k.ID == id
}

func (k ResourceKey) IsName(name string) bool {
	return k.named && k.Name == name
}

func (k ResourceKey) String() string {
	if k.named {
		return strconv.Quote(k.Name)
	}
	return strconv.FormatUint(uint64(k.ID), 10)
}

// resourceTypeStack is the (type, name, language) path from the root to
// the current entry.
type resourceTypeStack []ResourceKey

func (s *resourceTypeStack) push(k ResourceKey) {
	*s = append(*s, k)
}

func (s *resourceTypeStack) pop() {
	*s = (*s)[:len(*s)-1]
}

// root returns the resource type, the first key pushed.
func (s resourceTypeStack) root() (ResourceKey, bool) {
	if len(s) == 0 {
		return ResourceKey{}, false
	}
	return s[0], true
}

type resourceWalker struct {
	w *Walker

	// base is the file offset of the root directory table, rva its RVA.
	// Every offset inside the tree is relative to base, data entries hold
	// RVAs.
	base  int64
	rva   uint32
	stack resourceTypeStack
	depth int
}

func (w *Walker) processResourceDirectory(d DirectoryEntry, s SectionRecord) error {
	rw := &resourceWalker{
		w:    w,
		base: s.FileOffset(d.VirtualAddress),
		rva:  d.VirtualAddress,
	}
	if err := w.view.SeekTo(rw.base); err != nil {
		return err
	}
	return rw.processDirectoryTable()
}

func (rw *resourceWalker) processDirectoryTable() error {
	rw.depth++
	defer func() {
		rw.depth--
	}()
	if rw.depth > rw.w.maxResourceDepth {
		return fmt.Errorf("%w: more than %d levels at 0x%x", ErrResourceTreeTooDeep, rw.w.maxResourceDepth, rw.w.view.Pos())
	}

	v := rw.w.view

	// Characteristics
	if err := v.Skip(4); err != nil {
		return err
	}
	if err := rw.w.zero(PatchResourceTimestamp, 4); err != nil {
		return err
	}
	// MajorVersion, MinorVersion
	if err := v.Skip(4); err != nil {
		return err
	}
	nameEntries, err := v.ReadUint16()
	if err != nil {
		return err
	}
	idEntries, err := v.ReadUint16()
	if err != nil {
		return err
	}

	// Named entries always precede ID entries.
	for i := 0; i < int(nameEntries); i++ {
		if err = rw.processDirectoryEntry(false); err != nil {
			return err
		}
	}
	for i := 0; i < int(idEntries); i++ {
		if err = rw.processDirectoryEntry(true); err != nil {
			return err
		}
	}

	return nil
}

// processDirectoryEntry handles the 8-byte entry at the cursor and leaves the
// cursor on the next entry.
func (rw *resourceWalker) processDirectoryEntry(isID bool) error {
	v := rw.w.view
	entry := v.Pos()

	key, err := rw.readEntryKey(isID)
	if err != nil {
		return err
	}
	rw.stack.push(key)
	defer rw.stack.pop()

	if err = v.SeekTo(entry + 4); err != nil {
		return err
	}
	offset, err := v.ReadUint32()
	if err != nil {
		return err
	}

	if offset&0x80000000 != 0 {
		if err = v.SeekTo(rw.base + int64(offset&0x7fffffff)); err != nil {
			return fmt.Errorf("resource subdirectory %s: %w", key, err)
		}
		err = rw.processDirectoryTable()
	} else {
		if err = v.SeekTo(rw.base + int64(offset)); err != nil {
			return fmt.Errorf("resource data entry %s: %w", key, err)
		}
		err = rw.processDataEntry()
	}
	if err != nil {
		return err
	}

	return v.SeekTo(entry + 8)
}

func (rw *resourceWalker) readEntryKey(isID bool) (ResourceKey, error) {
	v := rw.w.view

	value, err := v.ReadUint32()
	if err != nil {
		return ResourceKey{}, err
	}
	if isID {
		return ResourceID(value), nil
	}

	if err = v.SeekTo(rw.base + int64(value&0x7fffffff)); err != nil {
		return ResourceKey{}, fmt.Errorf("resource name: %w", err)
	}
	length, err := v.ReadUint16()
	if err != nil {
		return ResourceKey{}, err
	}
	raw, err := v.ReadBytes(int64(length) * 2)
	if err != nil {
		return ResourceKey{}, fmt.Errorf("resource name: %w", err)
	}
	name, err := decodeUTF16(raw)
	if err != nil {
		return ResourceKey{}, fmt.Errorf("resource name: %w", err)
	}
	return ResourceName(name), nil
}

func (rw *resourceWalker) processDataEntry() error {
	var entry ImageResourceDataEntry
	if err := binaryRead(rw.w.view, &entry); err != nil {
		return fmt.Errorf("resource data entry: %w", err)
	}

	absolute := rw.base + int64(entry.OffsetToData) - int64(rw.rva)
	if err := rw.w.view.SeekTo(absolute); err != nil {
		return fmt.Errorf("resource data at RVA 0x%x: %w", entry.OffsetToData, err)
	}

	typ, ok := rw.stack.root()
	switch {
	case !ok:
		return nil
	case typ.IsName(typeLibResourceName):
		return rw.processTypeLib(absolute, int64(entry.Size))
	case typ.IsID(RT_VERSION):
		return rw.processVersionInfo()
	}

	return nil
}

var midlBannerSearcher = NewSearcher(midlBannerMarker)

// processTypeLib erases the generation date MIDL writes into the banner of
// an embedded type library.
func (rw *resourceWalker) processTypeLib(absolute, size int64) error {
	blob, err := rw.w.view.ReadBytes(size)
	if err != nil {
		return fmt.Errorf("type library: %w", err)
	}

	p := midlBannerSearcher.Index(blob, 0)
	if p < 0 {
		return nil
	}

	if err = rw.w.view.SeekTo(absolute + int64(p) + midlBannerDateOffset); err != nil {
		return fmt.Errorf("type library banner: %w", err)
	}
	return rw.w.zero(PatchTypeLibDate, midlBannerDateLength)
}
