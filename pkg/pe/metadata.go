package pe

import (
	"bytes"
	"fmt"
)

const (
	maxStreamNameLength = 32

	guidStreamName   = "#GUID"
	tablesStreamName = "#~"
)

// processCLIHeader erases the strong-name signature and the #GUID heap of a
// managed image. The cursor must be at the CLI header, which lies in s.
func (w *Walker) processCLIHeader(s SectionRecord) error {
	// cb, MajorRuntimeVersion, MinorRuntimeVersion
	if err := w.view.Skip(8); err != nil {
		return err
	}
	metadataRVA, err := w.view.ReadInt32()
	if err != nil {
		return err
	}
	metadataSize, err := w.view.ReadInt32()
	if err != nil {
		return err
	}
	// Flags, EntryPointToken, Resources
	if err = w.view.Skip(16); err != nil {
		return err
	}
	strongNameRVA, err := w.view.ReadInt32()
	if err != nil {
		return err
	}
	strongNameSize, err := w.view.ReadInt32()
	if err != nil {
		return err
	}

	if strongNameSize > 0 {
		if err = w.view.SeekTo(s.FileOffset(uint32(strongNameRVA))); err != nil {
			return fmt.Errorf("strong name signature: %w", err)
		}
		if err = w.zero(PatchStrongNameSignature, int64(strongNameSize)); err != nil {
			return err
		}
	}

	if metadataSize > 0 {
		return w.processMetadataRoot(s.FileOffset(uint32(metadataRVA)))
	}

	return nil
}

func (w *Walker) processMetadataRoot(root int64) error {
	if err := w.view.SeekTo(root); err != nil {
		return fmt.Errorf("metadata root: %w", err)
	}
	signature, err := w.view.ReadUint32()
	if err != nil {
		return err
	}
	if signature != COR20_METADATA_SIGNATURE {
		return fmt.Errorf("%w: 0x%08x at 0x%x", ErrInvalidMetadataSignature, signature, root)
	}

	// MajorVersion, MinorVersion, Reserved
	if err = w.view.SeekTo(root + 12); err != nil {
		return err
	}
	versionLength, err := w.view.ReadInt32()
	if err != nil {
		return err
	}
	if versionLength < 0 {
		return fmt.Errorf("%w: version length %d at 0x%x", ErrMalformedMetadata, versionLength, root+12)
	}
	// Version string and Flags
	if err = w.view.Skip(int64(versionLength) + 2); err != nil {
		return fmt.Errorf("metadata version string: %w", err)
	}
	streamCount, err := w.view.ReadInt16()
	if err != nil {
		return err
	}
	if streamCount < 0 {
		return fmt.Errorf("%w: stream count %d", ErrMalformedMetadata, streamCount)
	}

	for i := 0; i < int(streamCount); i++ {
		stream, err := w.readStreamInfo()
		if err != nil {
			return fmt.Errorf("stream header %d: %w", i, err)
		}
		w.streams = append(w.streams, stream)

		next := w.view.Pos()
		if err = w.processStream(root, stream); err != nil {
			return fmt.Errorf("stream %s: %w", stream.Name, err)
		}
		if err = w.view.SeekTo(next); err != nil {
			return err
		}
	}

	return nil
}

func (w *Walker) readStreamInfo() (StreamInfo, error) {
	var stream StreamInfo
	var err error

	if stream.Offset, err = w.view.ReadUint32(); err != nil {
		return stream, err
	}
	if stream.Size, err = w.view.ReadUint32(); err != nil {
		return stream, err
	}

	nameStart := w.view.Pos()
	window := min(int64(maxStreamNameLength), w.view.Len()-nameStart)
	raw, err := w.view.ReadBytes(window)
	if err != nil {
		return stream, err
	}
	n := bytes.IndexByte(raw, 0)
	if n < 0 {
		n = len(raw)
	}
	stream.Name = string(raw[:n])

	return stream, w.view.SeekTo(nameStart + streamNamePadding(int64(n)))
}

func (w *Walker) processStream(root int64, stream StreamInfo) error {
	switch stream.Name {
	case guidStreamName:
		blocks := int64(stream.Size) / guidSize
		if blocks == 0 {
			return nil
		}
		if err := w.view.SeekTo(root + int64(stream.Offset)); err != nil {
			return err
		}
		return w.zero(PatchGUIDHeap, blocks*guidSize)

	case tablesStreamName:
		// The tables stream holds the module MVID index only; the GUID
		// itself lives in #GUID. Nothing here is rewritten.
		var header MetadataTablesHeader
		if err := w.parseInterface(&header, root+int64(stream.Offset)); err != nil {
			return err
		}
		w.logger.Debug("metadata tables stream",
			"version", fmt.Sprintf("%d.%d", header.MajorVersion, header.MinorVersion),
			"heap_sizes", header.HeapSizes,
			"valid", fmt.Sprintf("0x%016x", header.Valid))
	}

	return nil
}
