package pe

import (
	"fmt"
)

// processDebugDirectory erases the timestamps of the debug directory entries
// and the GUID and age of their CodeView PDB 7.0 records. The first entry
// must be CodeView; further entries of other types (POGO, VC_FEATURE,
// REPRO...) only lose their timestamp.
func (w *Walker) processDebugDirectory(d DirectoryEntry) error {
	start := w.view.Pos()

	count := int64(d.Size) / IMAGE_SIZEOF_DEBUG_DIRECTORY
	if count == 0 {
		count = 1
	}

	for i := int64(0); i < count; i++ {
		offset := start + i*IMAGE_SIZEOF_DEBUG_DIRECTORY

		var entry ImageDebugDirectory
		if err := w.parseInterface(&entry, offset); err != nil {
			return fmt.Errorf("failed to read debug directory %d: %w", i, err)
		}

		// Characteristics
		if err := w.view.SeekTo(offset + 4); err != nil {
			return err
		}
		if err := w.zero(PatchDebugTimestamp, 4); err != nil {
			return err
		}

		if entry.Type != IMAGE_DEBUG_TYPE_CODEVIEW {
			if i == 0 {
				return fmt.Errorf("%w: type %d", ErrUnsupportedDebugFormat, entry.Type)
			}
			continue
		}

		if err := w.processCodeView(int64(int32(entry.PointerToRawData))); err != nil {
			return err
		}
	}

	return nil
}

func (w *Walker) processCodeView(offset int64) error {
	var info CvInfoPdb70
	if err := w.parseInterface(&info.CvSignature, offset); err != nil {
		return fmt.Errorf("failed to read CodeView signature: %w", err)
	}
	if info.CvSignature != CV_PDB_70_SIGNATURE {
		return fmt.Errorf("%w: signature 0x%08x at 0x%x", ErrUnsupportedCodeViewFormat, info.CvSignature, offset)
	}

	if err := w.parseInterface(&info, offset); err != nil {
		return fmt.Errorf("failed to read PDB 7.0 record: %w", err)
	}
	guid := GuidFromWindowsArray(info.Signature)
	w.logger.Debug("erasing PDB signature",
		"guid", guid.String(), "age", info.Age, "already_erased", guid.IsZero() && info.Age == 0)

	if err := w.view.SeekTo(offset + 4); err != nil {
		return err
	}
	if err := w.zero(PatchCodeViewGUID, guidSize); err != nil {
		return err
	}
	return w.zero(PatchCodeViewAge, 4)
}
