package pe

import (
	"fmt"
)

const (
	stringFileInfoKey = "StringFileInfo"

	// Size of VS_VERSIONINFO's key "VS_VERSION_INFO\0" plus padding.
	versionInfoKeySize = 34

	minVersionBlockSize = 6
)

// Version strings rewritten on every build.
var volatileVersionKeys = map[string]bool{
	"FileVersion":    true,
	"ProductVersion": true,
}

type versionBlock struct {
	VersionInfoBlock
	Key   string
	start int64
}

func (b versionBlock) end() int64 {
	return b.start + int64(b.Length)
}

// readVersionBlock reads the common header of StringFileInfo, StringTable
// and String records and leaves the cursor at the aligned value.
func (rw *resourceWalker) readVersionBlock() (versionBlock, error) {
	v := rw.w.view
	b := versionBlock{start: v.Pos()}

	if err := binaryRead(v, &b.VersionInfoBlock); err != nil {
		return b, err
	}
	key, err := readUTF16Z(v)
	if err != nil {
		return b, fmt.Errorf("version block key at 0x%x: %w", b.start, err)
	}
	b.Key = key

	return b, alignAdditive(v)
}

// processVersionInfo erases the binary version fields of VS_FIXEDFILEINFO
// and the FileVersion and ProductVersion strings of every string table.
func (rw *resourceWalker) processVersionInfo() error {
	v := rw.w.view
	start := v.Pos()

	var header VersionInfoBlock
	if err := binaryRead(v, &header); err != nil {
		return fmt.Errorf("VS_VERSIONINFO: %w", err)
	}
	if err := v.Skip(versionInfoKeySize); err != nil {
		return err
	}

	signature, err := v.ReadUint32()
	if err != nil {
		return err
	}
	if signature != VS_FFI_SIGNATURE {
		return fmt.Errorf("%w: 0x%08x at 0x%x", ErrInvalidVersionInfoSignature, signature, v.Pos()-4)
	}

	// dwStrucVersion
	if err = v.Skip(4); err != nil {
		return err
	}
	if err = rw.w.zero(PatchFixedFileVersion, 8); err != nil {
		return err
	}
	if err = rw.w.zero(PatchFixedProductVersion, 8); err != nil {
		return err
	}
	// dwFileFlagsMask, dwFileFlags, dwFileOS, dwFileType, dwFileSubtype
	if err = v.Skip(20); err != nil {
		return err
	}
	if err = rw.w.zero(PatchFixedFileDate, 8); err != nil {
		return err
	}
	if err = alignAdditive(v); err != nil {
		return err
	}

	return rw.processChildFileInfo(start + int64(header.Length))
}

// processChildFileInfo walks the StringFileInfo and VarFileInfo children of
// VS_VERSIONINFO up to end.
func (rw *resourceWalker) processChildFileInfo(end int64) error {
	v := rw.w.view

	for v.Pos()+minVersionBlockSize <= end {
		child, err := rw.readVersionBlock()
		if err != nil {
			return err
		}
		if child.Length == 0 {
			return nil
		}

		if child.Key == stringFileInfoKey {
			if err = rw.processStringFileInfo(child.end()); err != nil {
				return err
			}
		}

		if err = v.SeekTo(child.end()); err != nil {
			return err
		}
		if err = alignAdditive(v); err != nil {
			return err
		}
	}

	return nil
}

// processStringFileInfo walks the string tables (one per language and code
// page) of a StringFileInfo block.
func (rw *resourceWalker) processStringFileInfo(end int64) error {
	v := rw.w.view

	for v.Pos()+minVersionBlockSize <= end {
		table, err := rw.readVersionBlock()
		if err != nil {
			return err
		}
		if table.Length == 0 {
			return nil
		}

		for v.Pos()+minVersionBlockSize <= table.end() {
			if err = rw.processString(); err != nil {
				return fmt.Errorf("string table %s: %w", table.Key, err)
			}
		}

		if err = v.SeekTo(table.end()); err != nil {
			return err
		}
		if err = alignAdditive(v); err != nil {
			return err
		}
	}

	return nil
}

func (rw *resourceWalker) processString() error {
	v := rw.w.view

	str, err := rw.readVersionBlock()
	if err != nil {
		return err
	}

	size := int64(str.ValueLength) * 2
	if volatileVersionKeys[str.Key] {
		err = rw.w.zero(PatchVersionString, size)
	} else {
		err = v.Skip(size)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", str.Key, err)
	}

	return alignAdditive(v)
}
