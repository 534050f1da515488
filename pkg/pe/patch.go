package pe

import "fmt"

// PatchKind names the field a patch erased.
type PatchKind int

const (
	PatchFileTimestamp PatchKind = iota
	PatchChecksum
	PatchExportTimestamp
	PatchImportTimestamp
	PatchDebugTimestamp
	PatchCodeViewGUID
	PatchCodeViewAge
	PatchStrongNameSignature
	PatchGUIDHeap
	PatchResourceTimestamp
	PatchTypeLibDate
	PatchFixedFileVersion
	PatchFixedProductVersion
	PatchFixedFileDate
	PatchVersionString
)

var patchKindNames = map[PatchKind]string{
	PatchFileTimestamp:       "file-timestamp",
	PatchChecksum:            "checksum",
	PatchExportTimestamp:     "export-timestamp",
	PatchImportTimestamp:     "import-timestamp",
	PatchDebugTimestamp:      "debug-timestamp",
	PatchCodeViewGUID:        "codeview-guid",
	PatchCodeViewAge:         "codeview-age",
	PatchStrongNameSignature: "strong-name-signature",
	PatchGUIDHeap:            "guid-heap",
	PatchResourceTimestamp:   "resource-timestamp",
	PatchTypeLibDate:         "typelib-date",
	PatchFixedFileVersion:    "fixed-file-version",
	PatchFixedProductVersion: "fixed-product-version",
	PatchFixedFileDate:       "fixed-file-date",
	PatchVersionString:       "version-string",
}

func (k PatchKind) String() string {
	if name, ok := patchKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("patch(%d)", int(k))
}

// Patch records one zero-fill the walker performed.
type Patch struct {
	Kind   PatchKind
	Offset int64
	Length int64
}

func (p Patch) String() string {
	return fmt.Sprintf("%s at 0x%x (%d bytes)", p.Kind, p.Offset, p.Length)
}
