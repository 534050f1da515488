package pe

//noinspection GoSnakeCaseUsage
const (
	IMAGE_DOS_SIGNATURE = 0x5A4D     // MZ
	IMAGE_NT_SIGNATURE  = 0x00004550 // PE00

	IMAGE_NT_OPTIONAL_HDR32_MAGIC = 0x10b
	IMAGE_NT_OPTIONAL_HDR64_MAGIC = 0x20b

	IMAGE_NUMBEROF_DIRECTORY_ENTRIES = 16
	IMAGE_SIZEOF_SHORT_NAME          = 8
	IMAGE_SIZEOF_FILE_HEADER         = 20
	IMAGE_SIZEOF_SECTION_HEADER      = 40
	IMAGE_SIZEOF_DEBUG_DIRECTORY     = 28

	IMAGE_DEBUG_TYPE_CODEVIEW = 2

	CV_PDB_70_SIGNATURE = 0x53445352 // RSDS

	COR20_METADATA_SIGNATURE = 0x424A5342 // BSJB

	VS_FFI_SIGNATURE = 0xFEEF04BD

	RT_VERSION = 16
)

// Fixed offsets inside the headers.
const (
	dosLfanewOffset = 0x3C

	optionalHeaderChecksumOffset = 64

	optionalHeader32RvaCountOffset = 92
	optionalHeader64RvaCountOffset = 108

	guidSize = 16
)

const (
	typeLibResourceName = "TYPELIB"

	// The MIDL banner is fixed width: "Created by MIDL version 8.01.0622 at "
	// is followed by the generation date.
	midlBannerMarker     = "Created by MIDL version"
	midlBannerDateOffset = 37
	midlBannerDateLength = 32

	defaultMaxResourceDepth = 8
)
