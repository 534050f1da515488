package pe

// Image Section

//noinspection GoSnakeCaseUsage
type ImageSectionHeader struct {
	Name                             [IMAGE_SIZEOF_SHORT_NAME]uint8
	Misc_VirtualSize_PhysicalAddress uint32
	VirtualAddress                   uint32
	SizeOfRawData                    uint32
	PointerToRawData                 uint32
	PointerToRelocations             uint32
	PointerToLinenumbers             uint32
	NumberOfRelocations              uint16
	NumberOfLinenumbers              uint16
	Characteristics                  uint32
}

// DebugDirectory
type ImageDebugDirectory struct {
	Characteristics  uint32
	TimeDateStamp    uint32
	MajorVersion     uint16
	MinorVersion     uint16
	Type             uint32
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32
}

type CvInfoPdb70 struct {
	CvSignature uint32
	Signature   [16]byte
	Age         uint32
	// PdbFileName ... Variable sized array
}

// Resource Data Entry
type ImageResourceDataEntry struct {
	OffsetToData uint32 // RVA of the data of the resource.
	Size         uint32 // Size of the resource data.
	CodePage     uint32 // Code page.
	Reserved     uint32 // Reserved for use by the operating system.
}

// Header of the #~ (compressed metadata tables) stream.
type MetadataTablesHeader struct {
	Reserved     uint32
	MajorVersion uint8
	MinorVersion uint8
	HeapSizes    uint8
	Reserved2    uint8
	Valid        uint64 // bit vector of present tables
	Sorted       uint64 // bit vector of sorted tables
}

// VS Version Info
type VersionInfoBlock struct {
	Length      uint16 // Length of this block (doesn't include padding)
	ValueLength uint16 // Value length (if any)
	Type        uint16 // Value type (0 = binary, 1 = text)
	// Key      uint8[1] // Value name (block key) (always NULL terminated)

	//////////
	// WORD padding1[]; // Padding, if any (ALIGNMENT)
	// xxxxx Value[]; // Value data, if any (*ALIGNED*)
	// WORD padding2[]; // Padding, if any (ALIGNMENT)
	// xxxxx Child[]; // Child block(s), if any (*ALIGNED*)
	//////////
}
