package pe

import (
	"encoding/binary"
)

// Layout of the synthetic images: one section holding every directory.
const (
	imgLfanew      = 0x80
	imgFileHeader  = imgLfanew + 4
	imgOptHeader   = imgFileHeader + IMAGE_SIZEOF_FILE_HEADER
	imgChecksum    = imgOptHeader + optionalHeaderChecksumOffset
	imgSectionVA   = 0x1000
	imgSectionRaw  = 0x200
	imgSectionSize = 0x1000
	imgFileSize    = imgSectionRaw + imgSectionSize

	// Offsets inside the section.
	secExport     = 0x000
	secImport     = 0x040
	secDebug      = 0x080
	secCodeView   = 0x0C0
	secCLI        = 0x100
	secStrongName = 0x180
	secMetadata   = 0x200
	secResource   = 0x400

	strongNameSize = 0x80
	metadataSize   = 0x100
	resourceSize   = 0x400

	mdTablesOffset = 0x60
	mdGUIDOffset   = 0x80
	mdGUIDSize     = 0x20

	// Offsets inside the resource directory.
	resTypeLibBlob = 0x100
	resTypeLibSize = 0x80
	resVersionBlob = 0x200
	resTypeLibLang = 0x50
)

// File offsets derived from the layout.
const (
	fileTimestamp       = imgFileHeader + 4
	fileExport          = imgSectionRaw + secExport
	fileImport          = imgSectionRaw + secImport
	fileDebug           = imgSectionRaw + secDebug
	fileCodeView        = imgSectionRaw + secCodeView
	fileCLI             = imgSectionRaw + secCLI
	fileStrongName      = imgSectionRaw + secStrongName
	fileMetadata        = imgSectionRaw + secMetadata
	fileResource        = imgSectionRaw + secResource
	fileTypeLib         = fileResource + resTypeLibBlob
	fileVersionInfo     = fileResource + resVersionBlob
	typeLibBannerOffset = 8
)

var resourceTableOffsets = []int{0x00, 0x20, 0x38, 0x50, 0x68}

type testImage struct {
	is64 bool

	timestamp   uint32
	checksum    uint32
	pdbGUID     [16]byte
	pdbAge      uint32
	strongName  byte
	mvid        [16]byte
	midlDate    string // 24 characters
	fileVersion string
	productVer  string
	fixedMS     uint32
	fileDate    uint32
}

func newTestImage(seed byte) testImage {
	img := testImage{
		timestamp:   0x5F000000 | uint32(seed),
		checksum:    0x0001ABCD + uint32(seed),
		pdbAge:      7,
		strongName:  0xA0 | seed,
		midlDate:    "Mon Jan 18 19:14:07 2038",
		fileVersion: "1.2.3.4",
		productVer:  "1.2.3.4",
		fixedMS:     0x00010002,
		fileDate:    0x01D00000 | uint32(seed),
	}
	for i := range img.pdbGUID {
		img.pdbGUID[i] = byte(i+1) ^ seed
		img.mvid[i] = byte(0x40+i) ^ seed
	}
	if seed%2 == 1 {
		img.midlDate = "Tue Feb 02 08:00:59 2038"
		img.fileVersion = "1.2.3.5"
		img.productVer = "1.2.3.5"
		img.fixedMS = 0x00010003
	}
	return img
}

func put16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:], v) }
func put32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }

func (t testImage) optionalHeaderSize() int {
	if t.is64 {
		return 112 + IMAGE_NUMBEROF_DIRECTORY_ENTRIES*8
	}
	return 96 + IMAGE_NUMBEROF_DIRECTORY_ENTRIES*8
}

func (t testImage) directoryOffset(i DirectoryIndex) int {
	base := imgOptHeader + 96
	if t.is64 {
		base = imgOptHeader + 112
	}
	return base + int(i)*8
}

func (t testImage) sectionTableOffset() int {
	return imgOptHeader + t.optionalHeaderSize()
}

func (t testImage) build() []byte {
	b := make([]byte, imgFileSize)

	// DOS header and a recognizable stub.
	put16(b, 0, IMAGE_DOS_SIGNATURE)
	put32(b, dosLfanewOffset, imgLfanew)
	copy(b[0x40:], "This program cannot be run in DOS mode.")

	// NT headers
	put32(b, imgLfanew, IMAGE_NT_SIGNATURE)
	machine, magic := uint16(0x14c), uint16(IMAGE_NT_OPTIONAL_HDR32_MAGIC)
	countOffset := optionalHeader32RvaCountOffset
	if t.is64 {
		machine, magic = 0x8664, IMAGE_NT_OPTIONAL_HDR64_MAGIC
		countOffset = optionalHeader64RvaCountOffset
	}
	put16(b, imgFileHeader, machine)
	put16(b, imgFileHeader+2, 1)
	put32(b, fileTimestamp, t.timestamp)
	put16(b, imgFileHeader+16, uint16(t.optionalHeaderSize()))
	put16(b, imgFileHeader+18, 0x2102)

	put16(b, imgOptHeader, magic)
	put32(b, imgOptHeader+16, imgSectionVA) // AddressOfEntryPoint
	put32(b, imgChecksum, t.checksum)
	put32(b, imgOptHeader+countOffset, IMAGE_NUMBEROF_DIRECTORY_ENTRIES)

	dirs := map[DirectoryIndex][2]uint32{
		DirectoryExport:    {imgSectionVA + secExport, 40},
		DirectoryImport:    {imgSectionVA + secImport, 20},
		DirectoryResource:  {imgSectionVA + secResource, resourceSize},
		DirectoryDebug:     {imgSectionVA + secDebug, IMAGE_SIZEOF_DEBUG_DIRECTORY},
		DirectoryCLIHeader: {imgSectionVA + secCLI, 72},
	}
	for i, d := range dirs {
		put32(b, t.directoryOffset(i), d[0])
		put32(b, t.directoryOffset(i)+4, d[1])
	}

	st := t.sectionTableOffset()
	copy(b[st:], ".text\x00\x00\x00")
	put32(b, st+8, imgSectionSize)
	put32(b, st+12, imgSectionVA)
	put32(b, st+16, imgSectionSize)
	put32(b, st+20, imgSectionRaw)
	put32(b, st+36, 0x60000020)

	// Export directory and first import descriptor.
	put32(b, fileExport+4, t.timestamp)
	put32(b, fileExport+12, imgSectionVA+0x30) // Name
	put32(b, fileImport, imgSectionVA+0x60)    // OriginalFirstThunk
	put32(b, fileImport+4, t.timestamp)

	// Debug directory and CodeView record.
	put32(b, fileDebug+4, t.timestamp)
	put32(b, fileDebug+12, IMAGE_DEBUG_TYPE_CODEVIEW)
	put32(b, fileDebug+16, 0x20)
	put32(b, fileDebug+20, imgSectionVA+secCodeView)
	put32(b, fileDebug+24, fileCodeView)
	put32(b, fileCodeView, CV_PDB_70_SIGNATURE)
	copy(b[fileCodeView+4:], t.pdbGUID[:])
	put32(b, fileCodeView+20, t.pdbAge)
	copy(b[fileCodeView+24:], "app.pdb\x00")

	t.buildCLI(b)
	t.buildResources(b)

	return b
}

func (t testImage) buildCLI(b []byte) {
	put32(b, fileCLI, 72)
	put16(b, fileCLI+4, 2)
	put16(b, fileCLI+6, 5)
	put32(b, fileCLI+8, imgSectionVA+secMetadata)
	put32(b, fileCLI+12, metadataSize)
	put32(b, fileCLI+16, 1)
	put32(b, fileCLI+20, 0x06000001)
	put32(b, fileCLI+32, imgSectionVA+secStrongName)
	put32(b, fileCLI+36, strongNameSize)

	for i := 0; i < strongNameSize; i++ {
		b[fileStrongName+i] = t.strongName
	}

	root := fileMetadata
	put32(b, root, COR20_METADATA_SIGNATURE)
	put16(b, root+4, 1)
	put16(b, root+6, 1)
	put32(b, root+12, 12)
	copy(b[root+16:], "v4.0.30319\x00\x00")
	put16(b, root+30, 2)

	put32(b, root+32, mdTablesOffset)
	put32(b, root+36, 0x20)
	copy(b[root+40:], "#~\x00\x00")
	put32(b, root+44, mdGUIDOffset)
	put32(b, root+48, mdGUIDSize)
	copy(b[root+52:], "#GUID\x00\x00\x00")

	tables := root + mdTablesOffset
	b[tables+4] = 2
	b[tables+6] = 1
	put32(b, tables+8, 0x00000547)
	put32(b, tables+16, 0x00016003)

	copy(b[root+mdGUIDOffset:], t.mvid[:])
	for i := 0; i < 16; i++ {
		b[root+mdGUIDOffset+16+i] = t.mvid[15-i]
	}
}

func (t testImage) buildResources(b []byte) {
	r := fileResource

	table := func(off int, named, ids uint16) {
		put32(b, r+off+4, t.timestamp)
		put16(b, r+off+8, 4)
		put16(b, r+off+12, named)
		put16(b, r+off+14, ids)
	}
	entry := func(off int, name, target uint32) {
		put32(b, r+off, name)
		put32(b, r+off+4, target)
	}

	table(0x00, 1, 1)
	entry(0x10, 0x80000000|0xA0, 0x80000000|0x20)
	entry(0x18, RT_VERSION, 0x80000000|0x38)
	table(0x20, 0, 1)
	entry(0x30, 1, 0x80000000|resTypeLibLang)
	table(0x38, 0, 1)
	entry(0x48, 1, 0x80000000|0x68)
	table(resTypeLibLang, 0, 1)
	entry(0x60, 0x409, 0x80)
	table(0x68, 0, 1)
	entry(0x78, 0x409, 0x90)

	version := t.versionInfo()
	put32(b, r+0x80, imgSectionVA+secResource+resTypeLibBlob)
	put32(b, r+0x84, resTypeLibSize)
	put32(b, r+0x90, imgSectionVA+secResource+resVersionBlob)
	put32(b, r+0x94, uint32(len(version)))

	put16(b, r+0xA0, uint16(len(typeLibResourceName)))
	copy(b[r+0xA2:], utf16z(typeLibResourceName))

	tlb := b[fileTypeLib : fileTypeLib+resTypeLibSize]
	copy(tlb, "MSFT\x02\x00\x01\x00")
	copy(tlb[typeLibBannerOffset:], "Created by MIDL version 8.01.0622 at "+t.midlDate+"\n")

	copy(b[fileVersionInfo:], version)
}

func (t testImage) versionInfo() []byte {
	fixed := make([]byte, 52)
	put32(fixed, 0, VS_FFI_SIGNATURE)
	put32(fixed, 4, 0x00010000)
	put32(fixed, 8, t.fixedMS)
	put32(fixed, 12, 0x00030004)
	put32(fixed, 16, t.fixedMS)
	put32(fixed, 20, 0x00030004)
	put32(fixed, 24, 0x3F)
	put32(fixed, 32, 0x00040004)
	put32(fixed, 36, 1)
	put32(fixed, 44, t.fileDate)
	put32(fixed, 48, t.fileDate^0xFFFF)

	table := versionBlockBytes("040904b0", nil, 0, 1,
		versionString("FileVersion", t.fileVersion),
		versionString("Comments", "built on Tuesday"),
		versionString("ProductVersion", t.productVer),
	)
	stringFileInfo := versionBlockBytes("StringFileInfo", nil, 0, 1, table)
	varFileInfo := versionBlockBytes("VarFileInfo", nil, 0, 1,
		versionBlockBytes("Translation", []byte{0x09, 0x04, 0xb0, 0x04}, 4, 0))

	return versionBlockBytes("VS_VERSION_INFO", fixed, uint16(len(fixed)), 0, stringFileInfo, varFileInfo)
}

// versionString builds a String record; its value length counts UTF-16
// units including the terminator.
func versionString(key, value string) []byte {
	return versionBlockBytes(key, utf16z(value), uint16(len(value)+1), 1)
}

func versionBlockBytes(key string, value []byte, valueLength, typ uint16, children ...[]byte) []byte {
	b := make([]byte, 6)
	b = append(b, utf16z(key)...)
	b = pad4(b)
	b = append(b, value...)
	for _, child := range children {
		b = pad4(b)
		b = append(b, child...)
	}
	put16(b, 0, uint16(len(b)))
	put16(b, 2, valueLength)
	put16(b, 4, typ)
	return b
}

func utf16z(s string) []byte {
	b := make([]byte, 0, 2*len(s)+2)
	for _, c := range s {
		b = binary.LittleEndian.AppendUint16(b, uint16(c))
	}
	return append(b, 0, 0)
}

func pad4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}
