package pe

import (
	"encoding/binary"
	"fmt"
)

// GUID represents a GUID/UUID as stored in PE images (CodeView records,
// the CLI #GUID heap). The representation matches that used by native
// Windows code.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// GuidFromWindowsArray constructs a GUID from a Windows encoding array of bytes.
func GuidFromWindowsArray(b [16]byte) GUID {
	var g GUID
	g.Data1 = binary.LittleEndian.Uint32(b[0:4])
	g.Data2 = binary.LittleEndian.Uint16(b[4:6])
	g.Data3 = binary.LittleEndian.Uint16(b[6:8])
	copy(g.Data4[:], b[8:16])
	return g
}

func (g GUID) IsZero() bool {
	return g == GUID{}
}

func (g GUID) String() string {
	return fmt.Sprintf(
		"%08x-%04x-%04x-%04x-%012x",
		g.Data1,
		g.Data2,
		g.Data3,
		g.Data4[:2],
		g.Data4[2:])
}
