package pe

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"
)

// Strings longer than this are treated as corrupt data rather than read
// out of the mapped view.
const maxUTF16StringUnits = 0x8000

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func decodeUTF16(b []byte) (string, error) {
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// alignAdditive advances the cursor by pos%4 bytes. For the even positions
// that follow UTF-16 fields this is the next 4-byte boundary.
func alignAdditive(v View) error {
	if r := v.Pos() % 4; r != 0 {
		return v.Skip(r)
	}
	return nil
}

// streamNamePadding is the size of a metadata stream name field holding a
// name of n bytes: the NUL and its padding always add 1 to 4 bytes.
func streamNamePadding(n int64) int64 {
	return n + 4 - n%4
}

// readUTF16Z reads a NUL-terminated UTF-16LE string and leaves the cursor
// just past the terminator.
func readUTF16Z(v View) (string, error) {
	var raw []byte
	for i := 0; i < maxUTF16StringUnits; i++ {
		unit, err := v.ReadUint16()
		if err != nil {
			return "", err
		}
		if unit == 0 {
			return decodeUTF16(raw)
		}
		raw = binary.LittleEndian.AppendUint16(raw, unit)
	}
	return "", errUnterminatedString
}
