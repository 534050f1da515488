package mapview

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Mode selects how the file backing a View is mapped.
type Mode int

const (
	// ReadWrite maps the file shared, writes reach the file on Flush/Close.
	ReadWrite Mode = iota
	// CopyOnWrite maps a private copy, writes never reach the file.
	CopyOnWrite
)

// View is a seekable, read/write byte window over a whole file with exactly
// one cursor. Reads and writes never change its length.
type View struct {
	Filename string

	data   []byte
	mapped mmap.MMap
	handle *os.File
	pos    int64
}

// New wraps an in-memory buffer. Writes go straight into data.
func New(data []byte) *View {
	return &View{data: data}
}

// Open maps the whole file at path and takes an exclusive lock on it for the
// lifetime of the view.
func Open(path string, mode Mode) (v *View, err error) {
	flag := os.O_RDWR
	if mode == CopyOnWrite {
		flag = os.O_RDONLY
	}

	handle, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = handle.Close()
		}
	}()

	if err = lockFile(handle, mode == ReadWrite); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	info, err := handle.Stat()
	if err != nil {
		return nil, err
	}

	v = &View{Filename: path, handle: handle}

	// mmap refuses zero-length mappings.
	if info.Size() == 0 {
		v.data = []byte{}
		return v, nil
	}

	prot := mmap.RDWR
	if mode == CopyOnWrite {
		prot = mmap.COPY
	}

	v.mapped, err = mmap.Map(handle, prot, 0)
	if err != nil {
		return nil, err
	}
	v.data = v.mapped

	return v, nil
}

// Len returns the size of the view in bytes.
func (v *View) Len() int64 {
	return int64(len(v.data))
}

// Pos returns the cursor position.
func (v *View) Pos() int64 {
	return v.pos
}

// Bytes exposes the underlying buffer.
func (v *View) Bytes() []byte {
	return v.data
}

// Seek implements io.Seeker. Positions outside [0, Len] are rejected.
func (v *View) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = v.pos + offset
	case io.SeekEnd:
		abs = v.Len() + offset
	default:
		return v.pos, errors.New("mapview: invalid whence")
	}

	if abs < 0 || abs > v.Len() {
		return v.pos, fmt.Errorf("mapview: seek to 0x%x outside view of 0x%x bytes: %w", abs, v.Len(), io.ErrUnexpectedEOF)
	}

	v.pos = abs
	return abs, nil
}

// SeekTo is Seek(offset, io.SeekStart) without the returned position.
func (v *View) SeekTo(offset int64) error {
	_, err := v.Seek(offset, io.SeekStart)
	return err
}

// Skip advances the cursor by n bytes.
func (v *View) Skip(n int64) error {
	_, err := v.Seek(n, io.SeekCurrent)
	return err
}

func (v *View) span(n int64) ([]byte, error) {
	if n < 0 || v.pos+n > v.Len() {
		return nil, fmt.Errorf("mapview: access of %d bytes at 0x%x outside view of 0x%x bytes: %w", n, v.pos, v.Len(), io.ErrUnexpectedEOF)
	}
	b := v.data[v.pos : v.pos+n]
	v.pos += n
	return b, nil
}

// Read implements io.Reader.
func (v *View) Read(p []byte) (int, error) {
	if v.pos >= v.Len() {
		return 0, io.EOF
	}
	n := copy(p, v.data[v.pos:])
	v.pos += int64(n)
	return n, nil
}

// Write implements io.Writer. The view never grows, so a write that does not
// fit fails without touching any byte.
func (v *View) Write(p []byte) (int, error) {
	b, err := v.span(int64(len(p)))
	if err != nil {
		return 0, err
	}
	return copy(b, p), nil
}

// ReadBytes returns a copy of the next n bytes.
func (v *View) ReadBytes(n int64) ([]byte, error) {
	b, err := v.span(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (v *View) ReadUint16() (uint16, error) {
	b, err := v.span(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (v *View) ReadUint32() (uint32, error) {
	b, err := v.span(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (v *View) ReadInt16() (int16, error) {
	u, err := v.ReadUint16()
	return int16(u), err
}

func (v *View) ReadInt32() (int32, error) {
	u, err := v.ReadUint32()
	return int32(u), err
}

// Zero overwrites the next n bytes with zeros.
func (v *View) Zero(n int64) error {
	b, err := v.span(n)
	if err != nil {
		return err
	}
	clear(b)
	return nil
}

// Flush writes dirty pages back to the file.
func (v *View) Flush() error {
	if v.mapped == nil {
		return nil
	}
	return v.mapped.Flush()
}

// Close unmaps the view, releases the lock and closes the file. A
// copy-on-write view discards its changes.
func (v *View) Close() error {
	var err error
	if v.mapped != nil {
		err = v.mapped.Unmap()
		v.mapped = nil
	}
	v.data = nil

	if v.handle != nil {
		if uerr := unlockFile(v.handle); uerr != nil && err == nil {
			err = uerr
		}
		if cerr := v.handle.Close(); cerr != nil && err == nil {
			err = cerr
		}
		v.handle = nil
	}

	return err
}
