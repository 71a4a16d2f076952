package vfs

import (
	"bytes"
	"encoding/binary"

	"github.com/noxer/bytewriter"
	"github.com/wyrmwood-systems/vfscore/errors"
)

// direntHeaderSize is the fixed portion of a DirectoryEntry record: file_id
// (8) + rec_len (2) + name_len (2) + file_type (1) + padding (3).
const direntHeaderSize = 16

// DirectoryEntry is the stable on-wire layout described in section 6,
// returned by reading a directory-kind FileObject as a byte stream.
type DirectoryEntry struct {
	FileID   uint64
	FileType FileTypeTag
	Name     string
}

// FromInternal converts the in-memory readdir tuple into the wire form.
func FromInternal(e DirectoryEntryInternal) DirectoryEntry {
	return DirectoryEntry{FileID: e.FileID, FileType: e.FileType, Name: e.Name}
}

// EntrySize returns the exact byte span this entry occupies once encoded,
// including alignment padding to an 8-byte boundary.
func (e DirectoryEntry) EntrySize() int {
	raw := direntHeaderSize + len(e.Name)
	return alignUp8(raw)
}

func alignUp8(n int) int {
	if rem := n % 8; rem != 0 {
		return n + (8 - rem)
	}
	return n
}

// Encode writes the packed little-endian record into buf, starting at
// offset 0. If buf is smaller than EntrySize(), it fails with
// errors.InvalidArgument and writes nothing observable to the caller (the
// bytewriter-backed sink never writes past the end of buf).
func (e DirectoryEntry) Encode(buf []byte) (int, errors.DriverError) {
	size := e.EntrySize()
	if len(buf) < size {
		return 0, errors.InvalidArgument.WithMessage("buffer too small for directory entry")
	}

	record := make([]byte, size)
	binary.LittleEndian.PutUint64(record[0:8], e.FileID)
	binary.LittleEndian.PutUint16(record[8:10], uint16(size))
	binary.LittleEndian.PutUint16(record[10:12], uint16(len(e.Name)))
	record[12] = byte(e.FileType)
	// record[13:16] padding already zero.
	copy(record[direntHeaderSize:direntHeaderSize+len(e.Name)], e.Name)
	// Trailing alignment padding already zero.

	sink := bytewriter.New(buf)
	n, err := sink.Write(record)
	if err != nil {
		return 0, errors.InvalidArgument.Wrap(err)
	}
	return n, nil
}

// ParseDirectoryEntry decodes a single DirectoryEntry from the front of buf.
// It returns the entry and the number of bytes consumed (EntrySize()).
func ParseDirectoryEntry(buf []byte) (DirectoryEntry, int, errors.DriverError) {
	if len(buf) < direntHeaderSize {
		return DirectoryEntry{}, 0, errors.InvalidArgument.WithMessage("buffer too small for directory entry header")
	}

	reader := bytes.NewReader(buf)
	var fileID uint64
	var recLen, nameLen uint16
	var fileType uint8
	var padding [3]byte

	for _, step := range []struct {
		dst interface{}
	}{
		{&fileID}, {&recLen}, {&nameLen}, {&fileType}, {&padding},
	} {
		if err := binary.Read(reader, binary.LittleEndian, step.dst); err != nil {
			return DirectoryEntry{}, 0, errors.InvalidArgument.Wrap(err)
		}
	}

	if int(recLen) > len(buf) || int(direntHeaderSize)+int(nameLen) > int(recLen) {
		return DirectoryEntry{}, 0, errors.InvalidArgument.WithMessage("corrupt directory entry record length")
	}

	name := make([]byte, nameLen)
	if _, err := reader.Read(name); err != nil {
		return DirectoryEntry{}, 0, errors.InvalidArgument.Wrap(err)
	}

	return DirectoryEntry{
		FileID:   fileID,
		FileType: FileTypeTag(fileType),
		Name:     string(name),
	}, int(recLen), nil
}
