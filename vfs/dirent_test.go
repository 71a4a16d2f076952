package vfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyrmwood-systems/vfscore/errors"
	"github.com/wyrmwood-systems/vfscore/vfs"
)

func TestDirectoryEntryRoundTrip(t *testing.T) {
	entry := vfs.FromInternal(vfs.DirectoryEntryInternal{
		Name:     "hello.txt",
		FileType: vfs.RegularFile,
		FileID:   42,
	})

	buf := make([]byte, entry.EntrySize())
	n, err := entry.Encode(buf)
	require.Nil(t, err)
	assert.Equal(t, entry.EntrySize(), n)
	assert.Equal(t, 0, entry.EntrySize()%8, "entry size must be 8-byte aligned")

	decoded, consumed, err := vfs.ParseDirectoryEntry(buf)
	require.Nil(t, err)
	assert.Equal(t, n, consumed)
	assert.Equal(t, entry.FileID, decoded.FileID)
	assert.Equal(t, entry.FileType, decoded.FileType)
	assert.Equal(t, entry.Name, decoded.Name)
}

func TestDirectoryEntryEncodeTooSmallBuffer(t *testing.T) {
	entry := vfs.FromInternal(vfs.DirectoryEntryInternal{Name: "x", FileType: vfs.Directory, FileID: 1})
	buf := make([]byte, entry.EntrySize()-1)

	_, err := entry.Encode(buf)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, errors.InvalidArgument)
}

func TestDirectoryEntryPaddingIsZero(t *testing.T) {
	entry := vfs.FromInternal(vfs.DirectoryEntryInternal{Name: "ab", FileType: vfs.RegularFile, FileID: 7})
	buf := make([]byte, entry.EntrySize())
	_, err := entry.Encode(buf)
	require.Nil(t, err)

	for i := 13; i < 16; i++ {
		assert.Equal(t, byte(0), buf[i], "reserved padding byte %d must be zero", i)
	}
	for i := 16 + len(entry.Name); i < len(buf); i++ {
		assert.Equal(t, byte(0), buf[i], "alignment padding byte %d must be zero", i)
	}
}

func TestDotDotEntriesOrdering(t *testing.T) {
	entries := []vfs.DirectoryEntryInternal{
		{Name: ".", FileType: vfs.Directory, FileID: 1},
		{Name: "..", FileType: vfs.Directory, FileID: 1},
		{Name: "a", FileType: vfs.RegularFile, FileID: 5},
		{Name: "b", FileType: vfs.RegularFile, FileID: 3},
	}
	assert.Equal(t, ".", entries[0].Name)
	assert.Equal(t, "..", entries[1].Name)
}
