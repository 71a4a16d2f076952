package devfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyrmwood-systems/vfscore/device"
	"github.com/wyrmwood-systems/vfscore/devfs"
	"github.com/wyrmwood-systems/vfscore/errors"
	"github.com/wyrmwood-systems/vfscore/vfs"
)

func TestRootIsReadOnlyDirectory(t *testing.T) {
	mgr := device.NewManager()
	fs := devfs.New(mgr)
	assert.True(t, fs.IsReadOnly())
	assert.True(t, fs.RootNode().FileTypeOf().IsDir())
}

func TestLookupFindsRegisteredDevice(t *testing.T) {
	mgr := device.NewManager()
	id, err := mgr.RegisterNamed("tty0", device.Char, device.NewRamCharDevice())
	require.Nil(t, err)

	fs := devfs.New(mgr)
	found, lerr := fs.Lookup(fs.RootNode(), "tty0")
	require.Nil(t, lerr)
	assert.Equal(t, id, found.ID())
	assert.True(t, found.FileTypeOf().IsDevice())
}

func TestLookupMissingDeviceFails(t *testing.T) {
	mgr := device.NewManager()
	fs := devfs.New(mgr)
	_, err := fs.Lookup(fs.RootNode(), "nope")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, errors.NotFound)
}

func TestReaddirReflectsLiveRegistrations(t *testing.T) {
	mgr := device.NewManager()
	fs := devfs.New(mgr)

	entries, err := fs.Readdir(fs.RootNode())
	require.Nil(t, err)
	assert.Len(t, entries, 2) // only "." and ".."

	mgr.RegisterNamed("sda", device.Block, device.NewRamBlockDevice(1, 512))

	entries, err = fs.Readdir(fs.RootNode())
	require.Nil(t, err)
	assert.Len(t, entries, 3)
}

func TestReaddirSortsDevicesByFileIDNotName(t *testing.T) {
	mgr := device.NewManager()
	fs := devfs.New(mgr)

	// "sdb" registers first and gets the lower file_id; a name-ordered sort
	// would place "sda" ahead of it, a file_id-ordered sort must not.
	sdbID, err := mgr.RegisterNamed("sdb", device.Block, device.NewRamBlockDevice(1, 512))
	require.Nil(t, err)
	sdaID, err := mgr.RegisterNamed("sda", device.Block, device.NewRamBlockDevice(1, 512))
	require.Nil(t, err)
	require.Less(t, sdbID, sdaID)

	entries, derr := fs.Readdir(fs.RootNode())
	require.Nil(t, derr)
	require.Len(t, entries, 4)
	assert.Equal(t, "sdb", entries[2].Name)
	assert.Equal(t, "sda", entries[3].Name)
}

func TestCreateAndRemoveFailReadOnly(t *testing.T) {
	mgr := device.NewManager()
	fs := devfs.New(mgr)

	_, err := fs.Create(fs.RootNode(), "x", vfs.RegularFileType(), vfs.Permissions{})
	require.NotNil(t, err)
	assert.ErrorIs(t, err, errors.ReadOnly)

	err = fs.Remove(fs.RootNode(), "sda")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, errors.ReadOnly)
}

func TestCharDeviceOpenReadsAndWritesByOffset(t *testing.T) {
	mgr := device.NewManager()
	mgr.RegisterNamed("tty0", device.Char, device.NewRamCharDevice())
	fs := devfs.New(mgr)

	node, err := fs.Lookup(fs.RootNode(), "tty0")
	require.Nil(t, err)

	h, err := fs.Open(node, vfs.O_RDWR)
	require.Nil(t, err)
	_, werr := h.Write([]byte("hi"))
	require.Nil(t, werr)

	_, serr := h.Seek(vfs.SeekRequest{Whence: vfs.SeekStart, Offset: 0})
	require.Nil(t, serr)
	buf := make([]byte, 2)
	n, rerr := h.Read(buf)
	require.Nil(t, rerr)
	assert.Equal(t, "hi", string(buf[:n]))
}

func TestBlockDeviceOpenAlwaysTargetsSectorZero(t *testing.T) {
	mgr := device.NewManager()
	mgr.RegisterNamed("sda", device.Block, device.NewRamBlockDevice(4, 16))
	fs := devfs.New(mgr)

	node, err := fs.Lookup(fs.RootNode(), "sda")
	require.Nil(t, err)

	h, err := fs.Open(node, vfs.O_RDWR)
	require.Nil(t, err)
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	_, werr := h.Write(data)
	require.Nil(t, werr)

	buf := make([]byte, 16)
	n, rerr := h.Read(buf)
	require.Nil(t, rerr)
	assert.Equal(t, data, buf[:n])
}

func TestDirectoryReadYieldsOneEntryPerCall(t *testing.T) {
	mgr := device.NewManager()
	mgr.RegisterNamed("sda", device.Block, device.NewRamBlockDevice(1, 512))
	fs := devfs.New(mgr)

	h, err := fs.Open(fs.RootNode(), vfs.O_RDONLY)
	require.Nil(t, err)

	buf := make([]byte, 4096)
	sawSda := false
	for {
		n, rerr := h.Read(buf)
		require.Nil(t, rerr)
		if n == 0 {
			break
		}
		entry, consumed, perr := vfs.ParseDirectoryEntry(buf[:n])
		require.Nil(t, perr)
		assert.Equal(t, n, consumed)
		if entry.Name == "sda" {
			sawSda = true
		}
	}
	assert.True(t, sawSda)
}

func TestDirectoryReadFailsInvalidArgumentWhenBufferTooSmall(t *testing.T) {
	mgr := device.NewManager()
	mgr.RegisterNamed("sda", device.Block, device.NewRamBlockDevice(1, 512))
	fs := devfs.New(mgr)

	h, err := fs.Open(fs.RootNode(), vfs.O_RDONLY)
	require.Nil(t, err)

	tiny := make([]byte, 1)
	_, rerr := h.Read(tiny)
	require.NotNil(t, rerr)
	assert.ErrorIs(t, rerr, errors.InvalidArgument)
}
