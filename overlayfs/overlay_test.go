package overlayfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyrmwood-systems/vfscore/errors"
	"github.com/wyrmwood-systems/vfscore/overlayfs"
	"github.com/wyrmwood-systems/vfscore/tmpfs"
	"github.com/wyrmwood-systems/vfscore/vfs"
)

func writeFile(t *testing.T, fs vfs.FilesystemOperations, parent vfs.VfsNode, name, content string) vfs.VfsNode {
	t.Helper()
	n, err := fs.Create(parent, name, vfs.RegularFileType(), vfs.Permissions{Read: true, Write: true})
	require.Nil(t, err)
	h, err := fs.Open(n, vfs.O_WRONLY)
	require.Nil(t, err)
	_, werr := h.Write([]byte(content))
	require.Nil(t, werr)
	require.Nil(t, h.Close())
	return n
}

func readFile(t *testing.T, fs vfs.FilesystemOperations, n vfs.VfsNode) string {
	t.Helper()
	h, err := fs.Open(n, vfs.O_RDONLY)
	require.Nil(t, err)
	defer h.Close()
	buf := make([]byte, 4096)
	total := 0
	for {
		k, rerr := h.Read(buf[total:])
		require.Nil(t, rerr)
		if k == 0 {
			break
		}
		total += k
	}
	return string(buf[:total])
}

func TestLookupPrefersUpperOverLower(t *testing.T) {
	lower := tmpfs.New(0, nil)
	writeFile(t, lower, lower.RootNode(), "a.txt", "from-lower")

	upper := tmpfs.New(0, nil)
	writeFile(t, upper, upper.RootNode(), "a.txt", "from-upper")

	ov := overlayfs.New(upper, []vfs.FilesystemOperations{lower})
	found, err := ov.Lookup(ov.RootNode(), "a.txt")
	require.Nil(t, err)
	assert.Equal(t, "from-upper", readFile(t, ov, found))
}

func TestLookupFallsThroughToLowerWhenAbsentFromUpper(t *testing.T) {
	lower := tmpfs.New(0, nil)
	writeFile(t, lower, lower.RootNode(), "only-lower.txt", "lower-content")

	upper := tmpfs.New(0, nil)
	ov := overlayfs.New(upper, []vfs.FilesystemOperations{lower})

	found, err := ov.Lookup(ov.RootNode(), "only-lower.txt")
	require.Nil(t, err)
	assert.Equal(t, "lower-content", readFile(t, ov, found))
}

func TestWhiteoutHidesLowerEntry(t *testing.T) {
	lower := tmpfs.New(0, nil)
	writeFile(t, lower, lower.RootNode(), "hidden.txt", "x")

	upper := tmpfs.New(0, nil)
	ov := overlayfs.New(upper, []vfs.FilesystemOperations{lower})

	require.Nil(t, ov.Remove(ov.RootNode(), "hidden.txt"))

	_, err := ov.Lookup(ov.RootNode(), "hidden.txt")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, errors.NotFound)

	// The whiteout itself must never surface in readdir output.
	entries, derr := ov.Readdir(ov.RootNode())
	require.Nil(t, derr)
	for _, e := range entries {
		assert.NotContains(t, e.Name, ".wh.")
	}

	// The lower layer is untouched.
	_, lerr := lower.Lookup(lower.RootNode(), "hidden.txt")
	assert.Nil(t, lerr)
}

func TestCreateAfterWhiteoutUndoesIt(t *testing.T) {
	lower := tmpfs.New(0, nil)
	writeFile(t, lower, lower.RootNode(), "name.txt", "old")

	upper := tmpfs.New(0, nil)
	ov := overlayfs.New(upper, []vfs.FilesystemOperations{lower})

	require.Nil(t, ov.Remove(ov.RootNode(), "name.txt"))
	created := writeFile(t, ov, ov.RootNode(), "name.txt", "new")

	assert.Equal(t, "new", readFile(t, ov, created))

	// Lower-layer content survives underneath, merely hidden before.
	lowerNode, lerr := lower.Lookup(lower.RootNode(), "name.txt")
	require.Nil(t, lerr)
	assert.Equal(t, "old", readFile(t, lower, lowerNode))
}

func TestCopyUpOnWriteOpensTheUpperLayer(t *testing.T) {
	lower := tmpfs.New(0, nil)
	writeFile(t, lower, lower.RootNode(), "shared.txt", "base")

	upper := tmpfs.New(0, nil)
	ov := overlayfs.New(upper, []vfs.FilesystemOperations{lower})

	found, err := ov.Lookup(ov.RootNode(), "shared.txt")
	require.Nil(t, err)

	h, err := ov.Open(found, vfs.O_WRONLY|vfs.O_APPEND)
	require.Nil(t, err)
	_, werr := h.Write([]byte("-modified"))
	require.Nil(t, werr)
	require.Nil(t, h.Close())

	// Lower content is untouched.
	lowerNode, _ := lower.Lookup(lower.RootNode(), "shared.txt")
	assert.Equal(t, "base", readFile(t, lower, lowerNode))

	// Upper now holds the copied-up, modified content.
	upperNode, uerr := upper.Lookup(upper.RootNode(), "shared.txt")
	require.Nil(t, uerr)
	assert.Equal(t, "base-modified", readFile(t, upper, upperNode))
}

func TestReaddirMergesLayersWithUpperPrecedence(t *testing.T) {
	lower := tmpfs.New(0, nil)
	writeFile(t, lower, lower.RootNode(), "a.txt", "la")
	writeFile(t, lower, lower.RootNode(), "b.txt", "lb")

	upper := tmpfs.New(0, nil)
	writeFile(t, upper, upper.RootNode(), "a.txt", "ua")
	writeFile(t, upper, upper.RootNode(), "c.txt", "uc")

	ov := overlayfs.New(upper, []vfs.FilesystemOperations{lower})
	entries, err := ov.Readdir(ov.RootNode())
	require.Nil(t, err)

	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	assert.True(t, names["."])
	assert.True(t, names[".."])
	assert.True(t, names["a.txt"])
	assert.True(t, names["b.txt"])
	assert.True(t, names["c.txt"])
	assert.Len(t, entries, 5)
}

func TestRemoveNonEmptyDirectoryFails(t *testing.T) {
	lower := tmpfs.New(0, nil)
	upper := tmpfs.New(0, nil)
	ov := overlayfs.New(upper, []vfs.FilesystemOperations{lower})

	dir, err := ov.Create(ov.RootNode(), "d", vfs.DirectoryType(), vfs.Permissions{})
	require.Nil(t, err)
	_, err = ov.Create(dir, "inner.txt", vfs.RegularFileType(), vfs.Permissions{})
	require.Nil(t, err)

	err = ov.Remove(ov.RootNode(), "d")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, errors.DirectoryNotEmpty)
}

func TestReadOnlyOverlayRejectsWrites(t *testing.T) {
	lower := tmpfs.New(0, nil)
	writeFile(t, lower, lower.RootNode(), "x.txt", "x")

	ov := overlayfs.New(nil, []vfs.FilesystemOperations{lower})
	assert.True(t, ov.IsReadOnly())

	_, err := ov.Create(ov.RootNode(), "y.txt", vfs.RegularFileType(), vfs.Permissions{})
	require.NotNil(t, err)
	assert.ErrorIs(t, err, errors.ReadOnly)
}

func TestCopyUpCreatesUpperParentDirectories(t *testing.T) {
	lower := tmpfs.New(0, nil)
	lowerDir, err := lower.Create(lower.RootNode(), "nested", vfs.DirectoryType(), vfs.Permissions{})
	require.Nil(t, err)
	writeFile(t, lower, lowerDir, "deep.txt", "deep-base")

	upper := tmpfs.New(0, nil)
	ov := overlayfs.New(upper, []vfs.FilesystemOperations{lower})

	ovDir, err := ov.Lookup(ov.RootNode(), "nested")
	require.Nil(t, err)
	ovFile, err := ov.Lookup(ovDir, "deep.txt")
	require.Nil(t, err)

	h, err := ov.Open(ovFile, vfs.O_WRONLY|vfs.O_APPEND)
	require.Nil(t, err)
	_, werr := h.Write([]byte("!"))
	require.Nil(t, werr)
	require.Nil(t, h.Close())

	upperDir, uerr := upper.Lookup(upper.RootNode(), "nested")
	require.Nil(t, uerr)
	upperFile, uerr := upper.Lookup(upperDir, "deep.txt")
	require.Nil(t, uerr)
	assert.Equal(t, "deep-base!", readFile(t, upper, upperFile))
}
