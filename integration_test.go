// Package vfscore_test exercises the end-to-end scenarios that only make
// sense composed across multiple drivers: TmpFS mounted directly, and
// TmpFS-over-TmpFS through OverlayFS, driven through driver.Resolver the
// way a caller actually uses this module rather than any one package's
// internals.
package vfscore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyrmwood-systems/vfscore/driver"
	"github.com/wyrmwood-systems/vfscore/errors"
	"github.com/wyrmwood-systems/vfscore/overlayfs"
	"github.com/wyrmwood-systems/vfscore/tmpfs"
	"github.com/wyrmwood-systems/vfscore/vfs"
)

var rw = vfs.Permissions{Read: true, Write: true}

// Scenario 1 — TmpFS write/read round-trip.
func TestScenario1_TmpFSWriteReadRoundTrip(t *testing.T) {
	fs := tmpfs.New(1<<20, nil)
	r := driver.New(fs)

	require.Nil(t, r.WriteFile("/f", []byte("Hello, TmpFS!"), rw))

	content, err := r.ReadFile("/f")
	require.Nil(t, err)
	assert.Equal(t, "Hello, TmpFS!", string(content))

	meta, merr := r.Stat("/f")
	require.Nil(t, merr)
	assert.EqualValues(t, 13, meta.Size)
	assert.EqualValues(t, 13, fs.UsedBytes())
}

// Scenario 2 — TmpFS budget exhaustion.
func TestScenario2_TmpFSBudgetExhaustion(t *testing.T) {
	fs := tmpfs.New(100, nil)
	r := driver.New(fs)

	require.Nil(t, r.WriteFile("/a", []byte("abcde"), rw))
	assert.EqualValues(t, 5, fs.UsedBytes()) // 95 bytes of budget left

	fo, err := r.OpenFile("/a", vfs.O_WRONLY, rw)
	require.Nil(t, err)
	_, werr := fo.Write(make([]byte, 200))
	require.NotNil(t, werr)
	assert.ErrorIs(t, werr, errors.NoSpace)
	require.Nil(t, fo.Close())

	content, rerr := r.ReadFile("/a")
	require.Nil(t, rerr)
	assert.Equal(t, "abcde", string(content))
	assert.EqualValues(t, 5, fs.UsedBytes())
}

func newOverlay(t *testing.T) (*overlayfs.OverlayFS, *driver.Resolver, *driver.Resolver) {
	t.Helper()
	upper := tmpfs.New(0, nil)
	lower := tmpfs.New(0, nil)
	ov := overlayfs.New(upper, []vfs.FilesystemOperations{lower})
	return ov, driver.New(ov), driver.New(lower)
}

// Scenario 3 — Overlay copy-on-write.
func TestScenario3_OverlayCopyOnWrite(t *testing.T) {
	_, overlayResolver, lowerResolver := newOverlay(t)
	require.Nil(t, lowerResolver.WriteFile("/x", []byte("original"), rw))

	fo, err := overlayResolver.OpenFile("/x", vfs.O_WRONLY, rw)
	require.Nil(t, err)
	_, werr := fo.Write([]byte("NEW"))
	require.Nil(t, werr)
	require.Nil(t, fo.Close())

	overlayContent, oerr := overlayResolver.ReadFile("/x")
	require.Nil(t, oerr)
	assert.Equal(t, "NEW", string(overlayContent[:3]))

	lowerContent, lerr := lowerResolver.ReadFile("/x")
	require.Nil(t, lerr)
	assert.Equal(t, "original", string(lowerContent))
}

// Scenario 4 — Overlay whiteout.
func TestScenario4_OverlayWhiteout(t *testing.T) {
	_, overlayResolver, lowerResolver := newOverlay(t)
	require.Nil(t, lowerResolver.WriteFile("/a", []byte("a"), rw))
	require.Nil(t, lowerResolver.WriteFile("/b", []byte("b"), rw))
	require.Nil(t, lowerResolver.WriteFile("/c", []byte("c"), rw))

	require.Nil(t, overlayResolver.Remove("/b"))

	entries, err := overlayResolver.Readdir("/")
	require.Nil(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{".", "..", "a", "c"}, names)

	lowerEntries, lerr := lowerResolver.Readdir("/")
	require.Nil(t, lerr)
	lowerNames := make([]string, 0, len(lowerEntries))
	for _, e := range lowerEntries {
		lowerNames = append(lowerNames, e.Name)
	}
	assert.ElementsMatch(t, []string{".", "..", "a", "b", "c"}, lowerNames)
}

// Scenario 5 — Overlay recreate-after-delete.
func TestScenario5_OverlayRecreateAfterDelete(t *testing.T) {
	_, overlayResolver, lowerResolver := newOverlay(t)
	require.Nil(t, lowerResolver.WriteFile("/f", []byte("old"), rw))

	require.Nil(t, overlayResolver.Remove("/f"))
	require.Nil(t, overlayResolver.WriteFile("/f", []byte("new"), rw))

	content, err := overlayResolver.ReadFile("/f")
	require.Nil(t, err)
	assert.Equal(t, "new", string(content))

	lowerContent, lerr := lowerResolver.ReadFile("/f")
	require.Nil(t, lerr)
	assert.Equal(t, "old", string(lowerContent))
}

// Scenario 6 — Hard link.
func TestScenario6_HardLink(t *testing.T) {
	fs := tmpfs.New(0, nil)
	r := driver.New(fs)

	require.Nil(t, r.WriteFile("/a", []byte("data"), rw))
	require.Nil(t, r.Link("/a", "/b"))

	aContent, aerr := r.ReadFile("/a")
	require.Nil(t, aerr)
	bContent, berr := r.ReadFile("/b")
	require.Nil(t, berr)
	assert.Equal(t, "data", string(aContent))
	assert.Equal(t, "data", string(bContent))

	aMeta, amerr := r.Stat("/a")
	require.Nil(t, amerr)
	bMeta, bmerr := r.Stat("/b")
	require.Nil(t, bmerr)
	assert.Equal(t, aMeta.FileID, bMeta.FileID)
	assert.EqualValues(t, 2, aMeta.LinkCount)

	require.Nil(t, r.Remove("/a"))

	bContentAfter, cerr := r.ReadFile("/b")
	require.Nil(t, cerr)
	assert.Equal(t, "data", string(bContentAfter))

	bMetaAfter, dmerr := r.Stat("/b")
	require.Nil(t, dmerr)
	assert.EqualValues(t, 1, bMetaAfter.LinkCount)
}
