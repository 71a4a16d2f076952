package vfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wyrmwood-systems/vfscore/errors"
	"github.com/wyrmwood-systems/vfscore/vfs"
)

type fakeDriver struct{ name string }

func (f fakeDriver) DriverName() string         { return f.name }
func (f fakeDriver) DriverType() vfs.FilesystemType { return vfs.FilesystemTypeVirtual }
func (f fakeDriver) FromOptionString(string) (vfs.FilesystemOperations, errors.DriverError) {
	return nil, nil
}

func TestRegisterAndLookup(t *testing.T) {
	vfs.Register(fakeDriver{name: "faketest"})

	d, ok := vfs.Lookup("faketest")
	assert.True(t, ok)
	assert.Equal(t, "faketest", d.DriverName())
}

func TestLookupMissingDriver(t *testing.T) {
	_, ok := vfs.Lookup("does-not-exist-xyz")
	assert.False(t, ok)
}

func TestNewUnregisteredDriverFails(t *testing.T) {
	_, err := vfs.New("does-not-exist-xyz", "")
	assert.NotNil(t, err)
	assert.ErrorIs(t, err, errors.NotFound)
}

func TestRegisteredNamesIncludesRegistered(t *testing.T) {
	vfs.Register(fakeDriver{name: "another-fake"})
	names := vfs.RegisteredNames()
	assert.Contains(t, names, "another-fake")
}
