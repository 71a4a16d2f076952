// Package devfs implements the read-only device filesystem driver
// described in spec section 4.F: a single-level directory synthesized from
// the device manager's list of named Char/Block devices, rebuilt on every
// access so it always reflects live registrations.
package devfs

import (
	"sort"
	"sync"

	"github.com/wyrmwood-systems/vfscore/device"
	"github.com/wyrmwood-systems/vfscore/errors"
	"github.com/wyrmwood-systems/vfscore/vfs"
)

const rootFileID = 1

// DevFS is the device filesystem driver (component F).
type DevFS struct {
	manager *device.Manager
	fsRef   *vfs.FilesystemRef

	mu   sync.Mutex
	root *rootNode
}

// New creates a DevFS backed by manager. manager must not be nil: DevFS
// has nothing to synthesize a view over without one.
func New(manager *device.Manager) *DevFS {
	fs := &DevFS{manager: manager, fsRef: vfs.NewFilesystemRef()}
	fs.fsRef.Resolve(fs)
	fs.root = &rootNode{fs: fs}
	return fs
}

func (fs *DevFS) Name() string { return "devfs" }

func (fs *DevFS) IsReadOnly() bool { return true }

func (fs *DevFS) RootNode() vfs.VfsNode { return fs.root }

func deviceKindToFileType(dev device.Device) vfs.FileType {
	info := vfs.DeviceFileInfo{DeviceID: dev.ID()}
	switch dev.Kind() {
	case device.Char:
		info.DeviceKind = vfs.DeviceKindChar
		return vfs.CharDeviceType(info)
	default:
		info.DeviceKind = vfs.DeviceKindBlock
		return vfs.BlockDeviceType(info)
	}
}

// deviceFileNode is a device-file entry; its file_id equals the device
// manager's ID for that device, per section 3.
type deviceFileNode struct {
	fs  *DevFS
	dev device.Device
}

func (n *deviceFileNode) ID() uint64          { return n.dev.ID() }
func (n *deviceFileNode) FileTypeOf() vfs.FileType { return deviceKindToFileType(n.dev) }
func (n *deviceFileNode) Filesystem() *vfs.FilesystemRef { return n.fs.fsRef }
func (n *deviceFileNode) ReadLink() (string, bool) { return "", false }

func (n *deviceFileNode) Metadata() vfs.Metadata {
	return vfs.Metadata{
		FileID:      n.dev.ID(),
		Permissions: vfs.Permissions{Read: true, Write: true},
		LinkCount:   1,
	}
}

// rootNode is the single synthetic directory DevFS exposes.
type rootNode struct {
	fs *DevFS
}

func (n *rootNode) ID() uint64              { return rootFileID }
func (n *rootNode) FileTypeOf() vfs.FileType { return vfs.DirectoryType() }
func (n *rootNode) Filesystem() *vfs.FilesystemRef { return n.fs.fsRef }
func (n *rootNode) ReadLink() (string, bool) { return "", false }

func (n *rootNode) Metadata() vfs.Metadata {
	return vfs.Metadata{
		FileID:      rootFileID,
		Permissions: vfs.Permissions{Read: true, Execute: true},
		LinkCount:   1,
	}
}

func asRootNode(n vfs.VfsNode) (*rootNode, errors.DriverError) {
	rn, ok := n.(*rootNode)
	if !ok {
		return nil, errors.NotADirectory.WithMessage("devfs only has a single root directory")
	}
	return rn, nil
}

func (fs *DevFS) Lookup(parent vfs.VfsNode, name string) (vfs.VfsNode, errors.DriverError) {
	if _, err := asRootNode(parent); err != nil {
		return nil, err
	}
	switch name {
	case ".", "..":
		return fs.root, nil
	}

	dev, ok := fs.manager.LookupByName(name)
	if !ok {
		return nil, errors.NotFound.WithMessage("no such device: " + name)
	}
	if dev.Kind() != device.Char && dev.Kind() != device.Block {
		return nil, errors.NotFound.WithMessage("no such device: " + name)
	}
	return &deviceFileNode{fs: fs, dev: dev}, nil
}

func (fs *DevFS) Readdir(n vfs.VfsNode) ([]vfs.DirectoryEntryInternal, errors.DriverError) {
	if _, err := asRootNode(n); err != nil {
		return nil, err
	}

	named := fs.manager.Named()
	sort.Slice(named, func(i, j int) bool { return named[i].Device.ID() < named[j].Device.ID() })

	entries := []vfs.DirectoryEntryInternal{
		{Name: ".", FileType: vfs.Directory, FileID: rootFileID},
		{Name: "..", FileType: vfs.Directory, FileID: rootFileID},
	}
	for _, nd := range named {
		tag := vfs.CharDevice
		if nd.Device.Kind() == device.Block {
			tag = vfs.BlockDevice
		}
		entries = append(entries, vfs.DirectoryEntryInternal{
			Name:     nd.Name,
			FileType: tag,
			FileID:   nd.Device.ID(),
		})
	}
	return entries, nil
}

func (fs *DevFS) Open(n vfs.VfsNode, flags vfs.OpenFlags) (vfs.FileObject, errors.DriverError) {
	switch tn := n.(type) {
	case *rootNode:
		entries, err := fs.Readdir(tn)
		if err != nil {
			return nil, err
		}
		return newDirectoryHandle(tn, entries), nil
	case *deviceFileNode:
		return newDeviceHandle(tn, tn.dev)
	default:
		return nil, errors.NotSupported.WithMessage("node does not belong to devfs")
	}
}

func (fs *DevFS) Create(parent vfs.VfsNode, name string, fileType vfs.FileType, perm vfs.Permissions) (vfs.VfsNode, errors.DriverError) {
	return nil, errors.ReadOnly.WithMessage("devfs is read-only")
}

func (fs *DevFS) CreateHardlink(linkParent vfs.VfsNode, linkName string, target vfs.VfsNode) (vfs.VfsNode, errors.DriverError) {
	return nil, errors.ReadOnly.WithMessage("devfs is read-only")
}

func (fs *DevFS) Remove(parent vfs.VfsNode, name string) errors.DriverError {
	return errors.ReadOnly.WithMessage("devfs is read-only")
}
