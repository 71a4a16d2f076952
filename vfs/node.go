// Package vfs defines the driver-facing contracts every vfscore filesystem
// implements: the node and metadata model (component A), the
// FilesystemOperations contract (component B), and the FileObject contract
// (component C). Concrete drivers live in sibling packages (tmpfs, overlayfs,
// devfs) and depend on this package, never the reverse.
package vfs

import (
	"sync"
	"time"
)

// FileTypeTag identifies the kind of entity a node represents. It is also
// the on-wire tag used by DirectoryEntry (see dirent.go).
type FileTypeTag uint8

const (
	Unknown FileTypeTag = iota
	RegularFile
	Directory
	SymbolicLink
	CharDevice
	BlockDevice
	Pipe
	Socket
)

// DeviceFileInfo binds a char/block device node to an entry in the device
// manager's registry. The VFS core never interprets DeviceID itself; it is
// opaque outside of the device manager and the driver that owns it.
type DeviceFileInfo struct {
	DeviceID   uint64
	DeviceKind DeviceKind
}

// DeviceKind mirrors device.Kind without introducing an import cycle between
// vfs and device; drivers that bind a real device convert to/from
// device.Kind at their boundary.
type DeviceKind uint8

const (
	DeviceKindChar DeviceKind = iota
	DeviceKindBlock
)

// FileType fully describes what a node is: the tag plus whatever payload
// that tag carries (a symlink target, or a device binding).
type FileType struct {
	Tag    FileTypeTag
	Target string         // valid only when Tag == SymbolicLink
	Device DeviceFileInfo // valid only when Tag == CharDevice or BlockDevice
}

func RegularFileType() FileType { return FileType{Tag: RegularFile} }
func DirectoryType() FileType   { return FileType{Tag: Directory} }
func SymlinkType(target string) FileType {
	return FileType{Tag: SymbolicLink, Target: target}
}
func CharDeviceType(info DeviceFileInfo) FileType {
	return FileType{Tag: CharDevice, Device: info}
}
func BlockDeviceType(info DeviceFileInfo) FileType {
	return FileType{Tag: BlockDevice, Device: info}
}

func (ft FileType) IsDir() bool     { return ft.Tag == Directory }
func (ft FileType) IsRegular() bool { return ft.Tag == RegularFile }
func (ft FileType) IsSymlink() bool { return ft.Tag == SymbolicLink }
func (ft FileType) IsDevice() bool  { return ft.Tag == CharDevice || ft.Tag == BlockDevice }

// Permissions is the minimal {r,w,x} triple spec section 3 asks for. It
// intentionally carries no uid/gid/ACL semantics: those are a Non-goal.
type Permissions struct {
	Read    bool
	Write   bool
	Execute bool
}

// Metadata is a point-in-time, independently-copyable snapshot of a node's
// attributes. Per section 4.A, producing one must never block on I/O or
// acquire a parent lock.
type Metadata struct {
	FileID       uint64
	Size         int64
	Permissions  Permissions
	CreatedAt    time.Time
	ModifiedAt   time.Time
	AccessedAt   time.Time
	LinkCount    uint32
}

// FilesystemRef is a weak reference to the filesystem that owns a node. It
// never keeps the filesystem alive; Upgrade returns (nil, false) once the
// reference has been cleared with Clear.
//
// Nodes are handed a *FilesystemRef before the owning filesystem is fully
// constructed (the two-phase root construction described in section 9): the
// filesystem is allocated, an empty FilesystemRef is installed on the root
// node, and Resolve is called once the filesystem value itself is ready.
type FilesystemRef struct {
	mu   sync.RWMutex
	fs   FilesystemOperations
	live bool
}

// NewFilesystemRef creates an unresolved weak reference. Call Resolve once
// the owning filesystem exists to complete the two-phase construction.
func NewFilesystemRef() *FilesystemRef {
	return &FilesystemRef{}
}

// Resolve installs the strong filesystem this weak reference should upgrade
// to. It must be called exactly once, after the filesystem value is fully
// constructed.
func (r *FilesystemRef) Resolve(fs FilesystemOperations) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fs = fs
	r.live = true
}

// Clear drops the reference, as if the filesystem had gone away. No driver
// in this module calls it; tmpfs Unmount keeps the same reference live.
func (r *FilesystemRef) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fs = nil
	r.live = false
}

// Upgrade returns the owning filesystem and true, or (nil, false) if the
// reference was never resolved or has been cleared.
func (r *FilesystemRef) Upgrade() (FilesystemOperations, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.live {
		return nil, false
	}
	return r.fs, true
}

// VfsNode is the capability set every driver node implements (component A).
// Implementations are tagged by driver; callers are never required to
// downcast to use the contract, though a driver may downcast its own nodes
// internally to reach concrete fields.
type VfsNode interface {
	// ID returns the node's stable, filesystem-unique file_id.
	ID() uint64

	// FileTypeOf returns the node's type tag and payload.
	FileTypeOf() FileType

	// Metadata returns a consistent snapshot. Must not block on I/O and must
	// never acquire a parent lock.
	Metadata() Metadata

	// Filesystem returns a weak reference to the owning filesystem.
	Filesystem() *FilesystemRef

	// ReadLink returns the symlink target. Valid only when FileTypeOf().Tag
	// is SymbolicLink; otherwise it returns ("", false).
	ReadLink() (string, bool)
}
