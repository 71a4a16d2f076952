package vfs

import "github.com/wyrmwood-systems/vfscore/errors"

// OpenFlags mirrors the conventional open(2) bit layout closely enough that
// drivers and the resolver can reason about write/create/append intent the
// way section 4.E's copy-up detection rule requires.
type OpenFlags uint32

const (
	O_RDONLY OpenFlags = 0
	O_WRONLY OpenFlags = 1 << 0
	O_RDWR   OpenFlags = 1 << 1
	O_CREATE OpenFlags = 1 << 6
	O_EXCL   OpenFlags = 1 << 7
	O_TRUNC  OpenFlags = 1 << 9
	O_APPEND OpenFlags = 0x400
)

// WantsWrite reports whether any of the write-bit, read-write, or append
// bits is set, per the copy-up trigger rule in section 4.E.
func (f OpenFlags) WantsWrite() bool {
	return f&(O_WRONLY|O_RDWR|O_APPEND) != 0
}

func (f OpenFlags) WantsCreate() bool { return f&O_CREATE != 0 }
func (f OpenFlags) WantsExcl() bool   { return f&O_EXCL != 0 }
func (f OpenFlags) WantsTrunc() bool  { return f&O_TRUNC != 0 }
func (f OpenFlags) WantsAppend() bool { return f&O_APPEND != 0 }

// FilesystemType classifies how a FilesystemDriver is backed, per section 6.
type FilesystemType int

const (
	FilesystemTypeBlock FilesystemType = iota
	FilesystemTypeVirtual
	FilesystemTypeDevice
)

// DirectoryEntryInternal is the in-memory readdir tuple described in
// section 3, prior to binary serialization (see dirent.go).
type DirectoryEntryInternal struct {
	Name     string
	FileType FileTypeTag
	FileID   uint64
}

// FilesystemOperations is the driver-facing contract every filesystem
// implementation satisfies (component B).
type FilesystemOperations interface {
	// Name returns the driver's static name, e.g. "tmpfs".
	Name() string

	// Lookup resolves name within the directory parent. name must be
	// non-empty and parent must be a Directory.
	Lookup(parent VfsNode, name string) (VfsNode, errors.DriverError)

	// Open returns a FileObject bound to node, honoring flags.
	Open(node VfsNode, flags OpenFlags) (FileObject, errors.DriverError)

	// Create makes a new node named name inside parent.
	Create(parent VfsNode, name string, fileType FileType, perm Permissions) (VfsNode, errors.DriverError)

	// CreateHardlink adds a second directory edge to target, named
	// linkName, inside linkParent. target must already belong to this
	// filesystem and must not be a Directory.
	CreateHardlink(linkParent VfsNode, linkName string, target VfsNode) (VfsNode, errors.DriverError)

	// Remove deletes the directory edge named name inside parent. If the
	// named child is a non-empty Directory, it fails with
	// errors.DirectoryNotEmpty.
	Remove(parent VfsNode, name string) errors.DriverError

	// Readdir returns node's entries, beginning with "." and "..", the
	// remainder sorted by FileID ascending.
	Readdir(node VfsNode) ([]DirectoryEntryInternal, errors.DriverError)

	// RootNode returns the filesystem's root directory node. Infallible.
	RootNode() VfsNode

	// IsReadOnly reports whether this filesystem instance rejects all
	// mutation. Infallible.
	IsReadOnly() bool
}
