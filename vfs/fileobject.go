package vfs

import "github.com/wyrmwood-systems/vfscore/errors"

// SeekWhence is the three-way origin for FileObject.Seek, per section 4.C.
type SeekWhence int

const (
	SeekStart SeekWhence = iota
	SeekCurrent
	SeekEnd
)

// SeekRequest names an offset relative to a SeekWhence origin.
type SeekRequest struct {
	Whence SeekWhence
	Offset int64
}

// StreamOps is the minimal read/write capability a FileObject exposes.
type StreamOps interface {
	Read(buf []byte) (int, errors.DriverError)
	Write(buf []byte) (int, errors.DriverError)
}

// ControlOps is the hook for opaque control commands on an open handle.
// device.Device has no control surface, so no FileObject in this module
// forwards control commands: every implementation, device-bound or not,
// reports errors.NotSupported.
type ControlOps interface {
	Control(cmd uint32, arg []byte) ([]byte, errors.DriverError)
}

// MemoryMappingOps is the capability hook section 1 calls out as the only
// in-scope trace of mmap support: it exists so a device-backed FileObject
// can hand a caller something mappable, without the VFS core implementing
// page-fault handling itself.
type MemoryMappingOps interface {
	// MemoryMap reports whether this FileObject can back a memory mapping
	// of length bytes starting at offset, returning an opaque capability
	// token the external mmap machinery understands. Drivers that don't
	// support this return errors.NotSupported.
	MemoryMap(offset int64, length int64) (interface{}, errors.DriverError)
}

// FileObject represents an open view onto a node (component C).
type FileObject interface {
	StreamOps
	ControlOps
	MemoryMappingOps

	// Seek repositions this handle's cursor and returns the new absolute
	// position.
	Seek(req SeekRequest) (int64, errors.DriverError)

	// Metadata returns a snapshot of the bound node's metadata.
	Metadata() Metadata

	// Truncate resizes RegularFile content. Fails errors.IsADirectory on
	// directories and errors.NotSupported on device files.
	Truncate(size int64) errors.DriverError

	// Node returns the node this handle is bound to.
	Node() VfsNode

	// Close releases any borrowed resources (e.g. a device handle borrowed
	// from the device manager for this handle's lifetime).
	Close() errors.DriverError
}
