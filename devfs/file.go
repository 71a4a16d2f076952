package devfs

import (
	"sync"

	"github.com/wyrmwood-systems/vfscore/device"
	"github.com/wyrmwood-systems/vfscore/errors"
	"github.com/wyrmwood-systems/vfscore/vfs"
)

// directoryHandle serves the root directory's DirectoryEntry stream from a
// snapshot taken at Open time, matching the snapshot-at-open behavior every
// driver's directory FileObject shares in this module (see the DevFS
// refresh-granularity Open Question decision in DESIGN.md). Per section
// 4.C, position is an entry index: each Read encodes exactly one entry and
// advances by one, never by bytes.
type directoryHandle struct {
	node *rootNode

	mu     sync.Mutex
	cursor *vfs.DirectoryEntryCursor
}

func newDirectoryHandle(node *rootNode, entries []vfs.DirectoryEntryInternal) *directoryHandle {
	return &directoryHandle{node: node, cursor: vfs.NewDirectoryEntryCursor(entries)}
}

func (h *directoryHandle) Read(buf []byte) (int, errors.DriverError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor.Next(buf)
}

func (h *directoryHandle) Write(buf []byte) (int, errors.DriverError) {
	return 0, errors.IsADirectory.WithMessage("cannot write to a directory")
}

func (h *directoryHandle) Seek(req vfs.SeekRequest) (int64, errors.DriverError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor.Seek(req)
}

func (h *directoryHandle) Metadata() vfs.Metadata {
	return vfs.Metadata{FileID: rootFileID, Permissions: vfs.Permissions{Read: true, Execute: true}, LinkCount: 1}
}

func (h *directoryHandle) Truncate(size int64) errors.DriverError {
	return errors.IsADirectory.WithMessage("cannot truncate a directory")
}

func (h *directoryHandle) Node() vfs.VfsNode { return h.node }

func (h *directoryHandle) Close() errors.DriverError { return nil }

func (h *directoryHandle) Control(cmd uint32, arg []byte) ([]byte, errors.DriverError) {
	return nil, errors.NotSupported.WithMessage("directory handles do not implement control operations")
}

func (h *directoryHandle) MemoryMap(offset, length int64) (interface{}, errors.DriverError) {
	return nil, errors.NotSupported.WithMessage("directories cannot be memory-mapped")
}

// deviceHandle binds a FileObject to a borrowed device handle. Char reads
// and writes use the handle's own cursor as a byte offset; block reads and
// writes always target sector 0, per section 4.F.
type deviceHandle struct {
	node *deviceFileNode
	dev  device.Device

	mu     sync.Mutex
	cursor int64
}

func newDeviceHandle(node *deviceFileNode, dev device.Device) (*deviceHandle, errors.DriverError) {
	switch dev.Kind() {
	case device.Char, device.Block:
		return &deviceHandle{node: node, dev: dev}, nil
	default:
		return nil, errors.NotSupported.WithMessage("unsupported device kind")
	}
}

func (h *deviceHandle) Read(buf []byte) (int, errors.DriverError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.dev.Kind() {
	case device.Char:
		stream, ok := h.dev.(device.CharStream)
		if !ok {
			return 0, errors.NotSupported.WithMessage("device is not a char stream")
		}
		n, err := stream.ReadAt(buf, h.cursor)
		if err == nil {
			h.cursor += int64(n)
		}
		return n, err
	case device.Block:
		store, ok := h.dev.(device.BlockStore)
		if !ok {
			return 0, errors.NotSupported.WithMessage("device is not a block store")
		}
		sector := make([]byte, store.SectorSize())
		if _, err := store.ReadSector(0, sector); err != nil {
			return 0, err
		}
		return copy(buf, sector), nil
	default:
		return 0, errors.NotSupported.WithMessage("unsupported device kind")
	}
}

func (h *deviceHandle) Write(buf []byte) (int, errors.DriverError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.dev.Kind() {
	case device.Char:
		stream, ok := h.dev.(device.CharStream)
		if !ok {
			return 0, errors.NotSupported.WithMessage("device is not a char stream")
		}
		n, err := stream.WriteAt(buf, h.cursor)
		if err == nil {
			h.cursor += int64(n)
		}
		return n, err
	case device.Block:
		store, ok := h.dev.(device.BlockStore)
		if !ok {
			return 0, errors.NotSupported.WithMessage("device is not a block store")
		}
		sectorSize := store.SectorSize()
		sector := make([]byte, sectorSize)
		n := copy(sector, buf)
		if _, err := store.WriteSector(0, sector); err != nil {
			return 0, err
		}
		return n, nil
	default:
		return 0, errors.NotSupported.WithMessage("unsupported device kind")
	}
}

func (h *deviceHandle) Seek(req vfs.SeekRequest) (int64, errors.DriverError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var target int64
	switch req.Whence {
	case vfs.SeekStart:
		target = req.Offset
	case vfs.SeekCurrent:
		target = h.cursor + req.Offset
	case vfs.SeekEnd:
		return 0, errors.NotSupported.WithMessage("device files have no end to seek relative to")
	default:
		return 0, errors.InvalidArgument.WithMessage("unknown seek whence")
	}
	if target < 0 {
		return 0, errors.InvalidArgument.WithMessage("seek would produce a negative offset")
	}
	h.cursor = target
	return target, nil
}

func (h *deviceHandle) Metadata() vfs.Metadata {
	return vfs.Metadata{FileID: h.dev.ID(), Permissions: vfs.Permissions{Read: true, Write: true}, LinkCount: 1}
}

func (h *deviceHandle) Truncate(size int64) errors.DriverError {
	return errors.NotSupported.WithMessage("cannot truncate a device file")
}

func (h *deviceHandle) Node() vfs.VfsNode { return h.node }

func (h *deviceHandle) Close() errors.DriverError { return nil }

func (h *deviceHandle) Control(cmd uint32, arg []byte) ([]byte, errors.DriverError) {
	return nil, errors.NotSupported.WithMessage("device handles do not implement control operations")
}

func (h *deviceHandle) MemoryMap(offset, length int64) (interface{}, errors.DriverError) {
	if store, ok := h.dev.(device.BlockStore); ok {
		return store, nil
	}
	return nil, errors.NotSupported.WithMessage("device does not support memory mapping")
}
