package tmpfs

import (
	"io"
	"sync"

	"github.com/wyrmwood-systems/vfscore/device"
	"github.com/wyrmwood-systems/vfscore/errors"
	"github.com/wyrmwood-systems/vfscore/vfs"
	"github.com/xaionaro-go/bytesextra"
)

// fileObject is the tmpfs FileObject (component C). Regular files and
// symlinks read and write n.content directly, guarded by n.contentMu.
// Directory handles snapshot their entry stream at Open time, per the
// decision that a directory FileObject's view does not change underfoot
// mid-read. Device-kind nodes borrow a handle from the device manager for
// the FileObject's lifetime and forward stream ops to it.
type fileObject struct {
	fs    *TmpFS
	n     *node
	flags vfs.OpenFlags

	cursorMu sync.Mutex
	cursor   int64

	dirCursor *vfs.DirectoryEntryCursor // snapshot, Directory only

	deviceHandle device.Device // non-nil for CharDevice/BlockDevice

	closeMu sync.Mutex
	closed  bool
}

func newFileObject(fs *TmpFS, n *node, flags vfs.OpenFlags) (*fileObject, errors.DriverError) {
	fo := &fileObject{fs: fs, n: n, flags: flags}

	switch n.FileTypeOf().Tag {
	case vfs.Directory:
		entries, err := fs.Readdir(n)
		if err != nil {
			return nil, err
		}
		fo.dirCursor = vfs.NewDirectoryEntryCursor(entries)

	case vfs.RegularFile:
		if flags.WantsTrunc() {
			n.contentMu.Lock()
			freed := int64(len(n.content))
			n.content = nil
			n.contentMu.Unlock()
			fs.release(freed)
			n.setSize(0)
		}
		if flags.WantsAppend() {
			n.contentMu.RLock()
			fo.cursor = int64(len(n.content))
			n.contentMu.RUnlock()
		}

	case vfs.CharDevice, vfs.BlockDevice:
		if fs.deviceManager == nil {
			return nil, errors.PermissionDenied.WithMessage("no device manager configured")
		}
		dev, ok := fs.deviceManager.Lookup(n.FileTypeOf().Device.DeviceID)
		if !ok {
			return nil, errors.PermissionDenied.WithMessage("bound device is no longer registered")
		}
		fo.deviceHandle = dev
	}

	return fo, nil
}

func (fo *fileObject) Node() vfs.VfsNode { return fo.n }

func (fo *fileObject) Metadata() vfs.Metadata { return fo.n.Metadata() }

func (fo *fileObject) Close() errors.DriverError {
	fo.closeMu.Lock()
	defer fo.closeMu.Unlock()
	fo.closed = true
	fo.deviceHandle = nil
	return nil
}

func (fo *fileObject) Control(cmd uint32, arg []byte) ([]byte, errors.DriverError) {
	return nil, errors.NotSupported.WithMessage("tmpfs handles do not implement control operations")
}

func (fo *fileObject) MemoryMap(offset int64, length int64) (interface{}, errors.DriverError) {
	return nil, errors.NotSupported.WithMessage("tmpfs does not support memory mapping")
}

func (fo *fileObject) Read(buf []byte) (int, errors.DriverError) {
	switch fo.n.FileTypeOf().Tag {
	case vfs.Directory:
		fo.cursorMu.Lock()
		defer fo.cursorMu.Unlock()
		return fo.dirCursor.Next(buf)

	case vfs.SymbolicLink:
		fo.n.contentMu.RLock()
		defer fo.n.contentMu.RUnlock()
		return fo.readFromBlob(fo.n.content, buf)

	case vfs.RegularFile:
		fo.cursorMu.Lock()
		fo.n.contentMu.RLock()
		n, err := fo.readFromBlobLocked(fo.n.content, buf)
		fo.n.contentMu.RUnlock()
		fo.cursorMu.Unlock()
		if err == nil {
			fo.n.touchAccessed()
		}
		return n, err

	case vfs.CharDevice:
		fo.cursorMu.Lock()
		defer fo.cursorMu.Unlock()
		stream, ok := fo.deviceHandle.(device.CharStream)
		if !ok {
			return 0, errors.NotSupported.WithMessage("bound device is not a char stream")
		}
		n, err := stream.ReadAt(buf, fo.cursor)
		if err == nil {
			fo.cursor += int64(n)
		}
		return n, err

	case vfs.BlockDevice:
		return fo.readBlockDevice(buf)

	default:
		return 0, errors.NotSupported.WithMessage("unsupported file type for read")
	}
}

// readFromBlob copies from an immutable byte slice using fo.cursorMu, for
// symlink targets: content fixed at creation, so no concurrent writer can
// grow it out from under a reader.
func (fo *fileObject) readFromBlob(blob []byte, buf []byte) (int, errors.DriverError) {
	fo.cursorMu.Lock()
	defer fo.cursorMu.Unlock()
	return fo.readFromBlobLocked(blob, buf)
}

// readFromBlobLocked assumes fo.cursorMu (and, for mutable content, the
// node's contentMu) is already held by the caller. It uses bytesextra's
// ReadWriteSeeker, the same cursor-over-a-byte-slice abstraction the
// teacher built basicstream.go on top of, rather than hand-rolling the
// copy-and-advance arithmetic for what is otherwise identical to seeking
// and reading an *os.File.
func (fo *fileObject) readFromBlobLocked(blob []byte, buf []byte) (int, errors.DriverError) {
	stream := bytesextra.NewReadWriteSeeker(blob)
	if _, serr := stream.Seek(fo.cursor, io.SeekStart); serr != nil {
		return 0, errors.IoError.Wrap(serr)
	}
	n, rerr := stream.Read(buf)
	if rerr != nil && rerr != io.EOF {
		return 0, errors.IoError.Wrap(rerr)
	}
	fo.cursor += int64(n)
	return n, nil
}

func (fo *fileObject) readBlockDevice(buf []byte) (int, errors.DriverError) {
	store, ok := fo.deviceHandle.(device.BlockStore)
	if !ok {
		return 0, errors.NotSupported.WithMessage("bound device is not a block store")
	}
	fo.cursorMu.Lock()
	defer fo.cursorMu.Unlock()

	sectorSize := store.SectorSize()
	total := 0
	sector := make([]byte, sectorSize)
	for total < len(buf) {
		sectorIdx := uint64(fo.cursor) / uint64(sectorSize)
		offsetInSector := int(uint64(fo.cursor) % uint64(sectorSize))
		if _, err := store.ReadSector(sectorIdx, sector); err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
		n := copy(buf[total:], sector[offsetInSector:])
		total += n
		fo.cursor += int64(n)
	}
	return total, nil
}

func (fo *fileObject) Write(buf []byte) (int, errors.DriverError) {
	switch fo.n.FileTypeOf().Tag {
	case vfs.Directory:
		return 0, errors.IsADirectory.WithMessage("cannot write to a directory")

	case vfs.SymbolicLink:
		return 0, errors.InvalidOperation.WithMessage("symlink content is immutable after creation")

	case vfs.RegularFile:
		return fo.writeRegular(buf)

	case vfs.CharDevice:
		fo.cursorMu.Lock()
		defer fo.cursorMu.Unlock()
		stream, ok := fo.deviceHandle.(device.CharStream)
		if !ok {
			return 0, errors.NotSupported.WithMessage("bound device is not a char stream")
		}
		n, err := stream.WriteAt(buf, fo.cursor)
		if err == nil {
			fo.cursor += int64(n)
		}
		return n, err

	case vfs.BlockDevice:
		return fo.writeBlockDevice(buf)

	default:
		return 0, errors.NotSupported.WithMessage("unsupported file type for write")
	}
}

func (fo *fileObject) writeRegular(buf []byte) (int, errors.DriverError) {
	fo.cursorMu.Lock()
	defer fo.cursorMu.Unlock()

	fo.n.contentMu.Lock()
	defer fo.n.contentMu.Unlock()

	cursor := fo.cursor
	if fo.flags.WantsAppend() {
		cursor = int64(len(fo.n.content))
	}

	end := cursor + int64(len(buf))
	oldLen := int64(len(fo.n.content))
	if end > oldLen {
		if err := fo.fs.reserve(end - oldLen); err != nil {
			return 0, err
		}
		grown := make([]byte, end)
		copy(grown, fo.n.content)
		fo.n.content = grown
	}

	copy(fo.n.content[cursor:end], buf)
	fo.cursor = end
	fo.n.setSize(int64(len(fo.n.content)))
	return len(buf), nil
}

func (fo *fileObject) writeBlockDevice(buf []byte) (int, errors.DriverError) {
	store, ok := fo.deviceHandle.(device.BlockStore)
	if !ok {
		return 0, errors.NotSupported.WithMessage("bound device is not a block store")
	}
	fo.cursorMu.Lock()
	defer fo.cursorMu.Unlock()

	sectorSize := store.SectorSize()
	sector := make([]byte, sectorSize)
	total := 0
	for total < len(buf) {
		sectorIdx := uint64(fo.cursor) / uint64(sectorSize)
		offsetInSector := int(uint64(fo.cursor) % uint64(sectorSize))

		if offsetInSector != 0 || len(buf)-total < sectorSize {
			if _, err := store.ReadSector(sectorIdx, sector); err != nil {
				if total > 0 {
					return total, nil
				}
				return 0, err
			}
		}
		n := copy(sector[offsetInSector:], buf[total:])
		if _, err := store.WriteSector(sectorIdx, sector); err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
		total += n
		fo.cursor += int64(n)
	}
	return total, nil
}

func (fo *fileObject) Seek(req vfs.SeekRequest) (int64, errors.DriverError) {
	fo.cursorMu.Lock()
	defer fo.cursorMu.Unlock()

	if fo.n.FileTypeOf().Tag == vfs.Directory {
		// Position is an entry index here, not a byte offset; delegate
		// directly instead of folding it into fo.cursor's byte-offset math.
		return fo.dirCursor.Seek(req)
	}

	var size int64
	switch fo.n.FileTypeOf().Tag {
	case vfs.RegularFile, vfs.SymbolicLink:
		fo.n.contentMu.RLock()
		size = int64(len(fo.n.content))
		fo.n.contentMu.RUnlock()
	case vfs.CharDevice, vfs.BlockDevice:
		if req.Whence == vfs.SeekEnd {
			return 0, errors.NotSupported.WithMessage("device files have no end to seek relative to")
		}
	}

	var target int64
	switch req.Whence {
	case vfs.SeekStart:
		target = req.Offset
	case vfs.SeekCurrent:
		target = fo.cursor + req.Offset
	case vfs.SeekEnd:
		target = size + req.Offset
	default:
		return 0, errors.InvalidArgument.WithMessage("unknown seek whence")
	}

	if target < 0 {
		return 0, errors.InvalidArgument.WithMessage("seek would produce a negative offset")
	}

	// Seeking past the current end of a regular file's content does not
	// grow it; a subsequent Write zero-fills the gap (see writeRegular).
	fo.cursor = target
	return target, nil
}

func (fo *fileObject) Truncate(size int64) errors.DriverError {
	if size < 0 {
		return errors.InvalidArgument.WithMessage("negative truncate size")
	}
	switch fo.n.FileTypeOf().Tag {
	case vfs.Directory:
		return errors.IsADirectory.WithMessage("cannot truncate a directory")
	case vfs.SymbolicLink:
		return errors.InvalidOperation.WithMessage("symlink content is immutable after creation")
	case vfs.CharDevice, vfs.BlockDevice:
		return errors.NotSupported.WithMessage("cannot truncate a device file")
	}

	fo.n.contentMu.Lock()
	defer fo.n.contentMu.Unlock()

	oldLen := int64(len(fo.n.content))
	if size > oldLen {
		if err := fo.fs.reserve(size - oldLen); err != nil {
			return err
		}
		grown := make([]byte, size)
		copy(grown, fo.n.content)
		fo.n.content = grown
	} else if size < oldLen {
		fo.fs.release(oldLen - size)
		fo.n.content = fo.n.content[:size]
	}
	fo.n.setSize(size)
	return nil
}
