package vfs

import "github.com/wyrmwood-systems/vfscore/errors"

// DirectoryEntryCursor streams a directory's DirectoryEntryInternal slice one
// record at a time, per section 4.C: position is an entry index, not a byte
// offset, and every Next call encodes exactly one entry. A buffer smaller
// than that entry's EntrySize() fails errors.InvalidArgument rather than
// returning a truncated record.
type DirectoryEntryCursor struct {
	entries []DirectoryEntryInternal
	pos     int64
}

// NewDirectoryEntryCursor snapshots entries at construction time; the
// snapshot does not change underfoot for the lifetime of the cursor.
func NewDirectoryEntryCursor(entries []DirectoryEntryInternal) *DirectoryEntryCursor {
	return &DirectoryEntryCursor{entries: entries}
}

// Len reports the total number of entries in the snapshot.
func (c *DirectoryEntryCursor) Len() int64 { return int64(len(c.entries)) }

// Next encodes the entry at the current position into buf and advances the
// position by one. Returns (0, nil) once the position reaches the end.
func (c *DirectoryEntryCursor) Next(buf []byte) (int, errors.DriverError) {
	if c.pos < 0 || c.pos >= int64(len(c.entries)) {
		return 0, nil
	}
	de := FromInternal(c.entries[c.pos])
	if len(buf) < de.EntrySize() {
		return 0, errors.InvalidArgument.WithMessage("buffer too small for directory entry")
	}
	n, err := de.Encode(buf)
	if err != nil {
		return 0, err
	}
	c.pos++
	return n, nil
}

// Seek repositions the cursor by entry index, honoring the same
// SeekStart/SeekCurrent/SeekEnd semantics as a byte stream but counting
// entries instead of bytes.
func (c *DirectoryEntryCursor) Seek(req SeekRequest) (int64, errors.DriverError) {
	var target int64
	switch req.Whence {
	case SeekStart:
		target = req.Offset
	case SeekCurrent:
		target = c.pos + req.Offset
	case SeekEnd:
		target = int64(len(c.entries)) + req.Offset
	default:
		return 0, errors.InvalidArgument.WithMessage("unknown seek whence")
	}
	if target < 0 {
		return 0, errors.InvalidArgument.WithMessage("seek would produce a negative offset")
	}
	c.pos = target
	return target, nil
}
