package device

import (
	"sync"

	"github.com/wyrmwood-systems/vfscore/errors"
)

// RamCharDevice is a RAM-resident CharStream: a growable byte buffer
// addressed by logical offset, guarded by its own lock so concurrent
// FileObjects bound to it serialize the same way TmpFS content does.
type RamCharDevice struct {
	mu      sync.RWMutex
	content []byte
}

// NewRamCharDevice creates an empty char device.
func NewRamCharDevice() *RamCharDevice {
	return &RamCharDevice{}
}

func (d *RamCharDevice) ID() uint64   { return 0 }
func (d *RamCharDevice) Kind() Kind   { return Char }
func (d *RamCharDevice) Name() string { return "" }

func (d *RamCharDevice) ReadAt(buf []byte, offset int64) (int, errors.DriverError) {
	if offset < 0 {
		return 0, errors.InvalidArgument.WithMessage("negative offset")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if offset >= int64(len(d.content)) {
		return 0, nil
	}
	n := copy(buf, d.content[offset:])
	return n, nil
}

func (d *RamCharDevice) WriteAt(buf []byte, offset int64) (int, errors.DriverError) {
	if offset < 0 {
		return 0, errors.InvalidArgument.WithMessage("negative offset")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	end := offset + int64(len(buf))
	if end > int64(len(d.content)) {
		grown := make([]byte, end)
		copy(grown, d.content)
		d.content = grown
	}
	copy(d.content[offset:end], buf)
	return len(buf), nil
}
