package device

import (
	"github.com/wyrmwood-systems/vfscore/errors"
)

// RamBlockDevice is a RAM-resident BlockStore: a fixed number of
// fixed-size sectors held as a [][]byte. It adapts the bounds-checked
// sector arithmetic of the teacher's BlockDevice (block ID range check,
// size-is-a-multiple-of-block-size check) to an in-memory backing store
// instead of an io.Seeker-backed disk image, since this spec's device
// manager is a mock standing in for "virtio-blk, mock" (section 1), not a
// real block-device stack.
type RamBlockDevice struct {
	sectorSize  int
	sectors     [][]byte
}

// NewRamBlockDevice creates a block device of totalSectors sectors, each
// sectorSize bytes, all initially zeroed.
func NewRamBlockDevice(totalSectors int, sectorSize int) *RamBlockDevice {
	sectors := make([][]byte, totalSectors)
	for i := range sectors {
		sectors[i] = make([]byte, sectorSize)
	}
	return &RamBlockDevice{sectorSize: sectorSize, sectors: sectors}
}

func (d *RamBlockDevice) ID() uint64    { return 0 } // overwritten by namedDevice on registration
func (d *RamBlockDevice) Kind() Kind    { return Block }
func (d *RamBlockDevice) Name() string  { return "" }
func (d *RamBlockDevice) SectorSize() int { return d.sectorSize }

// checkBounds mirrors BlockDevice.CheckIOBounds: the sector index must be in
// range and the buffer must be exactly one sector.
func (d *RamBlockDevice) checkBounds(sector uint64, bufLen int) errors.DriverError {
	if sector >= uint64(len(d.sectors)) {
		return errors.InvalidArgument.WithMessage("sector index out of range")
	}
	if bufLen != d.sectorSize {
		return errors.InvalidArgument.WithMessage("buffer must be exactly one sector")
	}
	return nil
}

func (d *RamBlockDevice) ReadSector(sector uint64, buf []byte) (int, errors.DriverError) {
	if err := d.checkBounds(sector, len(buf)); err != nil {
		return 0, err
	}
	copy(buf, d.sectors[sector])
	return len(buf), nil
}

func (d *RamBlockDevice) WriteSector(sector uint64, buf []byte) (int, errors.DriverError) {
	if err := d.checkBounds(sector, len(buf)); err != nil {
		return 0, err
	}
	copy(d.sectors[sector], buf)
	return len(buf), nil
}
