// Package device is the minimal stand-in for the kernel device manager that
// spec section 1 names as an external collaborator. TmpFS device nodes and
// DevFS need something concrete to bind to; this package provides a
// process-wide registry of named Char/Block devices without implementing a
// real block-device driver stack (virtio-blk and friends remain genuinely
// out of scope).
package device

import (
	"sort"
	"sync"

	"github.com/boljen/go-bitmap"
	"github.com/wyrmwood-systems/vfscore/errors"
)

// Kind distinguishes the two device families the VFS core cares about.
type Kind uint8

const (
	Char Kind = iota
	Block
)

// Device is the capability every registered device exposes. Concrete
// devices additionally implement CharStream or BlockStore depending on
// Kind.
type Device interface {
	ID() uint64
	Kind() Kind
	Name() string
}

// CharStream is the capability a Char device exposes: byte-addressable
// reads/writes at a caller-supplied logical offset.
type CharStream interface {
	Device
	ReadAt(buf []byte, offset int64) (int, errors.DriverError)
	WriteAt(buf []byte, offset int64) (int, errors.DriverError)
}

// BlockStore is the capability a Block device exposes: fixed-size sector
// reads/writes. DevFS device handles always target sector 0; TmpFS device
// handles map their byte cursor onto a sector index and an in-sector
// offset, so they do not always target sector 0.
type BlockStore interface {
	Device
	SectorSize() int
	ReadSector(sector uint64, buf []byte) (int, errors.DriverError)
	WriteSector(sector uint64, buf []byte) (int, errors.DriverError)
}

// maxDeviceIDs bounds the bitmap allocator's ID space. It is generous enough
// that no realistic test or CLI session exhausts it.
const maxDeviceIDs = 1 << 16

// Manager is a process-wide registry of named devices, grounded on the
// original kernel's DeviceManager singleton (get_named_devices,
// get_device_id_by_name). IDs are allocated first-fit from a bitmap, the
// same allocation strategy the teacher uses for on-disk block allocation.
type Manager struct {
	mu      sync.RWMutex
	byName  map[string]Device
	byID    map[uint64]Device
	ids     bitmap.Bitmap
}

// NewManager creates an empty device registry. Production code normally
// uses the process-wide default returned by Default(); NewManager exists so
// tests can build an isolated registry.
func NewManager() *Manager {
	return &Manager{
		byName: make(map[string]Device),
		byID:   make(map[uint64]Device),
		ids:    bitmap.New(maxDeviceIDs),
	}
}

var defaultManager = NewManager()

// Default returns the process-wide device manager singleton. The tmpfs
// Driver registered at init time hands it to the instances it builds;
// devfs.New and tmpfs.New take their *Manager explicitly and never fall
// back to it.
func Default() *Manager { return defaultManager }

// allocateID returns the first free ID, first-fit, mirroring
// Allocator.AllocateBlock in the teacher's bitmap allocator.
func (m *Manager) allocateID() (uint64, errors.DriverError) {
	for i := 0; i < maxDeviceIDs; i++ {
		if !m.ids.Get(i) {
			m.ids.Set(i, true)
			return uint64(i), nil
		}
	}
	return 0, errors.NoSpace.WithMessage("device manager has no free device IDs")
}

// namedDevice wraps a caller-provided device to attach the manager-assigned
// ID, since callers construct devices without knowing their eventual ID.
type namedDevice struct {
	Device
	id   uint64
	kind Kind
	name string
}

func (d namedDevice) ID() uint64   { return d.id }
func (d namedDevice) Kind() Kind   { return d.kind }
func (d namedDevice) Name() string { return d.name }

// namedDevice structurally implements CharStream and BlockStore regardless
// of what its wrapped Device actually is, forwarding to the wrapped value
// when it supports the call and failing errors.NotSupported otherwise. This
// matters because embedding the Device *interface* only promotes the
// interface's own method set (ID/Kind/Name); it does not promote ReadAt,
// WriteAt, or the sector methods a concrete *RamCharDevice or
// *RamBlockDevice implements, so a bare type assertion against the
// embedded value would never see them.
func (d namedDevice) ReadAt(buf []byte, offset int64) (int, errors.DriverError) {
	if cs, ok := d.Device.(CharStream); ok {
		return cs.ReadAt(buf, offset)
	}
	return 0, errors.NotSupported.WithMessage("device is not a char stream")
}

func (d namedDevice) WriteAt(buf []byte, offset int64) (int, errors.DriverError) {
	if cs, ok := d.Device.(CharStream); ok {
		return cs.WriteAt(buf, offset)
	}
	return 0, errors.NotSupported.WithMessage("device is not a char stream")
}

func (d namedDevice) SectorSize() int {
	if bs, ok := d.Device.(BlockStore); ok {
		return bs.SectorSize()
	}
	return 0
}

func (d namedDevice) ReadSector(sector uint64, buf []byte) (int, errors.DriverError) {
	if bs, ok := d.Device.(BlockStore); ok {
		return bs.ReadSector(sector, buf)
	}
	return 0, errors.NotSupported.WithMessage("device is not a block store")
}

func (d namedDevice) WriteSector(sector uint64, buf []byte) (int, errors.DriverError) {
	if bs, ok := d.Device.(BlockStore); ok {
		return bs.WriteSector(sector, buf)
	}
	return 0, errors.NotSupported.WithMessage("device is not a block store")
}

// RegisterNamed registers device under name, allocating a fresh manager ID.
// Re-registering an already-used name fails with errors.AlreadyExists.
func (m *Manager) RegisterNamed(name string, kind Kind, device Device) (uint64, errors.DriverError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[name]; exists {
		return 0, errors.AlreadyExists.WithMessage("device already registered: " + name)
	}

	id, err := m.allocateID()
	if err != nil {
		return 0, err
	}

	wrapped := namedDevice{Device: device, id: id, kind: kind, name: name}
	m.byName[name] = wrapped
	m.byID[id] = wrapped
	return id, nil
}

// Unregister removes a device and frees its ID for reuse.
func (m *Manager) Unregister(name string) errors.DriverError {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, ok := m.byName[name]
	if !ok {
		return errors.NotFound.WithMessage("no such device: " + name)
	}
	delete(m.byName, name)
	delete(m.byID, dev.ID())
	m.ids.Set(int(dev.ID()), false)
	return nil
}

// Lookup returns the device registered by ID.
func (m *Manager) Lookup(id uint64) (Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.byID[id]
	return d, ok
}

// LookupByName returns the device registered under name.
func (m *Manager) LookupByName(name string) (Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.byName[name]
	return d, ok
}

// NamedDevice pairs a device's registration name with the device itself,
// matching the shape DevFS needs to project a directory listing.
type NamedDevice struct {
	Name   string
	Device Device
}

// Named returns every registered device, sorted by name for deterministic
// iteration (DevFS re-sorts by FileID per the readdir contract, but a
// stable input ordering keeps tests reproducible even before that sort).
func (m *Manager) Named() []NamedDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]NamedDevice, 0, len(m.byName))
	for name, dev := range m.byName {
		out = append(out, NamedDevice{Name: name, Device: dev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
