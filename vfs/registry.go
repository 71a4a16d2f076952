package vfs

import (
	"sort"
	"sync"

	"github.com/wyrmwood-systems/vfscore/errors"
)

// FilesystemDriver is what a driver package registers with the global
// registry so it can be instantiated by name (section 6). A driver package
// is expected to call Register from an init() function, mirroring the
// teacher's self-registering driver convention.
type FilesystemDriver interface {
	// DriverName is the static name callers pass to New/FromOptionString,
	// e.g. "tmpfs".
	DriverName() string

	// DriverType classifies how this driver is backed.
	DriverType() FilesystemType

	// FromOptionString constructs a filesystem instance from a comma
	// separated option string, e.g. "size=64M,mem=1048576". Unknown
	// options must be ignored, per section 6.
	FromOptionString(options string) (FilesystemOperations, errors.DriverError)
}

// registry is the process-wide driver registration table described in
// section 9 as a global-mutable-state singleton: drivers self-register at
// package init time, and tests may verify registration presence but must
// not depend on registration order.
type registry struct {
	mu      sync.RWMutex
	drivers map[string]FilesystemDriver
}

var defaultRegistry = &registry{drivers: make(map[string]FilesystemDriver)}

// Register installs a driver under its DriverName. Re-registering the same
// name overwrites the previous entry; this is intentional so tests can
// substitute fakes without restarting the process.
func Register(driver FilesystemDriver) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.drivers[driver.DriverName()] = driver
}

// Lookup returns the driver registered under name, if any.
func Lookup(name string) (FilesystemDriver, bool) {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	d, ok := defaultRegistry.drivers[name]
	return d, ok
}

// RegisteredNames returns the names of every registered driver, sorted for
// deterministic test output.
func RegisteredNames() []string {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	names := make([]string, 0, len(defaultRegistry.drivers))
	for name := range defaultRegistry.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New instantiates the named driver from an option string.
func New(name string, options string) (FilesystemOperations, errors.DriverError) {
	driver, ok := Lookup(name)
	if !ok {
		return nil, errors.NotFound.WithMessage("no filesystem driver registered under name " + name)
	}
	return driver.FromOptionString(options)
}
