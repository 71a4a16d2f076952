// Package tmpfs implements the in-memory TmpFS driver described in spec
// section 4.D: a node tree with an optional byte-budget limit, supporting
// every file kind including device nodes that delegate to a device.Manager.
package tmpfs

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wyrmwood-systems/vfscore/device"
	"github.com/wyrmwood-systems/vfscore/errors"
	"github.com/wyrmwood-systems/vfscore/vfs"
)

// DefaultBudgetBytes is used when an option string specifies neither size=
// nor mem=, per section 6.
const DefaultBudgetBytes = 64 * 1024 * 1024

const rootFileID = 1

var defaultDirPermissions = vfs.Permissions{Read: true, Write: true, Execute: true}

// TmpFS is the in-memory filesystem driver (component D).
type TmpFS struct {
	deviceManager *device.Manager

	nextFileID atomic.Uint64

	budgetMu sync.Mutex
	budget   uint64 // 0 = unlimited
	used     uint64

	mountMu    sync.RWMutex
	mounted    bool
	mountPoint string

	root  *node
	fsRef *vfs.FilesystemRef
}

// New creates an unmounted TmpFS with the given byte budget (0 = unlimited)
// and device manager (nil disables device-node opens). This is the
// two-phase construction section 9 describes: the filesystem value is
// built, then its own FilesystemRef is resolved to itself so the root node
// (built with that same, still-unresolved ref) can upgrade back to it.
func New(budgetBytes uint64, deviceManager *device.Manager) *TmpFS {
	fsRef := vfs.NewFilesystemRef()
	fs := &TmpFS{
		deviceManager: deviceManager,
		budget:        budgetBytes,
		fsRef:         fsRef,
	}
	fs.root = newNode(rootFileID, nil, fsRef, vfs.DirectoryType(), defaultDirPermissions)
	fs.nextFileID.Store(rootFileID + 1)
	fsRef.Resolve(fs)
	return fs
}

func (fs *TmpFS) Name() string { return "tmpfs" }

func (fs *TmpFS) IsReadOnly() bool { return false }

func (fs *TmpFS) RootNode() vfs.VfsNode { return fs.root }

// Mount records a mount point. Remounting an already-mounted instance
// fails with errors.AlreadyExists, per section 4.D.
func (fs *TmpFS) Mount(mountPoint string) errors.DriverError {
	fs.mountMu.Lock()
	defer fs.mountMu.Unlock()
	if fs.mounted {
		return errors.AlreadyExists.WithMessage("tmpfs instance is already mounted at " + fs.mountPoint)
	}
	fs.mounted = true
	fs.mountPoint = mountPoint
	return nil
}

// Unmount clears mount state and replaces the root with a fresh empty
// directory, resetting the budget usage counter and the file_id counter.
func (fs *TmpFS) Unmount() errors.DriverError {
	fs.mountMu.Lock()
	defer fs.mountMu.Unlock()

	fs.mounted = false
	fs.mountPoint = ""

	fs.budgetMu.Lock()
	fs.used = 0
	fs.budgetMu.Unlock()

	fs.nextFileID.Store(rootFileID + 1)
	fs.root = newNode(rootFileID, nil, fs.fsRef, vfs.DirectoryType(), defaultDirPermissions)
	return nil
}

func (fs *TmpFS) allocFileID() uint64 {
	return fs.nextFileID.Add(1) - 1
}

// reserve charges additional bytes against the budget. It is the single
// choke point every content-growing operation (write-growth, symlink
// creation, truncate-up) must pass through; serializing all reservations
// behind one mutex is what prevents concurrent writers to different nodes
// from each observing headroom and collectively exceeding the budget
// (section 5, "memory budget enforcement").
func (fs *TmpFS) reserve(additional int64) errors.DriverError {
	if additional <= 0 {
		return nil
	}
	fs.budgetMu.Lock()
	defer fs.budgetMu.Unlock()

	if fs.budget != 0 && fs.used+uint64(additional) > fs.budget {
		return errors.NoSpace.WithMessage("tmpfs budget exhausted")
	}
	fs.used += uint64(additional)
	return nil
}

// release refunds bytes to the budget with saturating arithmetic so a
// double-release can never underflow it negative.
func (fs *TmpFS) release(amount int64) {
	if amount <= 0 {
		return
	}
	fs.budgetMu.Lock()
	defer fs.budgetMu.Unlock()
	if uint64(amount) >= fs.used {
		fs.used = 0
	} else {
		fs.used -= uint64(amount)
	}
}

// UsedBytes reports current budget consumption; exported for tests.
func (fs *TmpFS) UsedBytes() uint64 {
	fs.budgetMu.Lock()
	defer fs.budgetMu.Unlock()
	return fs.used
}

func asNode(n vfs.VfsNode) (*node, errors.DriverError) {
	tn, ok := n.(*node)
	if !ok {
		return nil, errors.NotSupported.WithMessage("node does not belong to this tmpfs instance")
	}
	return tn, nil
}

func (fs *TmpFS) Lookup(parent vfs.VfsNode, name string) (vfs.VfsNode, errors.DriverError) {
	if name == "" {
		return nil, errors.InvalidPath.WithMessage("empty name")
	}
	parentNode, err := asNode(parent)
	if err != nil {
		return nil, err
	}
	if !parentNode.FileTypeOf().IsDir() {
		return nil, errors.NotADirectory.WithMessage("lookup requires a directory parent")
	}

	switch name {
	case ".":
		return parentNode, nil
	case "..":
		if parentNode.parent != nil {
			return parentNode.parent, nil
		}
		return parentNode, nil
	}

	child, ok := parentNode.getChild(name)
	if !ok {
		return nil, errors.NotFound.WithMessage("no such entry: " + name)
	}
	return child, nil
}

func (fs *TmpFS) Create(parent vfs.VfsNode, name string, fileType vfs.FileType, perm vfs.Permissions) (vfs.VfsNode, errors.DriverError) {
	if name == "" || name == "." || name == ".." {
		return nil, errors.InvalidPath.WithMessage("invalid entry name: " + name)
	}
	parentNode, err := asNode(parent)
	if err != nil {
		return nil, err
	}
	if !parentNode.FileTypeOf().IsDir() {
		return nil, errors.NotADirectory.WithMessage("create requires a directory parent")
	}

	// Symlink creation charges its target-path bytes against the budget,
	// per section 4.D; this must happen before the node is inserted so a
	// failed reservation leaves the directory unchanged.
	if fileType.Tag == vfs.SymbolicLink {
		if err := fs.reserve(int64(len(fileType.Target))); err != nil {
			return nil, err
		}
	}

	parentNode.childrenMu.Lock()
	if _, exists := parentNode.children[name]; exists {
		parentNode.childrenMu.Unlock()
		if fileType.Tag == vfs.SymbolicLink {
			fs.release(int64(len(fileType.Target)))
		}
		return nil, errors.AlreadyExists.WithMessage("already exists: " + name)
	}
	child := newNode(fs.allocFileID(), parentNode, fs.fsRef, fileType, perm)
	if fileType.Tag == vfs.SymbolicLink {
		child.content = []byte(fileType.Target)
		child.meta.Size = int64(len(fileType.Target))
	}
	parentNode.children[name] = child
	parentNode.childrenMu.Unlock()

	parentNode.touchModified()
	return child, nil
}

func (fs *TmpFS) CreateHardlink(linkParent vfs.VfsNode, linkName string, target vfs.VfsNode) (vfs.VfsNode, errors.DriverError) {
	if linkName == "" || linkName == "." || linkName == ".." {
		return nil, errors.InvalidPath.WithMessage("invalid link name: " + linkName)
	}
	parentNode, err := asNode(linkParent)
	if err != nil {
		return nil, err
	}
	targetNode, err := asNode(target)
	if err != nil {
		return nil, errors.CrossDevice.WithMessage("hard link target belongs to a different filesystem")
	}
	if targetNode.FileTypeOf().IsDir() {
		return nil, errors.InvalidOperation.WithMessage("cannot hard link a directory")
	}
	if targetFs, ok := targetNode.Filesystem().Upgrade(); !ok || targetFs != vfs.FilesystemOperations(fs) {
		return nil, errors.CrossDevice.WithMessage("hard link target belongs to a different filesystem instance")
	}

	parentNode.childrenMu.Lock()
	if _, exists := parentNode.children[linkName]; exists {
		parentNode.childrenMu.Unlock()
		return nil, errors.AlreadyExists.WithMessage("already exists: " + linkName)
	}
	parentNode.children[linkName] = targetNode
	parentNode.childrenMu.Unlock()

	targetNode.incLinkCount()
	parentNode.touchModified()
	return targetNode, nil
}

func (fs *TmpFS) Remove(parent vfs.VfsNode, name string) errors.DriverError {
	if name == "" || name == "." || name == ".." {
		return errors.InvalidPath.WithMessage("invalid entry name: " + name)
	}
	parentNode, err := asNode(parent)
	if err != nil {
		return err
	}

	parentNode.childrenMu.Lock()
	child, ok := parentNode.children[name]
	if !ok {
		parentNode.childrenMu.Unlock()
		return errors.NotFound.WithMessage("no such entry: " + name)
	}
	if child.FileTypeOf().IsDir() {
		child.childrenMu.RLock()
		empty := len(child.children) == 0
		child.childrenMu.RUnlock()
		if !empty {
			parentNode.childrenMu.Unlock()
			return errors.DirectoryNotEmpty.WithMessage("directory not empty: " + name)
		}
	}
	delete(parentNode.children, name)
	parentNode.childrenMu.Unlock()
	parentNode.touchModified()

	remaining := child.decLinkCount()
	if remaining == 0 {
		child.contentMu.Lock()
		freed := int64(len(child.content))
		child.content = nil
		child.contentMu.Unlock()
		fs.release(freed)
	}
	return nil
}

func (fs *TmpFS) Readdir(n vfs.VfsNode) ([]vfs.DirectoryEntryInternal, errors.DriverError) {
	dirNode, err := asNode(n)
	if err != nil {
		return nil, err
	}
	if !dirNode.FileTypeOf().IsDir() {
		return nil, errors.NotADirectory.WithMessage("readdir requires a directory")
	}

	selfID := dirNode.ID()
	parentID := selfID
	if dirNode.parent != nil {
		parentID = dirNode.parent.ID()
	}

	entries := []vfs.DirectoryEntryInternal{
		{Name: ".", FileType: vfs.Directory, FileID: selfID},
		{Name: "..", FileType: vfs.Directory, FileID: parentID},
	}

	type childEntry struct {
		name string
		node *node
	}
	dirNode.childrenMu.RLock()
	children := make([]childEntry, 0, len(dirNode.children))
	for name, c := range dirNode.children {
		children = append(children, childEntry{name, c})
	}
	dirNode.childrenMu.RUnlock()

	sort.Slice(children, func(i, j int) bool { return children[i].node.ID() < children[j].node.ID() })

	for _, c := range children {
		entries = append(entries, vfs.DirectoryEntryInternal{
			Name:     c.name,
			FileType: c.node.FileTypeOf().Tag,
			FileID:   c.node.ID(),
		})
	}
	return entries, nil
}

func (fs *TmpFS) Open(n vfs.VfsNode, flags vfs.OpenFlags) (vfs.FileObject, errors.DriverError) {
	tn, err := asNode(n)
	if err != nil {
		return nil, err
	}
	return newFileObject(fs, tn, flags)
}

// ParseOptionString parses a "size=64M,mem=1048576"-style option string per
// section 6. Unknown options are ignored; size= understands K/M/G suffixes
// (1024-based); mem= is a decimal-only alias. The default, when neither key
// is present, is DefaultBudgetBytes.
func ParseOptionString(options string) (uint64, errors.DriverError) {
	budget := uint64(DefaultBudgetBytes)
	seen := false

	for _, part := range strings.Split(options, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue // unknown/malformed option, ignored
		}
		key, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])

		switch key {
		case "size":
			parsed, parseErr := parseSizeWithSuffix(value)
			if parseErr != nil {
				return 0, errors.InvalidArgument.WithMessage("invalid size= option: " + value)
			}
			budget = parsed
			seen = true
		case "mem":
			parsed, parseErr := strconv.ParseUint(value, 10, 64)
			if parseErr != nil {
				return 0, errors.InvalidArgument.WithMessage("invalid mem= option: " + value)
			}
			budget = parsed
			seen = true
		default:
			// Unknown options are ignored per section 6.
		}
	}

	if !seen {
		return DefaultBudgetBytes, nil
	}
	return budget, nil
}

func parseSizeWithSuffix(value string) (uint64, error) {
	if value == "" {
		return 0, errors.InvalidArgument
	}
	multiplier := uint64(1)
	numeric := value
	switch value[len(value)-1] {
	case 'K', 'k':
		multiplier = 1024
		numeric = value[:len(value)-1]
	case 'M', 'm':
		multiplier = 1024 * 1024
		numeric = value[:len(value)-1]
	case 'G', 'g':
		multiplier = 1024 * 1024 * 1024
		numeric = value[:len(value)-1]
	}
	n, err := strconv.ParseUint(numeric, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * multiplier, nil
}

// Driver is the vfs.FilesystemDriver registered under the name "tmpfs".
type Driver struct {
	// DeviceManager is consulted by instances this driver constructs. A nil
	// value disables device-node opens, matching a TmpFS mounted without
	// /dev wired up.
	DeviceManager *device.Manager
}

func (Driver) DriverName() string             { return "tmpfs" }
func (Driver) DriverType() vfs.FilesystemType { return vfs.FilesystemTypeVirtual }

func (d Driver) FromOptionString(options string) (vfs.FilesystemOperations, errors.DriverError) {
	budget, err := ParseOptionString(options)
	if err != nil {
		return nil, err
	}
	return New(budget, d.DeviceManager), nil
}

func init() {
	vfs.Register(Driver{DeviceManager: device.Default()})
}
