package tmpfs

import (
	"sort"
	"sync"
	"time"

	"github.com/wyrmwood-systems/vfscore/vfs"
)

// node is the single TmpNode kind carrying the union of fields needed by
// any file type, per section 4.D. Three independent locks guard its three
// mutable facets: metaMu for metadata, contentMu for regular-file/symlink
// content, childrenMu for a directory's name->child map. The lock-order
// discipline in section 5 requires that a write lock on one node is never
// held while acquiring a lock on an unrelated node, with the sole exception
// of parent directory -> child, never the reverse.
//
// parent is a plain pointer rather than a true weak reference: Go's tracing
// garbage collector reclaims reference cycles on its own, so the
// strong/weak distinction that prevents a leak in a refcounted runtime
// (section 9) has no memory-safety consequence here. It is still never
// used to keep a node's subtree alive and is never written after
// construction, matching the "weak back-edge" role the spec assigns it.
type node struct {
	fileID uint64
	parent *node

	fsRef *vfs.FilesystemRef

	metaMu sync.RWMutex
	meta   vfs.Metadata

	fileType vfs.FileType

	contentMu sync.RWMutex
	content   []byte // RegularFile content or SymbolicLink target bytes; unused for other kinds

	childrenMu sync.RWMutex
	children   map[string]*node // Directory only
}

func newNode(fileID uint64, parent *node, fsRef *vfs.FilesystemRef, fileType vfs.FileType, perm vfs.Permissions) *node {
	now := time.Now()
	n := &node{
		fileID:   fileID,
		parent:   parent,
		fsRef:    fsRef,
		fileType: fileType,
		meta: vfs.Metadata{
			FileID:      fileID,
			Permissions: perm,
			CreatedAt:   now,
			ModifiedAt:  now,
			AccessedAt:  now,
			LinkCount:   1,
		},
	}
	if fileType.IsDir() {
		n.children = make(map[string]*node)
	}
	return n
}

func (n *node) ID() uint64 { return n.fileID }

func (n *node) FileTypeOf() vfs.FileType { return n.fileType }

func (n *node) Metadata() vfs.Metadata {
	n.metaMu.RLock()
	defer n.metaMu.RUnlock()
	return n.meta
}

func (n *node) Filesystem() *vfs.FilesystemRef { return n.fsRef }

func (n *node) ReadLink() (string, bool) {
	if n.fileType.Tag != vfs.SymbolicLink {
		return "", false
	}
	return n.fileType.Target, true
}

// touchModified updates ModifiedAt.
func (n *node) touchModified() {
	n.metaMu.Lock()
	defer n.metaMu.Unlock()
	n.meta.ModifiedAt = time.Now()
}

func (n *node) touchAccessed() {
	n.metaMu.Lock()
	defer n.metaMu.Unlock()
	n.meta.AccessedAt = time.Now()
}

func (n *node) setSize(size int64) {
	n.metaMu.Lock()
	defer n.metaMu.Unlock()
	n.meta.Size = size
	n.meta.ModifiedAt = time.Now()
}

func (n *node) incLinkCount() {
	n.metaMu.Lock()
	defer n.metaMu.Unlock()
	n.meta.LinkCount++
}

func (n *node) decLinkCount() uint32 {
	n.metaMu.Lock()
	defer n.metaMu.Unlock()
	if n.meta.LinkCount > 0 {
		n.meta.LinkCount--
	}
	return n.meta.LinkCount
}

// childNames returns the directory's child names sorted for stable
// iteration. Callers that must satisfy the readdir contract's file_id
// ordering re-sort the resulting entries themselves.
func (n *node) childNames() []string {
	n.childrenMu.RLock()
	defer n.childrenMu.RUnlock()
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *node) getChild(name string) (*node, bool) {
	n.childrenMu.RLock()
	defer n.childrenMu.RUnlock()
	c, ok := n.children[name]
	return c, ok
}

func (n *node) hasChild(name string) bool {
	n.childrenMu.RLock()
	defer n.childrenMu.RUnlock()
	_, ok := n.children[name]
	return ok
}

func (n *node) addChild(name string, child *node) {
	n.childrenMu.Lock()
	defer n.childrenMu.Unlock()
	n.children[name] = child
}

func (n *node) removeChildEdge(name string) (*node, bool) {
	n.childrenMu.Lock()
	defer n.childrenMu.Unlock()
	c, ok := n.children[name]
	if ok {
		delete(n.children, name)
	}
	return c, ok
}
