// Package overlayfs implements the Copy-on-Write union filesystem driver
// described in spec section 4.E: a writable upper layer composed over an
// ordered list of read-only lower layers, with whiteout-based deletion and
// copy-up on write.
package overlayfs

import "github.com/wyrmwood-systems/vfscore/vfs"

// whiteoutPrefix marks a name in the upper layer as hiding a same-named
// lower-layer entry, per section 4.E's whiteout convention.
const whiteoutPrefix = ".wh."

func whiteoutName(name string) string { return whiteoutPrefix + name }

func isWhiteoutName(name string) bool {
	return len(name) >= len(whiteoutPrefix) && name[:len(whiteoutPrefix)] == whiteoutPrefix
}

func shadowedName(whiteoutEntry string) string {
	return whiteoutEntry[len(whiteoutPrefix):]
}

// node is the overlay's logical projection (section 3: "overlay does not
// own content; it owns the layer references and a whiteout marker
// convention"). Its file_id is synthetic, assigned by the owning OverlayFS
// and stable for the lifetime of a given path (see OverlayFS.idFor); it
// does not borrow the file_id of any underlying node, since upper and
// lower layers assign ids from independent namespaces that can collide.
type node struct {
	fs     *OverlayFS
	parent *node
	path   string // slash-separated path from the overlay root, "/" for root

	fileID   uint64
	fileType vfs.FileType

	upperNode  vfs.VfsNode   // nil if this path has no upper-layer entry
	lowerNodes []vfs.VfsNode // parallel to fs.lowers; nil entries mean absent at that layer
}

func (n *node) ID() uint64 { return n.fileID }

func (n *node) FileTypeOf() vfs.FileType { return n.fileType }

// effective returns the node whose metadata/content the overlay projects:
// the upper node if present, else the first present lower node in scan
// order, matching the lookup precedence rule.
func (n *node) effective() vfs.VfsNode {
	if n.upperNode != nil {
		return n.upperNode
	}
	for _, ln := range n.lowerNodes {
		if ln != nil {
			return ln
		}
	}
	return nil
}

func (n *node) Metadata() vfs.Metadata {
	eff := n.effective()
	if eff == nil {
		return vfs.Metadata{FileID: n.fileID}
	}
	m := eff.Metadata()
	m.FileID = n.fileID
	return m
}

func (n *node) Filesystem() *vfs.FilesystemRef { return n.fs.fsRef }

func (n *node) ReadLink() (string, bool) {
	eff := n.effective()
	if eff == nil {
		return "", false
	}
	return eff.ReadLink()
}

// firstLower returns the index and node of the first lower layer present
// for this path, or (-1, nil) if absent everywhere below the upper layer.
func (n *node) firstLower() (int, vfs.VfsNode) {
	for i, ln := range n.lowerNodes {
		if ln != nil {
			return i, ln
		}
	}
	return -1, nil
}

func (n *node) hasAnyLower() bool {
	_, ln := n.firstLower()
	return ln != nil
}
