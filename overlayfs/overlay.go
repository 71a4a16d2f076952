package overlayfs

import (
	stderrors "errors"
	"sort"
	"strings"
	"sync"

	"github.com/wyrmwood-systems/vfscore/errors"
	"github.com/wyrmwood-systems/vfscore/vfs"
)

// OverlayFS unions one optional writable upper layer over N read-only
// (as far as overlay operations are concerned) lower layers. A nil upper
// makes the whole overlay read-only: every mutation fails errors.ReadOnly.
type OverlayFS struct {
	upper  vfs.FilesystemOperations
	lowers []vfs.FilesystemOperations

	fsRef *vfs.FilesystemRef
	root  *node

	idMu    sync.Mutex
	pathIDs map[string]uint64
	nextID  uint64
}

// New composes an overlay over the given upper (nil for a read-only
// overlay) and lower layers, in precedence order (index 0 first).
func New(upper vfs.FilesystemOperations, lowers []vfs.FilesystemOperations) *OverlayFS {
	fs := &OverlayFS{
		upper:   upper,
		lowers:  lowers,
		fsRef:   vfs.NewFilesystemRef(),
		pathIDs: map[string]uint64{"/": 1},
		nextID:  2,
	}
	fs.fsRef.Resolve(fs)

	root := &node{fs: fs, path: "/", fileID: 1, fileType: vfs.DirectoryType()}
	if upper != nil {
		root.upperNode = upper.RootNode()
	}
	root.lowerNodes = make([]vfs.VfsNode, len(lowers))
	for i, l := range lowers {
		root.lowerNodes[i] = l.RootNode()
	}
	fs.root = root
	return fs
}

func (fs *OverlayFS) Name() string { return "overlay" }

func (fs *OverlayFS) IsReadOnly() bool { return fs.upper == nil }

func (fs *OverlayFS) RootNode() vfs.VfsNode { return fs.root }

func (fs *OverlayFS) idFor(path string) uint64 {
	fs.idMu.Lock()
	defer fs.idMu.Unlock()
	if id, ok := fs.pathIDs[path]; ok {
		return id
	}
	id := fs.nextID
	fs.nextID++
	fs.pathIDs[path] = id
	return id
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func baseName(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func asNode(n vfs.VfsNode) (*node, errors.DriverError) {
	on, ok := n.(*node)
	if !ok {
		return nil, errors.NotSupported.WithMessage("node does not belong to this overlay instance")
	}
	return on, nil
}

func (fs *OverlayFS) Lookup(parent vfs.VfsNode, name string) (vfs.VfsNode, errors.DriverError) {
	if name == "" {
		return nil, errors.InvalidPath.WithMessage("empty name")
	}
	p, err := asNode(parent)
	if err != nil {
		return nil, err
	}
	if !p.FileTypeOf().IsDir() {
		return nil, errors.NotADirectory.WithMessage("lookup requires a directory parent")
	}

	switch name {
	case ".":
		return p, nil
	case "..":
		if p.parent != nil {
			return p.parent, nil
		}
		return p, nil
	}

	// A whiteout in the upper layer hides the name entirely, regardless of
	// what any lower layer holds for it.
	if p.upperNode != nil {
		if _, werr := fs.upper.Lookup(p.upperNode, whiteoutName(name)); werr == nil {
			return nil, errors.NotFound.WithMessage("hidden by whiteout: " + name)
		}
	}

	var upperChild vfs.VfsNode
	if p.upperNode != nil {
		if c, uerr := fs.upper.Lookup(p.upperNode, name); uerr == nil {
			upperChild = c
		}
	}

	lowerChildren := make([]vfs.VfsNode, len(fs.lowers))
	anyLower := false
	for i, lowerOps := range fs.lowers {
		if p.lowerNodes[i] == nil {
			continue
		}
		if c, lerr := lowerOps.Lookup(p.lowerNodes[i], name); lerr == nil {
			lowerChildren[i] = c
			anyLower = true
		}
	}

	if upperChild == nil && !anyLower {
		return nil, errors.NotFound.WithMessage("no such entry: " + name)
	}

	fileType := vfs.FileType{}
	if upperChild != nil {
		fileType = upperChild.FileTypeOf()
	} else {
		for _, c := range lowerChildren {
			if c != nil {
				fileType = c.FileTypeOf()
				break
			}
		}
	}

	childPath := joinPath(p.path, name)
	child := &node{
		fs:         fs,
		parent:     p,
		path:       childPath,
		fileID:     fs.idFor(childPath),
		fileType:   fileType,
		upperNode:  upperChild,
		lowerNodes: lowerChildren,
	}
	return child, nil
}

func (fs *OverlayFS) Readdir(n vfs.VfsNode) ([]vfs.DirectoryEntryInternal, errors.DriverError) {
	dn, err := asNode(n)
	if err != nil {
		return nil, err
	}
	if !dn.FileTypeOf().IsDir() {
		return nil, errors.NotADirectory.WithMessage("readdir requires a directory")
	}

	selfID := dn.ID()
	parentID := selfID
	if dn.parent != nil {
		parentID = dn.parent.ID()
	}
	entries := []vfs.DirectoryEntryInternal{
		{Name: ".", FileType: vfs.Directory, FileID: selfID},
		{Name: "..", FileType: vfs.Directory, FileID: parentID},
	}

	seen := make(map[string]bool)

	if dn.upperNode != nil {
		upperEntries, uerr := fs.upper.Readdir(dn.upperNode)
		if uerr != nil {
			return nil, uerr
		}
		for _, e := range upperEntries {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			if isWhiteoutName(e.Name) {
				seen[shadowedName(e.Name)] = true
				continue
			}
			seen[e.Name] = true
			entries = append(entries, vfs.DirectoryEntryInternal{
				Name:     e.Name,
				FileType: e.FileType,
				FileID:   fs.idFor(joinPath(dn.path, e.Name)),
			})
		}
	}

	for i, lowerOps := range fs.lowers {
		if dn.lowerNodes[i] == nil {
			continue
		}
		lowerEntries, lerr := lowerOps.Readdir(dn.lowerNodes[i])
		if lerr != nil {
			return nil, lerr
		}
		for _, e := range lowerEntries {
			if e.Name == "." || e.Name == ".." || seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			entries = append(entries, vfs.DirectoryEntryInternal{
				Name:     e.Name,
				FileType: e.FileType,
				FileID:   fs.idFor(joinPath(dn.path, e.Name)),
			})
		}
	}

	rest := entries[2:]
	sort.Slice(rest, func(i, j int) bool { return rest[i].FileID < rest[j].FileID })
	return entries, nil
}

// ensureUpperParent guarantees dirNode has an upper-layer counterpart,
// creating it (and recursively its ancestors) in the upper layer if
// missing. This is what lets a whiteout or a copied-up file be written
// into a directory that exists only in a lower layer so far.
func (fs *OverlayFS) ensureUpperParent(dirNode *node) (vfs.VfsNode, errors.DriverError) {
	if dirNode.upperNode != nil {
		return dirNode.upperNode, nil
	}
	if dirNode.parent == nil {
		// The root always has an upper counterpart once an upper layer is
		// configured; reaching here with no parent means no upper exists.
		return nil, errors.ReadOnly.WithMessage("overlay has no upper layer")
	}

	grandUpper, err := fs.ensureUpperParent(dirNode.parent)
	if err != nil {
		return nil, err
	}

	name := baseName(dirNode.path)
	created, cerr := fs.upper.Create(grandUpper, name, vfs.DirectoryType(), vfs.Permissions{Read: true, Write: true, Execute: true})
	if cerr != nil {
		if !stderrors.Is(cerr, errors.AlreadyExists) {
			return nil, cerr
		}
		existing, lerr := fs.upper.Lookup(grandUpper, name)
		if lerr != nil {
			return nil, cerr
		}
		dirNode.upperNode = existing
		return existing, nil
	}
	dirNode.upperNode = created
	return created, nil
}

func (fs *OverlayFS) Create(parent vfs.VfsNode, name string, fileType vfs.FileType, perm vfs.Permissions) (vfs.VfsNode, errors.DriverError) {
	if fs.upper == nil {
		return nil, errors.ReadOnly.WithMessage("overlay has no upper layer")
	}
	if name == "" || name == "." || name == ".." {
		return nil, errors.InvalidPath.WithMessage("invalid entry name: " + name)
	}
	p, err := asNode(parent)
	if err != nil {
		return nil, err
	}
	if !p.FileTypeOf().IsDir() {
		return nil, errors.NotADirectory.WithMessage("create requires a directory parent")
	}

	if _, lerr := fs.Lookup(p, name); lerr == nil {
		return nil, errors.AlreadyExists.WithMessage("already exists: " + name)
	}

	upperParent, err := fs.ensureUpperParent(p)
	if err != nil {
		return nil, err
	}

	// A prior removal of this name, when it also exists in a lower layer,
	// left a whiteout in place; creating the name again must undo it.
	wh := whiteoutName(name)
	if _, werr := fs.upper.Lookup(upperParent, wh); werr == nil {
		if rerr := fs.upper.Remove(upperParent, wh); rerr != nil {
			return nil, rerr
		}
	}

	created, cerr := fs.upper.Create(upperParent, name, fileType, perm)
	if cerr != nil {
		return nil, cerr
	}

	childPath := joinPath(p.path, name)
	child := &node{
		fs:         fs,
		parent:     p,
		path:       childPath,
		fileID:     fs.idFor(childPath),
		fileType:   created.FileTypeOf(),
		upperNode:  created,
		lowerNodes: make([]vfs.VfsNode, len(fs.lowers)),
	}
	return child, nil
}

func (fs *OverlayFS) CreateHardlink(linkParent vfs.VfsNode, linkName string, target vfs.VfsNode) (vfs.VfsNode, errors.DriverError) {
	if fs.upper == nil {
		return nil, errors.ReadOnly.WithMessage("overlay has no upper layer")
	}
	tn, err := asNode(target)
	if err != nil {
		return nil, err
	}
	if tn.upperNode == nil {
		return nil, errors.InvalidOperation.WithMessage("cannot hard link a lower-only entry without copy-up; open for write first")
	}
	p, err := asNode(linkParent)
	if err != nil {
		return nil, err
	}
	upperParent, err := fs.ensureUpperParent(p)
	if err != nil {
		return nil, err
	}

	upperLink, lerr := fs.upper.CreateHardlink(upperParent, linkName, tn.upperNode)
	if lerr != nil {
		return nil, lerr
	}

	childPath := joinPath(p.path, linkName)
	child := &node{
		fs:         fs,
		parent:     p,
		path:       childPath,
		fileID:     fs.idFor(childPath),
		fileType:   upperLink.FileTypeOf(),
		upperNode:  upperLink,
		lowerNodes: make([]vfs.VfsNode, len(fs.lowers)),
	}
	return child, nil
}

func (fs *OverlayFS) Remove(parent vfs.VfsNode, name string) errors.DriverError {
	if name == "" || name == "." || name == ".." {
		return errors.InvalidPath.WithMessage("invalid entry name: " + name)
	}
	p, err := asNode(parent)
	if err != nil {
		return err
	}

	childAny, lerr := fs.Lookup(p, name)
	if lerr != nil {
		return lerr
	}
	child, _ := asNode(childAny)

	if child.FileTypeOf().IsDir() {
		entries, derr := fs.Readdir(child)
		if derr != nil {
			return derr
		}
		if len(entries) > 2 {
			return errors.DirectoryNotEmpty.WithMessage("directory not empty: " + name)
		}
	}

	if fs.upper == nil {
		return errors.ReadOnly.WithMessage("overlay has no upper layer")
	}

	existsInLower := child.hasAnyLower()

	upperParent, err := fs.ensureUpperParent(p)
	if err != nil {
		return err
	}

	if child.upperNode != nil {
		if rerr := fs.upper.Remove(upperParent, name); rerr != nil {
			return rerr
		}
	}

	if existsInLower {
		if _, cerr := fs.upper.Create(upperParent, whiteoutName(name), vfs.RegularFileType(), vfs.Permissions{}); cerr != nil {
			return cerr
		}
	}
	return nil
}

func (fs *OverlayFS) Open(n vfs.VfsNode, flags vfs.OpenFlags) (vfs.FileObject, errors.DriverError) {
	on, err := asNode(n)
	if err != nil {
		return nil, err
	}

	if on.upperNode != nil {
		return fs.upper.Open(on.upperNode, flags)
	}

	lowerIdx, lowerNode := on.firstLower()
	if lowerNode == nil {
		return nil, errors.NotFound.WithMessage("node has no backing layer")
	}

	if !flags.WantsWrite() {
		return fs.lowers[lowerIdx].Open(lowerNode, flags)
	}
	if fs.upper == nil {
		return nil, errors.ReadOnly.WithMessage("overlay has no upper layer")
	}

	upperNode, cerr := fs.copyUp(on, lowerNode, lowerIdx)
	if cerr != nil {
		return nil, cerr
	}
	on.upperNode = upperNode
	return fs.upper.Open(upperNode, flags)
}

// copyUp implements the four-step protocol in section 4.E: read the lower
// file in full, create its path in the upper layer (creating parent
// directories as needed), write the content across, and hand back the new
// upper node. A failure after the upper entry is created triggers a
// best-effort removal so no partial artifact is left visible.
func (fs *OverlayFS) copyUp(on *node, lowerNode vfs.VfsNode, lowerIdx int) (vfs.VfsNode, errors.DriverError) {
	lh, err := fs.lowers[lowerIdx].Open(lowerNode, vfs.O_RDONLY)
	if err != nil {
		return nil, err
	}
	content, err := readAll(lh)
	closeErr := lh.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}

	upperParent, err := fs.ensureUpperParent(on.parent)
	if err != nil {
		return nil, err
	}
	name := baseName(on.path)

	upperNode, err := fs.upper.Create(upperParent, name, lowerNode.FileTypeOf(), lowerNode.Metadata().Permissions)
	if err != nil {
		if !stderrors.Is(err, errors.AlreadyExists) {
			return nil, err
		}
		// A concurrent copy-up won the race and already created this name in
		// the upper layer; treat it as a race, not a failure, and hand back
		// the winner's node so the caller retries as a plain upper-layer
		// open instead of failing the write.
		existing, lerr := fs.upper.Lookup(upperParent, name)
		if lerr != nil {
			return nil, err
		}
		return existing, nil
	}

	uh, err := fs.upper.Open(upperNode, vfs.O_WRONLY|vfs.O_TRUNC)
	if err != nil {
		fs.upper.Remove(upperParent, name)
		return nil, err
	}
	if _, werr := writeAll(uh, content); werr != nil {
		uh.Close()
		fs.upper.Remove(upperParent, name)
		return nil, werr
	}
	if cerr := uh.Close(); cerr != nil {
		fs.upper.Remove(upperParent, name)
		return nil, cerr
	}

	return upperNode, nil
}

func readAll(fo vfs.FileObject) ([]byte, errors.DriverError) {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := fo.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

func writeAll(fo vfs.FileObject, content []byte) (int, errors.DriverError) {
	total := 0
	for total < len(content) {
		n, err := fo.Write(content[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errors.IoError.WithMessage("short write during copy-up")
		}
		total += n
	}
	return total, nil
}
