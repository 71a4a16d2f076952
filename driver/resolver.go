// Package driver implements a path-resolving convenience layer over a
// single vfs.FilesystemOperations, the same role the teacher's
// driver.BaseDriver plays over a disko.FileSystemImplementer. Mount
// composition across multiple filesystems is out of scope here; Resolver
// only ever walks one driver's node graph.
package driver

import (
	posixpath "path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wyrmwood-systems/vfscore/errors"
	"github.com/wyrmwood-systems/vfscore/vfs"
)

// Resolver turns slash-separated paths into vfs.VfsNode/vfs.FileObject
// operations against a single FilesystemOperations, tracking a working
// directory the way a process does. It does not parse user-space pointers
// or maintain a file-descriptor table; callers hold onto the FileObject
// they get back from OpenFile for as long as they need it.
type Resolver struct {
	fs vfs.FilesystemOperations

	mu         sync.RWMutex
	workingDir string
}

// New creates a Resolver rooted at fs's root directory, with "/" as the
// initial working directory.
func New(fs vfs.FilesystemOperations) *Resolver {
	return &Resolver{fs: fs, workingDir: "/"}
}

// Getwd returns the current working directory. Always succeeds.
func (r *Resolver) Getwd() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workingDir
}

// NormalizePath cleans path and, if relative, joins it onto the current
// working directory, producing an absolute slash-separated path.
func (r *Resolver) NormalizePath(path string) string {
	cleaned := posixpath.Clean(filepath.ToSlash(path))
	if cleaned == "." {
		cleaned = "/"
	}
	if posixpath.IsAbs(cleaned) {
		return cleaned
	}
	return posixpath.Join(r.Getwd(), cleaned)
}

func splitComponents(absPath string) []string {
	trimmed := strings.Trim(absPath, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// resolveNoFollow walks absPath's components iteratively, following
// symlinks encountered at intermediate directories but not the final
// component. absPath must already be normalized.
func (r *Resolver) resolveNoFollow(absPath string) (vfs.VfsNode, errors.DriverError) {
	components := splitComponents(absPath)
	node := r.fs.RootNode()
	if len(components) == 0 {
		return node, nil
	}

	for i, name := range components {
		isLast := i == len(components)-1

		child, err := r.fs.Lookup(node, name)
		if err != nil {
			return nil, err
		}

		if !isLast {
			child, err = r.followSymlinks(child)
			if err != nil {
				return nil, err
			}
			if !child.FileTypeOf().IsDir() {
				return nil, errors.NotADirectory.WithMessage(
					"cannot resolve path: " + posixpath.Join(components[:i+1]...) + " is not a directory",
				)
			}
		}
		node = child
	}
	return node, nil
}

// followSymlinks dereferences node if it's a symbolic link, following
// chains of indirection. Paths visited during the chain are tracked in a
// set; resolving to a path already in the set is a cycle and fails with
// errors.InvalidOperation, mirroring the teacher's resolveSymlink.
func (r *Resolver) followSymlinks(node vfs.VfsNode) (vfs.VfsNode, errors.DriverError) {
	if node.FileTypeOf().Tag != vfs.SymbolicLink {
		return node, nil
	}

	visited := make(map[string]bool)
	current := node
	for current.FileTypeOf().Tag == vfs.SymbolicLink {
		target, ok := current.ReadLink()
		if !ok {
			return nil, errors.IoError.WithMessage("symlink node has no readable target")
		}

		nextPath := r.NormalizePath(target)
		if visited[nextPath] {
			return nil, errors.InvalidOperation.WithMessage(
				"symlink cycle detected resolving " + nextPath,
			)
		}
		visited[nextPath] = true

		next, err := r.resolveNoFollow(nextPath)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// resolveFollowing is like resolveNoFollow but also dereferences the final
// path component if it's a symlink.
func (r *Resolver) resolveFollowing(path string) (vfs.VfsNode, errors.DriverError) {
	abs := r.NormalizePath(path)
	node, err := r.resolveNoFollow(abs)
	if err != nil {
		return nil, err
	}
	return r.followSymlinks(node)
}

// Chdir changes the working directory, failing errors.NotADirectory if
// path does not resolve to a directory.
func (r *Resolver) Chdir(path string) errors.DriverError {
	node, err := r.resolveFollowing(path)
	if err != nil {
		return err
	}
	if !node.FileTypeOf().IsDir() {
		return errors.NotADirectory.WithMessage(path + " is not a directory")
	}

	r.mu.Lock()
	r.workingDir = r.NormalizePath(path)
	r.mu.Unlock()
	return nil
}

// Stat resolves path, following a trailing symlink, and returns its
// metadata.
func (r *Resolver) Stat(path string) (vfs.Metadata, errors.DriverError) {
	node, err := r.resolveFollowing(path)
	if err != nil {
		return vfs.Metadata{}, err
	}
	return node.Metadata(), nil
}

// Lstat is like Stat but does not follow a trailing symlink.
func (r *Resolver) Lstat(path string) (vfs.Metadata, errors.DriverError) {
	node, err := r.resolveNoFollow(r.NormalizePath(path))
	if err != nil {
		return vfs.Metadata{}, err
	}
	return node.Metadata(), nil
}

// Readlink returns a symlink's target text. Fails errors.InvalidOperation
// if path is not a symlink.
func (r *Resolver) Readlink(path string) (string, errors.DriverError) {
	node, err := r.resolveNoFollow(r.NormalizePath(path))
	if err != nil {
		return "", err
	}
	target, ok := node.ReadLink()
	if !ok {
		return "", errors.InvalidOperation.WithMessage(path + " is not a symlink")
	}
	return target, nil
}

// splitParentChild splits an already-normalized absolute path into its
// parent directory (as a path string) and final component name. The root
// itself has no parent; splitParentChild("/") returns ("/", "").
func splitParentChild(absPath string) (parent string, name string) {
	dir, base := posixpath.Split(absPath)
	parent = posixpath.Clean(dir)
	return parent, base
}

// resolveParentDir resolves parentPath, following symlinks along the way,
// and fails errors.NotADirectory if it isn't a directory.
func (r *Resolver) resolveParentDir(parentPath string) (vfs.VfsNode, errors.DriverError) {
	parentNode, err := r.resolveFollowing(parentPath)
	if err != nil {
		return nil, err
	}
	if !parentNode.FileTypeOf().IsDir() {
		return nil, errors.NotADirectory.WithMessage(parentPath + " is not a directory")
	}
	return parentNode, nil
}

// OpenFile opens path for I/O, honoring flags. If the file is missing and
// flags requests O_CREATE, it is created as a RegularFile with perm first.
func (r *Resolver) OpenFile(path string, flags vfs.OpenFlags, perm vfs.Permissions) (vfs.FileObject, errors.DriverError) {
	abs := r.NormalizePath(path)

	node, err := r.resolveFollowing(abs)
	if err != nil {
		if err.Kind() != errors.NotFound || !flags.WantsCreate() {
			return nil, err
		}

		parentPath, name := splitParentChild(abs)
		if name == "" {
			return nil, errors.InvalidPath.WithMessage("cannot create the root directory")
		}
		parentNode, perr := r.resolveParentDir(parentPath)
		if perr != nil {
			return nil, perr
		}
		created, cerr := r.fs.Create(parentNode, name, vfs.RegularFileType(), perm)
		if cerr != nil {
			return nil, cerr
		}
		node = created
	} else if flags.WantsCreate() && flags.WantsExcl() {
		return nil, errors.AlreadyExists.WithMessage(abs + " already exists")
	}

	if node.FileTypeOf().IsDir() && flags.WantsWrite() {
		return nil, errors.IsADirectory.WithMessage("cannot open a directory for writing")
	}
	return r.fs.Open(node, flags)
}

// Open opens path read-only.
func (r *Resolver) Open(path string) (vfs.FileObject, errors.DriverError) {
	return r.OpenFile(path, vfs.O_RDONLY, vfs.Permissions{})
}

// Create creates path (failing if it already exists) and opens it for
// read-write.
func (r *Resolver) Create(path string, perm vfs.Permissions) (vfs.FileObject, errors.DriverError) {
	return r.OpenFile(path, vfs.O_RDWR|vfs.O_CREATE|vfs.O_EXCL, perm)
}

func readAll(fo vfs.FileObject) ([]byte, errors.DriverError) {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := fo.Read(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
}

// ReadFile returns path's full content.
func (r *Resolver) ReadFile(path string) ([]byte, errors.DriverError) {
	fo, err := r.Open(path)
	if err != nil {
		return nil, err
	}
	defer fo.Close()
	return readAll(fo)
}

// WriteFile replaces path's content with data, creating it with perm if
// necessary.
func (r *Resolver) WriteFile(path string, data []byte, perm vfs.Permissions) errors.DriverError {
	fo, err := r.OpenFile(path, vfs.O_WRONLY|vfs.O_CREATE|vfs.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer fo.Close()

	_, werr := fo.Write(data)
	return werr
}

// Readdir returns the entries of the directory at path.
func (r *Resolver) Readdir(path string) ([]vfs.DirectoryEntryInternal, errors.DriverError) {
	node, err := r.resolveFollowing(path)
	if err != nil {
		return nil, err
	}
	if !node.FileTypeOf().IsDir() {
		return nil, errors.NotADirectory.WithMessage(path + " is not a directory")
	}
	return r.fs.Readdir(node)
}

// Mkdir creates a single directory; its parent must already exist.
func (r *Resolver) Mkdir(path string, perm vfs.Permissions) errors.DriverError {
	abs := r.NormalizePath(path)
	parentPath, name := splitParentChild(abs)
	if name == "" {
		return errors.AlreadyExists.WithMessage("the root directory always exists")
	}

	parentNode, err := r.resolveParentDir(parentPath)
	if err != nil {
		return err
	}
	_, cerr := r.fs.Create(parentNode, name, vfs.DirectoryType(), perm)
	return cerr
}

// MkdirAll creates path and any missing parent directories.
func (r *Resolver) MkdirAll(path string, perm vfs.Permissions) errors.DriverError {
	abs := r.NormalizePath(path)
	if abs == "/" {
		return nil
	}

	if _, err := r.resolveFollowing(abs); err == nil {
		return nil
	}

	parentPath, name := splitParentChild(abs)
	if name != "" {
		if err := r.MkdirAll(parentPath, perm); err != nil {
			return err
		}
	}
	err := r.Mkdir(abs, perm)
	if err != nil && err.Kind() == errors.AlreadyExists {
		return nil
	}
	return err
}

// Symlink creates a symbolic link at linkPath pointing at target.
func (r *Resolver) Symlink(target, linkPath string) errors.DriverError {
	abs := r.NormalizePath(linkPath)
	parentPath, name := splitParentChild(abs)
	if name == "" {
		return errors.InvalidPath.WithMessage("cannot create the root directory")
	}
	parentNode, err := r.resolveParentDir(parentPath)
	if err != nil {
		return err
	}
	_, cerr := r.fs.Create(parentNode, name, vfs.SymlinkType(target), vfs.Permissions{Read: true})
	return cerr
}

// Link creates linkPath as a second directory edge to the node targetPath
// already resolves to (a hard link).
func (r *Resolver) Link(targetPath, linkPath string) errors.DriverError {
	target, err := r.resolveFollowing(targetPath)
	if err != nil {
		return err
	}

	abs := r.NormalizePath(linkPath)
	parentPath, name := splitParentChild(abs)
	if name == "" {
		return errors.InvalidPath.WithMessage("cannot create the root directory")
	}
	parentNode, perr := r.resolveParentDir(parentPath)
	if perr != nil {
		return perr
	}
	_, cerr := r.fs.CreateHardlink(parentNode, name, target)
	return cerr
}

// removeDotsFromEntries filters "." and ".." out of a directory listing.
func removeDotsFromEntries(entries []vfs.DirectoryEntryInternal) []vfs.DirectoryEntryInternal {
	out := make([]vfs.DirectoryEntryInternal, 0, len(entries))
	for _, e := range entries {
		if e.Name != "." && e.Name != ".." {
			out = append(out, e)
		}
	}
	return out
}

// Remove removes a single file or empty directory at path.
func (r *Resolver) Remove(path string) errors.DriverError {
	abs := r.NormalizePath(path)
	parentPath, name := splitParentChild(abs)
	if name == "" {
		return errors.PermissionDenied.WithMessage("cannot remove the root directory")
	}

	parentNode, err := r.resolveParentDir(parentPath)
	if err != nil {
		return err
	}
	return r.fs.Remove(parentNode, name)
}

// RemoveAll removes path and, if it's a directory, everything beneath it,
// depth first. It refuses to remove the filesystem root.
func (r *Resolver) RemoveAll(path string) errors.DriverError {
	abs := r.NormalizePath(path)
	if abs == "/" {
		return errors.PermissionDenied.WithMessage("cannot remove the root directory")
	}

	node, err := r.resolveFollowing(abs)
	if err != nil {
		return err
	}

	if node.FileTypeOf().IsDir() {
		entries, rerr := r.fs.Readdir(node)
		if rerr != nil {
			return rerr
		}
		for _, e := range removeDotsFromEntries(entries) {
			if rmErr := r.RemoveAll(posixpath.Join(abs, e.Name)); rmErr != nil {
				return rmErr
			}
		}
	}

	parentPath, name := splitParentChild(abs)
	parentNode, perr := r.resolveParentDir(parentPath)
	if perr != nil {
		return perr
	}
	return r.fs.Remove(parentNode, name)
}

// Truncate resizes the regular file at path to size bytes.
func (r *Resolver) Truncate(path string, size int64) errors.DriverError {
	fo, err := r.OpenFile(path, vfs.O_WRONLY, vfs.Permissions{})
	if err != nil {
		return err
	}
	defer fo.Close()
	return fo.Truncate(size)
}
