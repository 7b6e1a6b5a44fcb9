package vfs

import (
	gopath "path"
	"strings"

	"github.com/loredeck/vkernel/errors"
)

// Normalize canonicalizes p into the absolute, slash-separated form
// the rest of the kernel works with: leading '/', '.' and '..'
// resolved, no doubled separators, no trailing slash except root.
// Relative paths are invalid-argument errors; '..' is resolved, never
// allowed to escape above root (path.Clean already clamps it).
func Normalize(p string) (string, error) {
	if p == "" {
		return "", errors.Invalid("path", "empty path")
	}
	if !strings.HasPrefix(p, "/") {
		return "", errors.New("path", errors.InvalidArgument).
			Path(p).
			Detail("path must be absolute").
			Build()
	}
	return gopath.Clean(p), nil
}

// Split returns the parent path and the final element of an already
// normalized path. Split("/") returns ("/", "").
func Split(p string) (parent, name string) {
	if p == "/" {
		return "/", ""
	}
	i := strings.LastIndexByte(p, '/')
	if i == 0 {
		return "/", p[1:]
	}
	return p[:i], p[i+1:]
}

// Segments returns the path elements of a normalized path. Root has
// no segments.
func Segments(p string) []string {
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}

// Join joins a normalized directory path with a child name.
func Join(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
