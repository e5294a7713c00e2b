package sitehandler

import (
	"io/fs"
	"path"
	"strings"

	"github.com/keithlinneman/atelier-web/internal/pathutil"
)

// target is where a request path leads inside the static root.
type target struct {
	file     string // path within the FS, no leading slash
	redirect string // canonical URL path to redirect to instead
}

// resolve maps a URL path onto root. Directories resolve to their index
// file; an extension-less path naming a directory redirects to the slash
// form. Paths with NUL, backslash or dot segments never resolve.
func resolve(root fs.FS, urlPath, index string) (target, bool) {
	p := "/" + strings.TrimPrefix(urlPath, "/")
	if pathutil.Unsafe(p) {
		return target{}, false
	}

	dir := strings.HasSuffix(p, "/")
	rel := strings.TrimPrefix(path.Clean(p), "/")

	switch {
	case rel == "" || dir:
		name := path.Join(rel, index)
		return target{file: name}, isFile(root, name)
	case path.Ext(rel) != "":
		return target{file: rel}, isFile(root, rel)
	case isFile(root, path.Join(rel, index)):
		return target{redirect: "/" + rel + "/"}, true
	}
	return target{}, false
}

func isFile(root fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(root, name)
	return err == nil && !info.IsDir()
}
