package sitehandler

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/keithlinneman/atelier-web/internal/log"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

type Options struct {
	Logger log.Logger
	// Root holds the built front end.
	Root fs.FS
	// NotFound answers API paths, disallowed methods and missing assets.
	NotFound http.Handler

	IndexFile string // default: "index.html"
	APIPrefix string // default: "/api"

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"
}

// DirOptions returns options serving the directory dir.
func DirOptions(dir string, notFound http.Handler, L log.Logger) (Options, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Options{}, fmt.Errorf("%w: static dir: %v", ErrInvalidOptions, err)
	}
	if !info.IsDir() {
		return Options{}, fmt.Errorf("%w: static dir %q is not a directory", ErrInvalidOptions, dir)
	}
	return Options{Logger: L, Root: os.DirFS(dir), NotFound: notFound}, nil
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.IndexFile == "" {
		o.IndexFile = "index.html"
	}
	if o.APIPrefix == "" {
		o.APIPrefix = "/api"
	}
	if o.NotFound == nil {
		o.NotFound = http.NotFoundHandler()
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Root == nil {
		return fmt.Errorf("%w: Root is nil", ErrInvalidOptions)
	}
	// fail fast on boot if the build output is missing
	if !isFile(o.Root, o.IndexFile) {
		return fmt.Errorf("%w: missing %q in static root", ErrInvalidOptions, o.IndexFile)
	}
	return nil
}
