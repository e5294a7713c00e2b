// Package sitehandler serves the built single-page front end. Paths that
// match a file are served as is; extension-less paths fall back to the
// index so client-side routing works. API paths never reach the index.
package sitehandler

import (
	"net/http"
	"path"
	"strings"

	"github.com/keithlinneman/atelier-web/internal/pathutil"
)

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.opts.NotFound.ServeHTTP(w, r)
		return
	}
	if h.isAPI(r.URL.Path) {
		h.opts.NotFound.ServeHTTP(w, r)
		return
	}

	t, found := resolve(h.opts.Root, r.URL.Path, h.opts.IndexFile)
	if t.redirect != "" {
		http.Redirect(w, r, t.redirect, http.StatusPermanentRedirect)
		return
	}
	file := t.file
	if !found {
		if !spaRoute(r.URL.Path) {
			h.opts.NotFound.ServeHTTP(w, r)
			return
		}
		file = h.opts.IndexFile
	}

	if cc := h.opts.cacheControl(file); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	http.ServeFileFS(w, r, h.opts.Root, file)
}

func (h *Handler) isAPI(p string) bool {
	prefix := h.opts.APIPrefix
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// spaRoute reports whether a missing path looks like a client-side route
// rather than a missing asset.
func spaRoute(p string) bool {
	return !pathutil.Unsafe(p) && path.Ext(p) == ""
}
