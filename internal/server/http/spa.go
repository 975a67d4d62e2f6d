package http

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// spaHandler serves the frontend directory and falls back to index.html
// for client-side routes.
type spaHandler struct {
	fs     http.FileSystem
	static http.Handler
}

func newSPAHandler(fsys fs.FS) http.Handler {
	httpFS := http.FS(fsys)
	return &spaHandler{
		fs:     httpFS,
		static: http.FileServer(httpFS),
	}
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	urlPath := path.Clean("/" + r.URL.Path)

	// Unmatched API paths are genuine 404s.
	if isAPIPath(urlPath) {
		http.NotFound(w, r)
		return
	}

	if urlPath != "/" {
		if f, err := h.fs.Open(urlPath); err == nil {
			_ = f.Close()
			setCacheHeaders(w, urlPath)
			h.static.ServeHTTP(w, r)
			return
		}
	}

	r.URL.Path = "/"
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.static.ServeHTTP(w, r)
}

func isAPIPath(p string) bool {
	for _, prefix := range []string{"/full-pipeline", "/health", "/models", "/openapi", "/schemas", "/docs"} {
		if p == prefix || strings.HasPrefix(p, prefix+"/") || strings.HasPrefix(p, prefix+".") {
			return true
		}
	}
	return false
}

func setCacheHeaders(w http.ResponseWriter, urlPath string) {
	if strings.HasPrefix(urlPath, "/assets/") {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
}
