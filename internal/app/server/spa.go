package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"hrbpms/internal/domain/access"
)

const loadingPage = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="1">
<title>HR BPMS</title>
</head>
<body>
<p>Preparing workspace...</p>
</body>
</html>
`

// serveLoading is shown on protected pages while the session resolves.
func serveLoading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(loadingPage))
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
}

// ServeHTTP serves built assets. Any other path goes to the landing page.
func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	if clean != "/" && !strings.HasPrefix(clean, "/api/") {
		info, err := os.Stat(filepath.Join(h.staticPath, filepath.FromSlash(clean)))
		if err == nil && !info.IsDir() {
			http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
			return
		}
	}
	if strings.HasPrefix(clean, "/api/") {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, access.LandingPath, http.StatusFound)
}
