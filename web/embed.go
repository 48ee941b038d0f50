// Package web embeds the built learner site (dist/) and serves it as a
// single-page application. Client-side routes fall back to index.html, so
// every page the navigation tracker reports is a deep link into this bundle.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// apiPrefixes are never answered with index.html.
var apiPrefixes = []string{"/api/", "/users/", "/ws/"}

// SPAHandler returns an http.Handler that serves the embedded frontend.
// Unknown paths outside the API prefixes get index.html with caching disabled.
func SPAHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return spaHandler(subFS)
}

func spaHandler(root fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range apiPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"not found"}` + "\n"))
				return
			}
		}

		path := strings.TrimPrefix(r.URL.Path, "/")
		if path != "" && path != "index.html" {
			if f, err := root.Open(path); err == nil {
				if closeErr := f.Close(); closeErr != nil {
					slog.Debug("web: failed to close embedded file", "path", path, "error", closeErr)
				}
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("Cache-Control", "no-cache")
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
