package server

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"capserve/internal/pathguard"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.recoverer)
	r.Use(s.accessLog)
	r.Use(cors)

	r.Get("/checkAlive", s.handleAlive)
	r.Head("/checkAlive", s.handleAlive)
	r.Get("/*", s.handleFile)
	r.Head("/*", s.handleFile)
	return r
}

func (s *Server) handleAlive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

// handleFile maps the decoded URL path onto the current root. Every failure
// answers the same bare 404 so clients learn nothing about the filesystem.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	stats := s.state.Stats()
	rel := strings.TrimPrefix(r.URL.Path, "/")

	abs, err := pathguard.Join(s.state.Root(), rel)
	if err != nil {
		stats.AddRejected()
		s.log.Debug().Str("path", r.URL.Path).Msg("rejected path outside root")
		notFound(w)
		return
	}

	f, err := os.Open(abs)
	if err != nil {
		stats.AddNotFound()
		notFound(w)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		stats.AddNotFound()
		notFound(w)
		return
	}

	ctype, err := contentType(abs, f)
	if err != nil {
		stats.AddNotFound()
		notFound(w)
		return
	}
	w.Header().Set("Content-Type", ctype)

	ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
	http.ServeContent(ww, r, info.Name(), info.ModTime(), f)
	stats.AddServed(int64(ww.BytesWritten()))
}

// contentType prefers the extension and falls back to sniffing the first
// bytes. f is rewound afterwards.
func contentType(path string, f io.ReadSeeker) (string, error) {
	if ctype := mime.TypeByExtension(filepath.Ext(path)); ctype != "" {
		return ctype, nil
	}
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mt.String(), nil
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, "Not Found")
}
