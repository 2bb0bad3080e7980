package web

import (
	"log/slog"
	"net/http"
)

// RegisterRoutes serves the control panel at / and its assets under /static/.
func RegisterRoutes(mux *http.ServeMux, logger *slog.Logger) {
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		page, err := StaticFS.ReadFile("static/index.html")
		if err != nil {
			logger.Error("control panel page missing from embed", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})

	mux.Handle("GET /static/", http.FileServerFS(StaticFS))
}
