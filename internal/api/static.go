package api

import (
	_ "embed"
	"net/http"
	"strconv"
)

// The web UI is a single self-contained page compiled into the binary,
// so `recall serve` needs no asset directory at runtime.
//
//go:embed static/index.html
var indexHTML []byte

// serveIndex serves the embedded single-page UI.
func serveIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(indexHTML)))
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(indexHTML)
}
