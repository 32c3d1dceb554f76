// Package site serves the embedded scoreboard display page. The page reads
// ?game=<id> and follows the game over /games/{id}/live.
package site

import (
	"context"
	"net/http"
)

// Register attaches the display page routes to mux.
//
//	GET /            -> scoreboard page
//	GET /display/... -> page assets
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	files := http.FileServer(FS())
	mux.Handle("GET /{$}", files)
	mux.Handle("GET /display/", http.StripPrefix("/display", files))
}
