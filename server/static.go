package server

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed web/static
var embeddedStatic embed.FS

func staticHandler() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "web/static")
	if err != nil {
		panic(err)
	}
	files := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// fall back to index.html for SPA-ish behavior
		if r.URL.Path == "/" {
			r.URL.Path = "/index.html"
		}
		files.ServeHTTP(w, r)
	})
}
