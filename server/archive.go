package server

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

var archiveClient = &http.Client{Timeout: 30 * time.Second}

// handleArchive fetches the session's generated images and streams them back
// as a single zip file. Individual fetch failures skip that entry; the
// archive is best-effort, like the generation itself.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.store.get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	urls := sess.Images()
	if len(urls) == 0 {
		http.Error(w, "no generated images to download", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="note-images.zip"`)

	zw := zip.NewWriter(w)
	defer zw.Close()
	for i, u := range urls {
		if err := s.writeImageEntry(r, zw, i, u); err != nil {
			s.logger.Warnw("archive entry skipped", "url", u, "err", err)
		}
	}
}

func (s *Server) writeImageEntry(r *http.Request, zw *zip.Writer, index int, imageURL string) error {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}
	resp, err := archiveClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	entry, err := zw.Create(entryName(index, imageURL))
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, resp.Body)
	return err
}

// entryName derives a stable zip entry name from the image URL, falling back
// to an indexed name when the URL path carries no usable base name.
func entryName(index int, imageURL string) string {
	base := path.Base(strings.SplitN(imageURL, "?", 2)[0])
	if base == "" || base == "." || base == "/" || !strings.Contains(base, ".") {
		return fmt.Sprintf("image-%d.png", index+1)
	}
	return fmt.Sprintf("%02d-%s", index+1, base)
}
