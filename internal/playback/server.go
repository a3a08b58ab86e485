// Package playback streams the source media behind timeline assets so the
// editor can scrub clips, with single-span Range support.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

// ErrUnknownMedia is returned when the timeline has no asset with the ID, or
// its file is gone.
var ErrUnknownMedia = errors.New("media asset not found")

// mediaTypes covers editing formats the platform MIME table may not know.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Snapshotter is the read side of the timeline store.
type Snapshotter interface {
	Snapshot() *timeline.Timeline
}

type Server struct {
	store  Snapshotter
	logger *slog.Logger
}

func NewServer(store Snapshotter, logger *slog.Logger) *Server {
	return &Server{store: store, logger: logging.WithComponent(logging.OrDiscard(logger), "playback")}
}

// ServeMedia writes the file behind mediaID. Errors are returned before any
// byte of the response is written.
func (s *Server) ServeMedia(w http.ResponseWriter, r *http.Request, mediaID string) error {
	asset, ok := s.store.Snapshot().MediaAsset(mediaID)
	if !ok || asset.Path == "" {
		return ErrUnknownMedia
	}

	file, err := os.Open(asset.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrUnknownMedia
		}
		return fmt.Errorf("open media: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat media: %w", err)
	}
	if stat.IsDir() {
		return ErrUnknownMedia
	}
	size := stat.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType(asset.Path))

	br, partial, err := parseByteRange(r.Header.Get("Range"), size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	status, length := http.StatusOK, size
	if partial {
		if _, err := file.Seek(br.First, io.SeekStart); err != nil {
			return fmt.Errorf("seek media: %w", err)
		}
		status, length = http.StatusPartialContent, br.Len()
		w.Header().Set("Content-Range", br.ContentRange(size))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return nil
	}

	if _, err := io.CopyN(w, file, length); err != nil {
		s.logger.Debug("media stream ended early", "media_id", mediaID, "error", err)
	}
	return nil
}
