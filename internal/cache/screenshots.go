package cache

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Blob is one stored screenshot.
type Blob struct {
	Bytes []byte
	MIME  string
}

// ScreenshotStore shares screenshots between a running scan (writer) and the
// HTTP gateway (readers) by opaque id. Blobs live in memory with a TTL and
// get a failsafe copy on disk so restarts do not break in-flight clients.
type ScreenshotStore struct {
	mu    sync.Mutex
	blobs map[string]storedBlob
	dir   string
	ttl   time.Duration
	now   func() time.Time
	log   *slog.Logger
}

type storedBlob struct {
	blob      Blob
	expiresAt time.Time
}

func NewScreenshotStore(dir string, ttl time.Duration, log *slog.Logger) *ScreenshotStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &ScreenshotStore{
		blobs: make(map[string]storedBlob),
		dir:   dir,
		ttl:   ttl,
		now:   time.Now,
		log:   log,
	}
}

// Put stores a screenshot under id. The disk copy is best-effort.
func (s *ScreenshotStore) Put(id string, data []byte, mime string) {
	s.mu.Lock()
	s.blobs[id] = storedBlob{
		blob:      Blob{Bytes: data, MIME: mime},
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()

	if s.dir == "" {
		return
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.log.Warn("screenshot dir unavailable", "dir", s.dir, "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(s.dir, id+extFor(mime)), data, 0o644); err != nil {
		s.log.Warn("screenshot disk copy failed", "id", id, "error", err)
	}
}

// Get resolves a screenshot by id: memory first, then the disk failsafe.
// Legacy values stored as bare base64 or data URIs are decoded transparently.
func (s *ScreenshotStore) Get(id string) (Blob, bool) {
	s.mu.Lock()
	stored, ok := s.blobs[id]
	if ok && s.now().After(stored.expiresAt) {
		delete(s.blobs, id)
		ok = false
	}
	s.mu.Unlock()

	if ok {
		return normalizeBlob(stored.blob), true
	}

	if s.dir != "" {
		for _, ext := range []string{".png", ".jpg"} {
			data, err := os.ReadFile(filepath.Join(s.dir, id+ext))
			if err != nil {
				continue
			}
			mime := "image/png"
			if ext == ".jpg" {
				mime = "image/jpeg"
			}
			return normalizeBlob(Blob{Bytes: data, MIME: mime}), true
		}
	}
	return Blob{}, false
}

// Sweep drops expired in-memory blobs. Called periodically by the owner.
func (s *ScreenshotStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now()
	for id, stored := range s.blobs {
		if cutoff.After(stored.expiresAt) {
			delete(s.blobs, id)
		}
	}
}

// normalizeBlob upgrades legacy storage formats to raw bytes plus MIME.
func normalizeBlob(b Blob) Blob {
	text := string(b.Bytes)

	if strings.HasPrefix(text, "data:") {
		// data:image/png;base64,....
		if idx := strings.Index(text, ","); idx != -1 {
			header := text[:idx]
			if decoded, err := base64.StdEncoding.DecodeString(text[idx+1:]); err == nil {
				mime := b.MIME
				if start := strings.Index(header, ":"); start != -1 {
					if end := strings.Index(header, ";"); end > start {
						mime = header[start+1 : end]
					}
				}
				return Blob{Bytes: decoded, MIME: mime}
			}
		}
	}

	if looksLikeBase64(text) {
		if decoded, err := base64.StdEncoding.DecodeString(text); err == nil {
			return Blob{Bytes: decoded, MIME: b.MIME}
		}
	}

	return b
}

func looksLikeBase64(s string) bool {
	if len(s) < 16 || len(s)%4 != 0 {
		return false
	}
	// Raw PNG/JPEG bytes start with non-ASCII magic; base64 never does.
	for _, c := range s[:16] {
		ok := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '+' || c == '/'
		if !ok {
			return false
		}
	}
	return true
}

func extFor(mime string) string {
	if mime == "image/jpeg" {
		return ".jpg"
	}
	return ".png"
}
