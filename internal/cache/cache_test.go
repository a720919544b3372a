package cache

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func TestFingerprint_SensitiveToEveryInput(t *testing.T) {
	base := Fingerprint("text", "prompt", []byte("schema"), "v1")

	variants := []string{
		Fingerprint("text2", "prompt", []byte("schema"), "v1"),
		Fingerprint("text", "prompt2", []byte("schema"), "v1"),
		Fingerprint("text", "prompt", []byte("schema2"), "v1"),
		Fingerprint("text", "prompt", []byte("schema"), "v2"),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d did not change the fingerprint", i)
		}
	}

	if Fingerprint("text", "prompt", []byte("schema"), "v1") != base {
		t.Fatalf("fingerprint must be deterministic")
	}

	// Field boundaries matter: moving a character across the separator must
	// not collide.
	if Fingerprint("ab", "c", nil, "v1") == Fingerprint("a", "bc", nil, "v1") {
		t.Fatalf("fingerprint fields must be domain-separated")
	}
}

func TestResultCache_RoundTripAndTTL(t *testing.T) {
	c := NewResultCache(t.TempDir(), time.Hour, "", nil)
	current := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return current }

	payload := json.RawMessage(`{"themes": []}`)
	fp := Fingerprint("body", "prompt", nil, "v1")

	if _, ok := c.Get(context.Background(), "positioning_themes", fp); ok {
		t.Fatalf("cold cache must miss")
	}

	c.Put(context.Background(), "positioning_themes", fp, payload)

	got, ok := c.Get(context.Background(), "positioning_themes", fp)
	if !ok {
		t.Fatalf("expected hit after write")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload altered in round trip: %s", got)
	}

	current = current.Add(time.Hour + time.Second)
	if _, ok := c.Get(context.Background(), "positioning_themes", fp); ok {
		t.Fatalf("expired entry must not be served")
	}
}

func TestScreenshotStore_RoundTrip(t *testing.T) {
	s := NewScreenshotStore(t.TempDir(), time.Hour, nil)
	data := []byte("\x89PNG\r\n\x1a\nfakedata")

	s.Put("shot-1", data, "image/png")

	blob, ok := s.Get("shot-1")
	if !ok {
		t.Fatalf("expected stored blob")
	}
	if blob.MIME != "image/png" || !bytes.Equal(blob.Bytes, data) {
		t.Fatalf("blob altered: %q %q", blob.MIME, blob.Bytes)
	}

	if _, ok := s.Get("unknown"); ok {
		t.Fatalf("unknown id must miss")
	}
}

func TestScreenshotStore_DiskFailsafe(t *testing.T) {
	dir := t.TempDir()
	s := NewScreenshotStore(dir, time.Hour, nil)
	s.Put("shot-2", []byte("\xff\xd8\xffjpegdata"), "image/jpeg")

	// A fresh store with the same dir simulates a restart.
	fresh := NewScreenshotStore(dir, time.Hour, nil)
	blob, ok := fresh.Get("shot-2")
	if !ok {
		t.Fatalf("disk failsafe should serve after restart")
	}
	if blob.MIME != "image/jpeg" {
		t.Fatalf("wrong mime from disk: %s", blob.MIME)
	}
}

func TestScreenshotStore_LegacyFormats(t *testing.T) {
	s := NewScreenshotStore("", time.Hour, nil)
	raw := []byte("rawimagebytes!!!")

	b64 := base64.StdEncoding.EncodeToString(raw)
	s.Put("legacy-b64", []byte(b64), "image/png")
	blob, ok := s.Get("legacy-b64")
	if !ok || !bytes.Equal(blob.Bytes, raw) {
		t.Fatalf("bare base64 not decoded: %q", blob.Bytes)
	}

	dataURI := "data:image/jpeg;base64," + b64
	s.Put("legacy-uri", []byte(dataURI), "")
	blob, ok = s.Get("legacy-uri")
	if !ok || !bytes.Equal(blob.Bytes, raw) || blob.MIME != "image/jpeg" {
		t.Fatalf("data URI not decoded: %q %q", blob.MIME, blob.Bytes)
	}
}

func TestScreenshotStore_TTLSweep(t *testing.T) {
	s := NewScreenshotStore("", time.Hour, nil)
	current := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return current }

	s.Put("shot-3", []byte("\x89PNGdata"), "image/png")
	current = current.Add(2 * time.Hour)
	s.Sweep()

	if _, ok := s.Get("shot-3"); ok {
		t.Fatalf("expired blob must be swept")
	}
}
