// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T, compression Compression) *Store {
	t.Helper()
	store, err := Open(Config{
		Root:        filepath.Join(t.TempDir(), "blobs"),
		Compression: compression,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func compressibleImage() []byte {
	// An uncompressed bitmap-like payload: long runs of the same
	// pixel value.
	return bytes.Repeat([]byte{0x10, 0x20, 0x30, 0xff}, 16*1024)
}

func randomImage(t *testing.T, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return data
}

func TestPutGetRoundtrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			store := openTestStore(t, compression)
			for _, payload := range [][]byte{compressibleImage(), randomImage(t, 4096), {}} {
				ref, err := store.Put(payload)
				if err != nil {
					t.Fatalf("Put: %v", err)
				}
				if ref != HashBlob(payload) {
					t.Fatalf("Put ref = %s, want %s", ref, HashBlob(payload))
				}
				got, err := store.Get(ref)
				if err != nil {
					t.Fatalf("Get: %v", err)
				}
				if !bytes.Equal(got, payload) {
					t.Fatalf("Get returned %d bytes, want %d identical bytes", len(got), len(payload))
				}
			}
		})
	}
}

func TestCompressibleBlobIsSmallerOnDisk(t *testing.T) {
	store := openTestStore(t, CompressionZstd)
	payload := compressibleImage()
	ref, err := store.Put(payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	info, err := os.Stat(store.path(ref))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() >= int64(len(payload)) {
		t.Errorf("stored size %d, want less than %d", info.Size(), len(payload))
	}
}

func TestIncompressibleBlobStoredRaw(t *testing.T) {
	store := openTestStore(t, CompressionLZ4)
	payload := randomImage(t, 8192)
	ref, err := store.Put(payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	raw, err := os.ReadFile(store.path(ref))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if Compression(raw[0]) != CompressionNone {
		t.Errorf("compression tag = %s, want none", Compression(raw[0]))
	}
}

func TestPutIsIdempotent(t *testing.T) {
	store := openTestStore(t, CompressionZstd)
	payload := compressibleImage()
	first, err := store.Put(payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	second, err := store.Put(payload)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if first != second {
		t.Errorf("refs differ: %s vs %s", first, second)
	}
	entries, err := os.ReadDir(filepath.Dir(store.path(first)))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (no temp files left behind)", len(entries))
	}
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t, CompressionZstd)
	if _, err := store.Get(HashBlob([]byte("never stored"))); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: error = %v, want ErrNotFound", err)
	}
}

func TestGetDetectsTampering(t *testing.T) {
	store := openTestStore(t, CompressionNone)
	ref, err := store.Put([]byte("original image bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	path := store.path(ref)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := store.Get(ref); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Get tampered: error = %v, want ErrCorrupt", err)
	}
}

func TestDelete(t *testing.T) {
	store := openTestStore(t, CompressionZstd)
	ref, err := store.Put([]byte("short-lived"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !store.has(ref) {
		t.Fatal("Has = false after Put")
	}
	if err := store.Delete(ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.has(ref) {
		t.Error("Has = true after Delete")
	}
	if err := store.Delete(ref); err != nil {
		t.Errorf("second Delete: %v, want nil", err)
	}
}

func TestParseRef(t *testing.T) {
	ref := HashBlob([]byte("x"))
	parsed, err := ParseRef(ref.String())
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	if parsed != ref {
		t.Errorf("ParseRef(String()) = %s, want %s", parsed, ref)
	}
	for _, bad := range []string{"", "abc", ref.String()[:63] + "g"} {
		if _, err := ParseRef(bad); err == nil {
			t.Errorf("ParseRef(%q) succeeded, want error", bad)
		}
	}
}

func TestParseCompression(t *testing.T) {
	tests := map[string]Compression{"": CompressionZstd, "zstd": CompressionZstd, "lz4": CompressionLZ4, "none": CompressionNone}
	for name, want := range tests {
		got, err := ParseCompression(name)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseCompression("brotli"); err == nil {
		t.Error("ParseCompression(brotli) succeeded, want error")
	}
}

func (s *Store) has(ref Ref) bool {
	_, err := os.Stat(s.path(ref))
	return err == nil
}
