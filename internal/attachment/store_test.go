package attachment

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/iceberg/internal/apperr"
)

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "attachments"), opts...)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestNewStoreCreatesFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(s.Folder())
	if err != nil || !info.IsDir() {
		t.Fatalf("folder not created: %v", err)
	}
}

func TestNewStoreFailsOnFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(f); err == nil {
		t.Error("expected error when folder is a file")
	}
}

func TestInsertThenFetch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 500, time.UTC)
	s := newTestStore(t, WithClock(func() time.Time { return now }))

	for _, k := range Kinds() {
		key, err := s.Insert(ctx, "content for "+string(k), k, "描述 "+string(k))
		if err != nil {
			t.Fatalf("Insert %s: %v", k, err)
		}
		if !ValidKey(key) {
			t.Errorf("key %q is not an upper-case UUID", key)
		}

		a, err := s.Fetch(ctx, key)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if a.Kind != k || a.Description != "描述 "+string(k) || a.Key != key {
			t.Errorf("fetched %+v", a)
		}
		if a.URL == "" {
			t.Error("empty content location")
		}
		if !a.Date.Equal(now.Truncate(time.Second)) {
			t.Errorf("date = %v", a.Date)
		}

		content, err := s.Content(ctx, key)
		if err != nil || string(content) != "content for "+string(k) {
			t.Errorf("content = %q, %v", content, err)
		}
	}
}

func TestInsertWritesFilePair(t *testing.T) {
	s := newTestStore(t)
	key, err := s.Insert(context.Background(), "x", KindText, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{key, key + ".json"} {
		if _, err := os.Stat(filepath.Join(s.Folder(), name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestInsertReaderBinary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	payload := bytes.Repeat([]byte{0x00, 0xff, 0x10}, 4096)
	key, err := s.InsertReader(ctx, bytes.NewReader(payload), KindImage, "photo")
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Content(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("binary content mismatch")
	}
}

func TestInsertInvalidKind(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(context.Background(), "x", Kind("pdf"), "")
	if !errors.Is(err, apperr.ErrInvalidKind) {
		t.Errorf("err = %v", err)
	}
	keys, _ := s.Keys(context.Background())
	if len(keys) != 0 {
		t.Errorf("keys = %v", keys)
	}
}

func TestInsertMetadataFailureRemovesContent(t *testing.T) {
	const key = "0F8FAD5B-D9CB-469F-A165-70867728950E"
	s := newTestStore(t, WithKeyGenerator(func() string { return key }))
	// A directory where the metadata file should go makes the rename fail.
	if err := os.Mkdir(filepath.Join(s.Folder(), key+".json"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := s.Insert(context.Background(), "x", KindText, "")
	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	if _, err := os.Stat(filepath.Join(s.Folder(), key)); !os.IsNotExist(err) {
		t.Errorf("content file should be removed, stat err = %v", err)
	}
}

func TestInsertNeverReusesKey(t *testing.T) {
	const key = "0F8FAD5B-D9CB-469F-A165-70867728950E"
	s := newTestStore(t, WithKeyGenerator(func() string { return key }))
	ctx := context.Background()
	if _, err := s.Insert(ctx, "first", KindText, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(ctx, "second", KindText, ""); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	got, err := s.Content(ctx, key)
	if err != nil || string(got) != "first" {
		t.Errorf("content = %q, %v", got, err)
	}

	// Leftover metadata still holds the key.
	if err := os.Remove(filepath.Join(s.Folder(), key)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(ctx, "third", KindText, ""); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("metadata leftover: err = %v, want ErrAlreadyExists", err)
	}
}

func TestDeleteThenFetchNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key, err := s.Insert(ctx, "bye", KindText, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Fetch(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Fetch after delete: %v", err)
	}
	if err := s.Delete(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second Delete: %v", err)
	}
}

func TestDeletePartialStillRemovesOther(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key, err := s.Insert(ctx, "half", KindText, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(s.Folder(), key)); err != nil {
		t.Fatal(err)
	}

	err = s.Delete(ctx, key)
	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	if errors.Is(err, apperr.ErrNotFound) {
		t.Error("partial delete should not report not found")
	}
	if _, err := os.Stat(filepath.Join(s.Folder(), key+".json")); !os.IsNotExist(err) {
		t.Error("metadata should have been removed")
	}
}

func TestFetchErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Fetch(ctx, "../etc/passwd"); !errors.Is(err, apperr.ErrInvalidKey) {
		t.Errorf("traversal key: %v", err)
	}
	if _, err := s.Fetch(ctx, "0f8fad5b-d9cb-469f-a165-70867728950e"); !errors.Is(err, apperr.ErrInvalidKey) {
		t.Errorf("lower-case key: %v", err)
	}

	const key = "0F8FAD5B-D9CB-469F-A165-70867728950E"
	if _, err := s.Fetch(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing key: %v", err)
	}

	if err := os.WriteFile(filepath.Join(s.Folder(), key+".json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Fetch(ctx, key); !errors.Is(err, apperr.ErrDecode) {
		t.Errorf("corrupt metadata: %v", err)
	}
}

func TestDanglingMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key, err := s.Insert(ctx, "soon gone", KindText, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(s.Folder(), key)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Fetch(ctx, key); err != nil {
		t.Errorf("Fetch should not check content: %v", err)
	}
	if _, err := s.Content(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Content: %v", err)
	}
}

func TestConcurrentInsertsUniqueKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const workers, perWorker = 8, 50
	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key, err := s.Insert(ctx, "c", KindText, "")
				if err != nil {
					t.Errorf("Insert: %v", err)
					return
				}
				mu.Lock()
				if seen[key] {
					t.Errorf("duplicate key %s", key)
				}
				seen[key] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != workers*perWorker {
		t.Errorf("keys = %d, want %d", len(keys), workers*perWorker)
	}
}

func TestKeysIgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key, err := s.Insert(ctx, "x", KindText, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"notes.txt", "README.json", ".DS_Store"} {
		if err := os.WriteFile(filepath.Join(s.Folder(), name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != key {
		t.Errorf("keys = %v", keys)
	}
}

func TestCanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Insert(ctx, "x", KindText, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
