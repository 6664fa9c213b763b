package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want not found", ok, err)
	}

	values := map[string]string{
		"song":     "a1b2",
		"time":     "12.5",
		"empty":    "",
		"json":     `[{"id":"1","title":"x"}]`,
		"newlines": "line one\nline two\r\n\ttabbed",
	}
	for k, v := range values {
		if err := s.Set(ctx, k, v); err != nil {
			t.Fatalf("Set(%q) failed: %v", k, err)
		}
	}
	for k, want := range values {
		got, ok, err := s.Get(ctx, k)
		if err != nil || !ok || got != want {
			t.Errorf("Get(%q) = %q, %v, %v; want %q", k, got, ok, err, want)
		}
	}

	if err := s.Set(ctx, "song", "c3d4"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if got, _, _ := s.Get(ctx, "song"); got != "c3d4" {
		t.Errorf("after overwrite Get(song) = %q, want c3d4", got)
	}

	if err := s.Remove(ctx, "song"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "song"); ok {
		t.Error("key still present after Remove")
	}
	if err := s.Remove(ctx, "song"); err != nil {
		t.Errorf("removing a missing key should not fail: %v", err)
	}
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.list")
	s, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	testStore(t, s)

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, ok, _ := reopened.Get(context.Background(), "newlines")
	if !ok || got != "line one\nline two\r\n\ttabbed" {
		t.Errorf("reopened Get(newlines) = %q, %v", got, ok)
	}
	if _, ok, _ := reopened.Get(context.Background(), "song"); ok {
		t.Error("removed key came back after reopen")
	}
}

func TestFileSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.list")
	content := "good => \"value\"\nno separator here\nbad => unquoted\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	ctx := context.Background()
	if v, ok, _ := s.Get(ctx, "good"); !ok || v != "value" {
		t.Errorf("Get(good) = %q, %v", v, ok)
	}
	if _, ok, _ := s.Get(ctx, "bad"); ok {
		t.Error("malformed entry should be skipped")
	}
}

func TestFileRejectsInvalidKeys(t *testing.T) {
	s, err := OpenFile(filepath.Join(t.TempDir(), "store.list"))
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "a\nb", "a => b"} {
		if err := s.Set(context.Background(), key, "v"); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Set(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("default backend = %T, want *Memory", s)
	}

	s, err = Open(ctx, Config{Backend: BackendFile, FilePath: filepath.Join(t.TempDir(), "kv.list")})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*File); !ok {
		t.Errorf("file backend = %T, want *File", s)
	}

	if _, err := Open(ctx, Config{Backend: "etcd"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

// 需要真实的 Redis，设置 LYRICS_TEST_REDIS_ADDR 后运行
func TestRedis(t *testing.T) {
	addr := os.Getenv("LYRICS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LYRICS_TEST_REDIS_ADDR not set")
	}
	r, err := NewRedis(context.Background(), RedisOptions{Addr: addr, Prefix: "lyricsync-test:"})
	if err != nil {
		t.Fatalf("NewRedis failed: %v", err)
	}
	defer r.Close()
	testStore(t, r)
}
