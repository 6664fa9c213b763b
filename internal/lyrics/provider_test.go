package lyrics

import (
	"context"
	"errors"
	"lyricsync/internal/store"
	"os"
	"path/filepath"
	"testing"
)

type fakeAI struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeAI) Name() string { return "fake" }

func (f *fakeAI) HandleText(ctx context.Context, msg string) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

type fakeManager struct {
	lyrics        string
	err           error
	calls         int
	title, artist string
	duration      float64
}

func (f *fakeManager) SearchSong(ctx context.Context, title, artist string) (string, error) {
	return "", errors.New("unused")
}

func (f *fakeManager) GetLyrics(ctx context.Context, songID string) (string, error) {
	return "", errors.New("unused")
}

func (f *fakeManager) GetProviderName() string { return "fake" }

func (f *fakeManager) GetLyricsByInfo(ctx context.Context, title, artist string, duration float64) (string, error) {
	f.calls++
	f.title, f.artist, f.duration = title, artist, duration
	return f.lyrics, f.err
}

func TestGetLyricsFetchesAndCaches(t *testing.T) {
	dir := t.TempDir()
	manager := &fakeManager{lyrics: "[00:01.00]hello"}
	p := NewProvider(dir, nil, manager, store.NewMemory())

	got, err := p.GetLyrics(context.Background(), "The Artist - A/B Song", 200)
	if err != nil {
		t.Fatalf("GetLyrics failed: %v", err)
	}
	if got != "[00:01.00]hello" {
		t.Errorf("got %q", got)
	}
	if manager.title != "A/B Song" || manager.artist != "The Artist" || manager.duration != 200 {
		t.Errorf("manager called with %q %q %v", manager.title, manager.artist, manager.duration)
	}

	cached, err := os.ReadFile(filepath.Join(dir, "A-B Song-The Artist.lrc"))
	if err != nil || string(cached) != got {
		t.Fatalf("cache file = %q, %v", cached, err)
	}

	// 第二次命中文件缓存
	if _, err := p.GetLyrics(context.Background(), "The Artist - A/B Song", 200); err != nil {
		t.Fatal(err)
	}
	if manager.calls != 1 {
		t.Errorf("manager called %d times, want 1", manager.calls)
	}
}

func TestGetLyricsManagerError(t *testing.T) {
	manager := &fakeManager{err: errors.New("boom")}
	p := NewProvider(t.TempDir(), nil, manager, nil)
	if _, err := p.GetLyrics(context.Background(), "a - b", 0); err == nil {
		t.Error("expected error")
	}
}

func TestResolveSongWithAI(t *testing.T) {
	kv := store.NewMemory()
	client := &fakeAI{
		errs:      []error{errors.New("rate limited")},
		responses: []string{"", "```json\n{\"is_song\": true, \"title\": \"晴天\", \"artist\": \"周杰伦\"}\n```"},
	}
	p := NewProvider(t.TempDir(), client, &fakeManager{}, kv)
	p.retryDelay = 0

	info, err := p.ResolveSong(context.Background(), "周杰倫 - 晴天 (Official MV)")
	if err != nil {
		t.Fatalf("ResolveSong failed: %v", err)
	}
	want := SongInfo{Title: "晴天", Artist: "周杰伦", IsSong: true}
	if info != want {
		t.Errorf("got %+v, want %+v", info, want)
	}

	// 第二次从键值缓存读取，不再调用 AI
	if _, err := p.ResolveSong(context.Background(), "周杰倫 - 晴天 (Official MV)"); err != nil {
		t.Fatal(err)
	}
	if client.calls != 2 {
		t.Errorf("AI called %d times, want 2", client.calls)
	}
	if _, ok, _ := kv.Get(context.Background(), songInfoPrefix+"周杰倫 - 晴天 (Official MV)"); !ok {
		t.Error("song info not cached")
	}
}

func TestGetLyricsNotASong(t *testing.T) {
	client := &fakeAI{responses: []string{`{"is_song": false}`}}
	manager := &fakeManager{}
	p := NewProvider(t.TempDir(), client, manager, nil)

	_, err := p.GetLyrics(context.Background(), "Some Podcast Episode 12", 0)
	if !errors.Is(err, ErrNotASong) {
		t.Errorf("err = %v, want ErrNotASong", err)
	}
	if manager.calls != 0 {
		t.Error("manager should not be called for non-songs")
	}
}

func TestResolveSongAIFailure(t *testing.T) {
	boom := errors.New("down")
	client := &fakeAI{errs: []error{boom, boom, boom}}
	p := NewProvider(t.TempDir(), client, &fakeManager{}, nil)
	p.retryDelay = 0

	if _, err := p.ResolveSong(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
	if client.calls != aiMaxRetries {
		t.Errorf("calls = %d, want %d", client.calls, aiMaxRetries)
	}
}

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want SongInfo
	}{
		{"Artist - Title", SongInfo{Title: "Title", Artist: "Artist", IsSong: true}},
		{"Artist - Title - Remastered", SongInfo{Title: "Title - Remastered", Artist: "Artist", IsSong: true}},
		{"Just A Title", SongInfo{Title: "Just A Title", IsSong: true}},
		{" - Title", SongInfo{Title: "Title", IsSong: true}},
		{"Artist - ", SongInfo{Title: "Artist", IsSong: true}},
		{"   ", SongInfo{}},
	}
	for _, tt := range tests {
		if got := splitIdentifier(tt.in); got != tt.want {
			t.Errorf("splitIdentifier(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
