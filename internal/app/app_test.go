package app

import (
	"context"
	"errors"
	"lyricsync/internal/config"
	"lyricsync/internal/lyrics"
	"lyricsync/internal/player"
	"lyricsync/internal/playlist"
	"lyricsync/internal/store"
	"slices"
	"sync"
	"testing"
	"time"
)

type fakePlayer struct {
	mu       sync.Mutex
	song     string
	position float64
	duration float64
}

func (p *fakePlayer) set(song string, position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.song, p.position = song, position
}

func (p *fakePlayer) seek(position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = position
}

func (p *fakePlayer) CurrentSong(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.song == "" {
		return "", player.ErrNoPlayer
	}
	return p.song, nil
}

func (p *fakePlayer) Position(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

func (p *fakePlayer) Duration(ctx context.Context) (float64, error) {
	return p.duration, nil
}

type fakeOut struct {
	mu    sync.Mutex
	lines []string
}

func (o *fakeOut) Start() error { return nil }
func (o *fakeOut) Close()       {}

func (o *fakeOut) Broadcast(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, line)
}

func (o *fakeOut) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.lines)
}

type fakeSource struct {
	lrc   string
	err   error
	calls int
}

func (s *fakeSource) GetLyrics(ctx context.Context, songIdentifier string, duration float64) (string, error) {
	s.calls++
	return s.lrc, s.err
}

type fakeRefresher struct {
	mu    sync.Mutex
	count int
}

func (r *fakeRefresher) Run(ctx context.Context) { <-ctx.Done() }

func (r *fakeRefresher) Refresh() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.App.CacheDir = t.TempDir()
	cfg.App.LeadTime = 0
	cfg.App.CheckInterval = 20 * time.Millisecond
	return cfg
}

func newTestApp(t *testing.T, p *fakePlayer, src *fakeSource) (*App, *fakeOut, *playlist.Storage) {
	out := &fakeOut{}
	pl := playlist.New(store.NewMemory())
	a := newApp(testConfig(t), p, src, pl, out)
	a.tick = 5 * time.Millisecond
	t.Cleanup(a.stopScheduler)
	return a, out, pl
}

// waitFor 轮询直到广播中出现 want
func waitFor(t *testing.T, out *fakeOut, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if slices.Contains(out.snapshot(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%q never broadcast, got %q", want, out.snapshot())
}

func TestSchedulerFollowsPlayback(t *testing.T) {
	p := &fakePlayer{duration: 180}
	p.set("Artist - Title", 0.5)
	src := &fakeSource{lrc: "[ti:Title]\n[00:01.00]first\n[00:02.00][00:04.00]chorus\n[00:03.00]second"}
	a, out, pl := newTestApp(t, p, src)

	ctx := context.Background()
	a.updateSongInfo(ctx)
	waitFor(t, out, msgStarting)

	p.seek(1.2)
	waitFor(t, out, "first")
	p.seek(2.5)
	waitFor(t, out, "chorus")
	p.seek(3.1)
	waitFor(t, out, "second")
	p.seek(20)
	waitFor(t, out, msgFinished)

	got := out.snapshot()
	want := []string{"... Searching for lyrics for Artist - Title ...", msgStarting, "first", "chorus", "second", msgFinished}
	if !slices.Equal(got, want) {
		t.Errorf("broadcasts = %q, want %q", got, want)
	}

	// 播放列表记录了当前歌曲和进度
	id, ok, _ := pl.CurrentSongID(ctx)
	if !ok {
		t.Fatal("current song not saved")
	}
	song, found, _ := pl.SongByID(ctx, id)
	if !found || song.Identifier != "Artist - Title" || song.Duration != 180 {
		t.Errorf("saved song = %+v", song)
	}
	if _, ok, _ := pl.CurrentTime(ctx); !ok {
		t.Error("current time not saved")
	}

	// 同一首歌不会重新获取
	a.updateSongInfo(ctx)
	if src.calls != 1 {
		t.Errorf("lyrics fetched %d times, want 1", src.calls)
	}
}

func TestSchedulerTrailingPlaceholderEndsSong(t *testing.T) {
	p := &fakePlayer{}
	p.set("A - B", 1.5)
	src := &fakeSource{lrc: "[00:01.00]only"}
	a, out, _ := newTestApp(t, p, src)
	// 让结尾占位早于“最后一句 + 5 秒”
	a.cfg.Lyrics = lyrics.Options{LeadingPlaceholders: 0, TrailingPlaceholders: 1, TrailingStart: 3}

	a.updateSongInfo(context.Background())
	waitFor(t, out, "only")
	p.seek(3.5)
	waitFor(t, out, msgFinished)
}

func TestNoSyncedLyrics(t *testing.T) {
	p := &fakePlayer{}
	p.set("A - B", 0)
	a, out, _ := newTestApp(t, p, &fakeSource{lrc: "plain text lyrics\nwithout tags"})

	a.updateSongInfo(context.Background())
	got := out.snapshot()
	if got[len(got)-1] != msgNoSynced {
		t.Errorf("broadcasts = %q", got)
	}
	if a.schedulerCancel != nil {
		t.Error("scheduler should not start")
	}
}

func TestLyricsError(t *testing.T) {
	p := &fakePlayer{}
	p.set("A - B", 0)
	a, out, _ := newTestApp(t, p, &fakeSource{err: errors.New("offline")})

	a.updateSongInfo(context.Background())
	got := out.snapshot()
	if got[len(got)-1] != "Error getting lyrics: offline" {
		t.Errorf("broadcasts = %q", got)
	}
}

func TestSongChangeAndStop(t *testing.T) {
	p := &fakePlayer{}
	p.set("A - One", 1.5)
	src := &fakeSource{lrc: "[00:01.00]one"}
	a, out, _ := newTestApp(t, p, src)
	ctx := context.Background()

	a.updateSongInfo(ctx)
	waitFor(t, out, "one")

	src.lrc = "[00:01.00]two"
	p.set("A - Two", 1.5)
	a.updateSongInfo(ctx)
	waitFor(t, out, "two")
	if src.calls != 2 {
		t.Errorf("calls = %d, want 2", src.calls)
	}

	p.set("", 0)
	a.updateSongInfo(ctx)
	waitFor(t, out, msgNoMusic)
	if a.schedulerCancel != nil {
		t.Error("scheduler should be stopped when playback stops")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	p := &fakePlayer{}
	p.set("A - B", 1.5)
	a, out, _ := newTestApp(t, p, &fakeSource{lrc: "[00:01.00]line"})
	r := &fakeRefresher{}
	a.refresher = r

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	waitFor(t, out, "line")
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		t.Error("refresher was never called")
	}
}

func TestLeadTime(t *testing.T) {
	p := &fakePlayer{}
	p.set("A - B", 0.7)
	a, out, _ := newTestApp(t, p, &fakeSource{lrc: "[00:01.00]soon"})
	a.cfg.App.LeadTime = 500 * time.Millisecond

	a.updateSongInfo(context.Background())
	waitFor(t, out, "soon")
	if slices.Contains(out.snapshot(), msgStarting) {
		t.Errorf("lead time ignored, broadcasts = %q", out.snapshot())
	}
}
