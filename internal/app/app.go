package app

import (
	"context"
	"errors"
	"fmt"
	"lyricsync/internal/config"
	"lyricsync/internal/i3block"
	"lyricsync/internal/ipc"
	"lyricsync/internal/lyrics"
	"lyricsync/internal/player"
	"lyricsync/internal/playlist"
	"lyricsync/internal/store"
	"lyricsync/pkg/ai"
	"lyricsync/pkg/ai/gemini"
	"lyricsync/pkg/ai/openai"
	"lyricsync/pkg/music"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	schedulerTick = 50 * time.Millisecond
	saveInterval  = time.Second
	songTail      = 5.0 // 最后一句之后多少秒视为歌曲结束
	fetchTimeout  = 30 * time.Second

	msgNoMusic     = "No music playing..."
	msgNoSynced    = "♪ 暂无同步歌词 ♪"
	msgStarting    = "♪ 即将开始... ♪"
	msgFinished    = "♪ 歌曲结束 ♪"
	msgSearchingFm = "... Searching for lyrics for %s ..."
)

// broadcaster 显示端，通常是 ipc.Server
type broadcaster interface {
	Start() error
	Broadcast(line string)
	Close()
}

// refresher 广播后需要通知的外部组件，通常是 i3block.Controller
type refresher interface {
	Run(ctx context.Context)
	Refresh() error
}

// lyricsSource 歌词来源，通常是 lyrics.Provider
type lyricsSource interface {
	GetLyrics(ctx context.Context, songIdentifier string, duration float64) (string, error)
}

type App struct {
	cfg       *config.Config
	player    player.Player
	source    lyricsSource
	playlist  *playlist.Storage
	out       broadcaster
	refresher refresher
	tick      time.Duration

	mutex       sync.Mutex
	currentSong string

	// 歌词调度器控制
	schedulerMutex  sync.Mutex
	schedulerCancel context.CancelFunc
	schedulerDone   chan struct{}
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// New 根据配置组装所有组件
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogger(cfg.App.LogLevel)

	kv, err := store.Open(ctx, cfg.Store)
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.Store.Backend).Msg("Failed to open store, falling back to memory")
		kv = store.NewMemory()
	}

	var aiClient ai.AiInterface
	if cfg.AI.APIKey != "" {
		if cfg.AI.ModuleName == "gemini" {
			g, err := gemini.NewGemini(ctx, cfg.AI.APIKey, "")
			if err != nil {
				return nil, err
			}
			aiClient = g
		} else {
			aiClient = openai.NewOpenAi(cfg.AI.APIKey, cfg.AI.ModuleName, cfg.AI.BaseURL)
		}
	}

	manager, err := music.CreateManager(cfg.Music.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to create music manager: %w", err)
	}

	a := newApp(
		cfg,
		player.NewPlayerctl(cfg.App.Player),
		lyrics.NewProvider(cfg.App.CacheDir, aiClient, manager, kv),
		playlist.New(kv),
		ipc.NewServer(cfg.App.SocketPath, cfg.App.OutputFile),
	)
	if cfg.I3Blocks.Enabled {
		a.refresher = i3block.NewController(cfg.I3Blocks.Signal)
	}
	return a, nil
}

func newApp(cfg *config.Config, p player.Player, source lyricsSource, pl *playlist.Storage, out broadcaster) *App {
	return &App{
		cfg:      cfg,
		player:   p,
		source:   source,
		playlist: pl,
		out:      out,
		tick:     schedulerTick,
	}
}

// Run 阻塞直到 ctx 结束
func (a *App) Run(ctx context.Context) error {
	if err := os.MkdirAll(a.cfg.App.CacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	log.Info().Str("cache_dir", a.cfg.App.CacheDir).Msg("Lyrics cache directory")

	if err := a.out.Start(); err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}
	defer a.out.Close()

	if a.refresher != nil {
		go a.refresher.Run(ctx)
	}
	a.logResumeState(ctx)

	ticker := time.NewTicker(a.cfg.App.CheckInterval)
	defer ticker.Stop()

	log.Info().Msg("Starting player check loop...")
	for {
		a.updateSongInfo(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			a.stopScheduler()
			log.Info().Msg("Shutting down")
			return nil
		}
	}
}

func (a *App) logResumeState(ctx context.Context) {
	id, ok, err := a.playlist.CurrentSongID(ctx)
	if err != nil || !ok {
		return
	}
	song, found, err := a.playlist.SongByID(ctx, id)
	if err != nil || !found {
		return
	}
	t, _, _ := a.playlist.CurrentTime(ctx)
	log.Info().Str("song", song.Identifier).Float64("time", t).Msg("Last played song")
}

func (a *App) broadcast(line string) {
	a.out.Broadcast(line)
	if a.refresher != nil {
		if err := a.refresher.Refresh(); err != nil && !errors.Is(err, i3block.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to refresh i3blocks")
		}
	}
}

func (a *App) updateSongInfo(ctx context.Context) {
	songIdentifier, err := a.player.CurrentSong(ctx)
	if err != nil {
		a.mutex.Lock()
		changed := a.currentSong != ""
		a.currentSong = ""
		a.mutex.Unlock()
		if changed {
			a.stopScheduler()
		}
		a.broadcast(msgNoMusic)
		return
	}

	a.mutex.Lock()
	if songIdentifier == a.currentSong {
		a.mutex.Unlock()
		return
	}
	log.Info().Msg("-----------------------------------------------------")
	log.Info().Str("song", songIdentifier).Msg("New song detected")
	a.currentSong = songIdentifier
	a.mutex.Unlock()

	a.stopScheduler()
	a.broadcast(fmt.Sprintf(msgSearchingFm, songIdentifier))

	duration, err := a.player.Duration(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Song duration unavailable")
		duration = 0
	}
	a.recordSong(ctx, songIdentifier, duration)

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	lrc, err := a.source.GetLyrics(fetchCtx, songIdentifier, duration)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get lyrics")
		a.broadcast(fmt.Sprintf("Error getting lyrics: %v", err))
		return
	}

	timeline := lyrics.ParseWithOptions(lrc, a.cfg.Lyrics)
	if len(lyrics.RealLines(timeline)) == 0 {
		log.Warn().Msg("No synced lyrics lines found")
		a.broadcast(msgNoSynced)
		return
	}

	a.startLyricScheduler(ctx, timeline)
}

// recordSong 把歌曲记入播放列表并设为当前歌曲
func (a *App) recordSong(ctx context.Context, identifier string, duration float64) {
	song, found, err := a.playlist.SongByIdentifier(ctx, identifier)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read playlist")
		return
	}
	if !found || (duration > 0 && song.Duration != duration) {
		song.Identifier = identifier
		song.Duration = duration
		if song, err = a.playlist.Add(ctx, song); err != nil {
			log.Warn().Err(err).Msg("Failed to save song")
			return
		}
	}
	if err := a.playlist.SetCurrentSongID(ctx, song.ID); err != nil {
		log.Warn().Err(err).Msg("Failed to save current song")
	}
}

func (a *App) stopScheduler() {
	a.schedulerMutex.Lock()
	cancel, done := a.schedulerCancel, a.schedulerDone
	a.schedulerCancel, a.schedulerDone = nil, nil
	a.schedulerMutex.Unlock()

	if cancel != nil {
		log.Info().Msg("Stopping previous lyric scheduler")
		cancel()
		<-done
	}
}

func (a *App) startLyricScheduler(parent context.Context, timeline []lyrics.Line) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	a.schedulerMutex.Lock()
	a.schedulerCancel = cancel
	a.schedulerDone = done
	a.schedulerMutex.Unlock()

	realLines := lyrics.RealLines(timeline)
	log.Info().Int("lines_count", len(realLines)).Msg("Starting lyric scheduler")

	go func() {
		defer close(done)
		a.runScheduler(ctx, timeline, realLines[len(realLines)-1].Time)
		log.Info().Msg("Lyric scheduler stopped")
	}()
}

func (a *App) runScheduler(ctx context.Context, timeline []lyrics.Line, lastLyric float64) {
	lead := a.cfg.App.LeadTime.Seconds()
	lastIndex := -2 // 确保第一次广播
	var lastSave time.Time

	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// 每次都重新获取播放器时间，避免累积误差
		currentTime, err := a.player.Position(ctx)
		if err != nil || currentTime < 0 {
			continue
		}

		if time.Since(lastSave) >= saveInterval {
			if err := a.playlist.SetCurrentTime(ctx, currentTime); err != nil {
				log.Debug().Err(err).Msg("Failed to save current time")
			}
			lastSave = time.Now()
		}

		if currentTime > lastLyric+songTail {
			log.Info().Float64("current_time", currentTime).Float64("last_lyric_time", lastLyric).Msg("Song finished")
			a.broadcast(msgFinished)
			return
		}

		newIndex := lyrics.IndexAt(timeline, currentTime+lead)
		if newIndex == lastIndex {
			continue
		}
		lastIndex = newIndex

		if newIndex < 0 {
			a.broadcast(msgStarting)
			continue
		}

		line := timeline[newIndex]
		switch {
		case line.IsPlaceholder() && line.Time < 0:
			a.broadcast(msgStarting)
		case line.IsPlaceholder():
			log.Info().Float64("current_time", currentTime).Msg("Reached end of timeline")
			a.broadcast(msgFinished)
			return
		default:
			log.Debug().
				Int("index", newIndex).
				Float64("player_time", currentTime).
				Float64("lyric_time", line.Time).
				Str("lyric", line.Text).
				Msg("Broadcasting lyric")
			a.broadcast(line.Text)
		}
	}
}
