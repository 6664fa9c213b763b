package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"lyricsync/internal/store"
	"lyricsync/pkg/ai"
	"lyricsync/pkg/fileutil"
	"lyricsync/pkg/music"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	fetchTimeout   = 20 * time.Second
	aiMaxRetries   = 3
	songInfoPrefix = "songinfo:"
)

var ErrNotASong = errors.New("not a song")

var unsafeFilenameRe = regexp.MustCompile(`[\\/:*?"<>|]`)

// SongInfo 从播放器标题中解析出的歌曲信息
type SongInfo struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	IsSong bool   `json:"is_song"`
}

// Provider 根据播放器给出的标识获取 LRC 歌词，带本地文件缓存
type Provider struct {
	cacheDir     string
	aiClient     ai.AiInterface
	musicManager music.MusicManager
	kv           store.Store
	retryDelay   time.Duration
}

// NewProvider aiClient 可以为 nil，此时按 "artist - title" 直接拆分标识
func NewProvider(cacheDir string, aiClient ai.AiInterface, manager music.MusicManager, kv store.Store) *Provider {
	if kv == nil {
		kv = store.NewMemory()
	}
	return &Provider{
		cacheDir:     cacheDir,
		aiClient:     aiClient,
		musicManager: manager,
		kv:           kv,
		retryDelay:   time.Second,
	}
}

func formatQuerySong(title string) string {
	return fmt.Sprintf(`请精确地按照以下JSON格式提取歌曲信息: {"is_song": true, "title": "歌曲标题", "artist": "演唱者"}。  输入是一个媒体标题，如果标题中包含歌曲信息，请返回符合格式的JSON；否则，返回{"is_song": false}。 请注意，"title" 和 "artist" 必须准确，否则将被视为错误，切记不要任何markdown格式，并将繁体中文转换为简体。 媒体标题是：%s`, title)
}

// GetLyrics 返回原始 LRC 文本。duration 为歌曲时长（秒），未知时传 0。
func (p *Provider) GetLyrics(ctx context.Context, songIdentifier string, duration float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	info, err := p.ResolveSong(ctx, songIdentifier)
	if err != nil {
		return "", err
	}
	if !info.IsSong {
		return "", fmt.Errorf("'%s': %w", songIdentifier, ErrNotASong)
	}

	cacheFilepath := p.cachePath(info)
	if cached, readErr := os.ReadFile(cacheFilepath); readErr == nil {
		log.Info().Str("path", cacheFilepath).Msg("Lyrics cache hit")
		return string(cached), nil
	}
	log.Info().Str("song", songIdentifier).Msg("Lyrics cache miss, fetching")

	lyrics, err := p.musicManager.GetLyricsByInfo(ctx, info.Title, info.Artist, duration)
	if err != nil {
		return "", fmt.Errorf("failed to get lyrics for '%s - %s': %w", info.Title, info.Artist, err)
	}

	if err := os.MkdirAll(p.cacheDir, 0755); err != nil {
		log.Error().Err(err).Str("cache_dir", p.cacheDir).Msg("Failed to create cache directory")
	} else if err := fileutil.WriteFileOverwrite(cacheFilepath, []byte(lyrics), 0644); err != nil {
		log.Error().Err(err).Str("path", cacheFilepath).Msg("Failed to write lyrics cache")
	}
	return lyrics, nil
}

// ResolveSong 解析播放器标识。结果缓存在键值存储中，避免重复调用 AI。
func (p *Provider) ResolveSong(ctx context.Context, songIdentifier string) (SongInfo, error) {
	key := songInfoPrefix + songIdentifier
	if raw, ok, err := p.kv.Get(ctx, key); err != nil {
		log.Warn().Err(err).Msg("Failed to read song info cache")
	} else if ok {
		var info SongInfo
		if err := json.Unmarshal([]byte(raw), &info); err == nil {
			return info, nil
		}
	}

	var info SongInfo
	if p.aiClient != nil {
		var err error
		info, err = p.queryAI(ctx, songIdentifier)
		if err != nil {
			return SongInfo{}, err
		}
		log.Info().Str("ai", p.aiClient.Name()).Str("title", info.Title).Str("artist", info.Artist).Msg("AI resolved song")
	} else {
		info = splitIdentifier(songIdentifier)
	}

	if data, err := json.Marshal(info); err == nil {
		if err := p.kv.Set(ctx, key, string(data)); err != nil {
			log.Warn().Err(err).Msg("Failed to write song info cache")
		}
	}
	return info, nil
}

func (p *Provider) queryAI(ctx context.Context, songIdentifier string) (SongInfo, error) {
	var raw string
	var err error
	for i := 0; i < aiMaxRetries; i++ {
		raw, err = p.aiClient.HandleText(ctx, formatQuerySong(songIdentifier))
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Int("max", aiMaxRetries).Msg("AI query failed")
		if i == aiMaxRetries-1 {
			break
		}
		select {
		case <-time.After(p.retryDelay):
		case <-ctx.Done():
			return SongInfo{}, ctx.Err()
		}
	}
	if err != nil {
		return SongInfo{}, fmt.Errorf("failed to query %s after %d attempts: %w", p.aiClient.Name(), aiMaxRetries, err)
	}

	var info SongInfo
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &info); err != nil {
		return SongInfo{}, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return info, nil
}

// splitIdentifier 按 playerctl 的 "{{artist}} - {{title}}" 格式拆分
func splitIdentifier(identifier string) SongInfo {
	if strings.TrimSpace(identifier) == "" {
		return SongInfo{}
	}
	artist, title, ok := strings.Cut(identifier, " - ")
	if !ok {
		return SongInfo{Title: strings.TrimSpace(identifier), IsSong: true}
	}
	artist, title = strings.TrimSpace(artist), strings.TrimSpace(title)
	if title == "" {
		return SongInfo{Title: artist, IsSong: artist != ""}
	}
	return SongInfo{Title: title, Artist: artist, IsSong: true}
}

// stripCodeFence 模型偶尔仍会返回 ```json 包裹的内容
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (p *Provider) cachePath(info SongInfo) string {
	name := info.Title
	if info.Artist != "" {
		name += "-" + info.Artist
	}
	return filepath.Join(p.cacheDir, sanitizeFilename(name)+".lrc")
}

func sanitizeFilename(name string) string {
	return unsafeFilenameRe.ReplaceAllString(name, "-")
}
