package lrclib

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL  = "https://lrclib.net/api"
	maxDurationDiff = 3 // 最大允许3秒误差
)

var logger = log.With().Str("component", "lrclib").Logger()

// Client LRCLib客户端
type Client struct {
	httpClient     *http.Client
	baseURL        string
	requestTimeout time.Duration
	maxRetries     int
	retryBackoff   time.Duration
}

// Track LRCLib API 返回的单条记录
type Track struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// NewClient 创建新的LRCLib客户端
func NewClient() *Client {
	return NewClientWithBaseURL(DefaultBaseURL)
}

func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		baseURL:        strings.TrimRight(baseURL, "/"),
		requestTimeout: 5 * time.Second,
		maxRetries:     3,
		retryBackoff:   500 * time.Millisecond,
	}
}

// GetProviderName 返回提供商名称
func (c *Client) GetProviderName() string {
	return "LRCLib"
}

// SearchSong LRCLib 不需要单独的搜索步骤，直接把查询参数编码为 "title|artist" 作为ID
func (c *Client) SearchSong(ctx context.Context, title, artist string) (string, error) {
	return title + "|" + artist, nil
}

// GetLyrics 获取歌词，songID 格式为 title|artist
func (c *Client) GetLyrics(ctx context.Context, songID string) (string, error) {
	title, artist, ok := strings.Cut(songID, "|")
	if !ok {
		return "", fmt.Errorf("invalid song ID format: %s", songID)
	}
	return c.GetLyricsByInfo(ctx, title, artist, 0)
}

// GetLyricsByInfo 通过歌曲信息获取歌词，duration > 0 时优先选择时长接近的结果
func (c *Client) GetLyricsByInfo(ctx context.Context, title, artist string, duration float64) (string, error) {
	tracks, err := c.search(ctx, title, artist)
	if err != nil {
		return "", err
	}

	logger.Info().Int("results", len(tracks)).Str("title", title).Str("artist", artist).Msg("Search finished")
	if len(tracks) == 0 {
		return "", fmt.Errorf("no lyrics found for '%s - %s'", title, artist)
	}

	best := findBestMatch(tracks, title, artist, duration)

	// 优先返回同步歌词，如果没有则返回纯文本歌词
	if best.SyncedLyrics != "" {
		logger.Info().
			Str("track", best.TrackName).
			Str("artist", best.ArtistName).
			Float64("duration", best.Duration).
			Float64("target_duration", duration).
			Msg("Selected synced lyrics")
		return best.SyncedLyrics, nil
	}
	if best.PlainLyrics != "" {
		logger.Warn().Str("track", best.TrackName).Msg("Only plain lyrics available")
		return best.PlainLyrics, nil
	}
	return "", fmt.Errorf("selected result has no lyrics for '%s - %s'", title, artist)
}

func (c *Client) search(ctx context.Context, title, artist string) ([]Track, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout*time.Duration(c.maxRetries+1))
	defer cancel()

	params := url.Values{}
	params.Set("track_name", title)
	params.Set("artist_name", artist)
	searchURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Info().Int("attempt", attempt).Int("max_retries", c.maxRetries).Msg("Retrying request")
			select {
			case <-time.After(time.Duration(attempt) * c.retryBackoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
			}
		}

		tracks, err := c.doSearch(ctx, searchURL)
		if err == nil {
			return tracks, nil
		}
		logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Request failed")
		lastErr = err
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) doSearch(ctx context.Context, searchURL string) ([]Track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "lyricsync/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var tracks []Track
	if err := json.NewDecoder(resp.Body).Decode(&tracks); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return tracks, nil
}

// findBestMatch 先按标题+歌手、再按标题筛选，有时长时选时长最接近的
func findBestMatch(tracks []Track, targetTitle, targetArtist string, targetDuration float64) *Track {
	var exactMatches, titleMatches []*Track
	for i := range tracks {
		t := &tracks[i]
		if t.Instrumental {
			continue
		}
		if containsIgnoreCase(t.TrackName, targetTitle) && containsIgnoreCase(t.ArtistName, targetArtist) {
			exactMatches = append(exactMatches, t)
		} else if containsIgnoreCase(t.TrackName, targetTitle) {
			titleMatches = append(titleMatches, t)
		}
	}

	pool := exactMatches
	if len(pool) == 0 {
		pool = titleMatches
	}
	if len(pool) == 0 {
		pool = make([]*Track, len(tracks))
		for i := range tracks {
			pool[i] = &tracks[i]
		}
	}

	if targetDuration <= 0 {
		return pool[0]
	}

	best := pool[0]
	minDiff := abs(best.Duration - targetDuration)
	for _, t := range pool {
		diff := abs(t.Duration - targetDuration)
		if diff <= maxDurationDiff {
			return t
		}
		if diff < minDiff {
			minDiff = diff
			best = t
		}
	}
	logger.Info().Float64("diff", minDiff).Msg("No result within duration threshold, using closest")
	return best
}

func abs(n float64) float64 {
	if n < 0 {
		return -n
	}
	return n
}

// containsIgnoreCase 忽略大小写检查包含关系
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
