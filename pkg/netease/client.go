package netease

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultSearchURL = "https://music.163.com/api/search/get/web"
	defaultLyricURL  = "https://music.163.com/api/song/lyric"
)

var logger = log.With().Str("component", "netease").Logger()

// NeteaseSearchResponse 网易云搜索API响应
type NeteaseSearchResponse struct {
	Result struct {
		Songs []struct {
			ID      int    `json:"id"`
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"songs"`
	} `json:"result"`
}

// NeteaseLyricResponse 网易云歌词API响应
type NeteaseLyricResponse struct {
	Lrc struct {
		Lyric string `json:"lyric"`
	} `json:"lrc"`
}

// Client 网易云音乐客户端
type Client struct {
	httpClient     *http.Client
	cookie         string
	searchURL      string
	lyricURL       string
	maxRetries     int
	requestTimeout time.Duration
	retryBackoff   time.Duration
}

// NewClient 创建新的网易云音乐客户端，Cookie 从 NETEASE_COOKIE 读取
func NewClient() *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		cookie:         os.Getenv("NETEASE_COOKIE"),
		searchURL:      defaultSearchURL,
		lyricURL:       defaultLyricURL,
		maxRetries:     2,
		requestTimeout: 5 * time.Second,
		retryBackoff:   500 * time.Millisecond,
	}
}

// GetProviderName 获取提供商名称
func (c *Client) GetProviderName() string {
	return "NetEase Cloud Music"
}

// SearchSong 搜索歌曲
func (c *Client) SearchSong(ctx context.Context, title, artist string) (string, error) {
	params := url.Values{}
	params.Set("s", strings.TrimSpace(title+" "+artist))
	params.Set("type", "1")
	params.Set("limit", "30")

	var searchResp NeteaseSearchResponse
	if err := c.getJSON(ctx, c.searchURL+"?"+params.Encode(), &searchResp); err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	if len(searchResp.Result.Songs) == 0 {
		return "", fmt.Errorf("no songs found for '%s'", title)
	}

	songID := findBestMatch(searchResp, artist, title)
	if songID == 0 {
		return "", fmt.Errorf("no matching song found for '%s' by '%s'", title, artist)
	}
	return strconv.Itoa(songID), nil
}

// GetLyrics 获取歌词
func (c *Client) GetLyrics(ctx context.Context, songID string) (string, error) {
	params := url.Values{}
	params.Set("os", "pc")
	params.Set("id", songID)
	params.Set("lv", "-1")

	var lyricResp NeteaseLyricResponse
	if err := c.getJSON(ctx, c.lyricURL+"?"+params.Encode(), &lyricResp); err != nil {
		return "", fmt.Errorf("lyric request failed: %w", err)
	}
	if lyricResp.Lrc.Lyric == "" {
		return "", fmt.Errorf("song %s has no lyrics", songID)
	}
	return lyricResp.Lrc.Lyric, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequestWithRetry 非 200 或网络错误时重试，上下文结束后立即放弃
func (c *Client) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * c.retryBackoff
			logger.Info().Int("attempt", attempt).Dur("backoff", backoff).Msg("Retrying request")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
			}
		}

		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err == nil && resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			resp.Body.Close()
		}
		logger.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("Request failed")

		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("request failed after retries: %w", lastErr)
}

// findBestMatch 标题匹配且任一歌手匹配的第一首；否则退回第一首标题匹配的歌曲
func findBestMatch(resp NeteaseSearchResponse, targetArtist, targetTitle string) int {
	for _, song := range resp.Result.Songs {
		if !containsIgnoreCase(song.Name, targetTitle) {
			continue
		}
		for _, artist := range song.Artists {
			if containsIgnoreCase(artist.Name, targetArtist) {
				logger.Info().Str("song", song.Name).Str("artist", artist.Name).Int("id", song.ID).Msg("Found matching song")
				return song.ID
			}
		}
	}

	if first := resp.Result.Songs[0]; containsIgnoreCase(first.Name, targetTitle) {
		logger.Info().Str("song", first.Name).Int("id", first.ID).Msg("Using first title match")
		return first.ID
	}
	return 0
}

// normalizeString 标准化字符串（转小写，去空格）
func normalizeString(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "")
}

// containsIgnoreCase 忽略大小写和空格的双向包含检查
func containsIgnoreCase(s1, s2 string) bool {
	norm1, norm2 := normalizeString(s1), normalizeString(s2)
	return strings.Contains(norm1, norm2) || strings.Contains(norm2, norm1)
}
