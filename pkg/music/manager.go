package music

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Provider 音乐提供商类型
type Provider string

const (
	// ProviderLRCLib LRCLib歌词库
	ProviderLRCLib Provider = "lrclib"
	// ProviderNetEase 网易云音乐
	ProviderNetEase Provider = "netease"
)

var ErrNoProviders = errors.New("no music providers available")

var logger = log.With().Str("component", "music-manager").Logger()

// Manager 按顺序尝试多个提供商的歌词获取器
type Manager struct {
	providers []MusicAPI
	primary   MusicAPI
}

var _ MusicManager = (*Manager)(nil)

// NewManager 创建新的音乐API管理器，第一个提供商为主提供商
func NewManager(providers []MusicAPI) *Manager {
	if len(providers) == 0 {
		logger.Warn().Msg("No music providers configured")
		return &Manager{}
	}

	primary := providers[0]
	logger.Info().
		Int("provider_count", len(providers)).
		Str("primary_provider", primary.GetProviderName()).
		Msg("Music API Manager initialized")

	return &Manager{
		providers: providers,
		primary:   primary,
	}
}

// SearchSong 搜索歌曲，支持多提供商回退
func (m *Manager) SearchSong(ctx context.Context, title, artist string) (string, error) {
	return firstSuccess(ctx, m.providers, "search", func(p MusicAPI) (string, error) {
		return p.SearchSong(ctx, title, artist)
	})
}

// GetLyrics 获取歌词，支持多提供商回退
func (m *Manager) GetLyrics(ctx context.Context, songID string) (string, error) {
	return firstSuccess(ctx, m.providers, "lyrics", func(p MusicAPI) (string, error) {
		return p.GetLyrics(ctx, songID)
	})
}

// GetLyricsByInfo 根据歌曲信息直接获取歌词（封装搜索+获取歌词）
func (m *Manager) GetLyricsByInfo(ctx context.Context, title, artist string, duration float64) (string, error) {
	lyrics, err := firstSuccess(ctx, m.providers, "lyrics-by-info", func(p MusicAPI) (string, error) {
		// 支持时长匹配的提供商直接查询
		if lookup, ok := p.(DurationLookup); ok && duration > 0 {
			return lookup.GetLyricsByInfo(ctx, title, artist, duration)
		}

		songID, err := p.SearchSong(ctx, title, artist)
		if err != nil {
			return "", fmt.Errorf("search failed: %w", err)
		}
		lyrics, err := p.GetLyrics(ctx, songID)
		if err != nil {
			return "", fmt.Errorf("get lyrics for song %s failed: %w", songID, err)
		}
		return lyrics, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to get lyrics for '%s - %s': %w", title, artist, err)
	}
	return lyrics, nil
}

// firstSuccess 依次调用提供商，返回第一个非空结果
func firstSuccess(ctx context.Context, providers []MusicAPI, op string, call func(MusicAPI) (string, error)) (string, error) {
	if len(providers) == 0 {
		return "", ErrNoProviders
	}

	var lastErr error
	for i, provider := range providers {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		logger.Info().
			Str("op", op).
			Str("provider", provider.GetProviderName()).
			Int("attempt", i+1).
			Int("total_providers", len(providers)).
			Msg("Trying provider")

		result, err := call(provider)
		if err == nil && result == "" {
			err = errors.New("empty result")
		}
		if err == nil {
			logger.Info().
				Str("op", op).
				Str("provider", provider.GetProviderName()).
				Msg("Provider succeeded")
			return result, nil
		}

		logger.Warn().
			Str("op", op).
			Str("provider", provider.GetProviderName()).
			Err(err).
			Msg("Provider failed")
		lastErr = fmt.Errorf("%s: %w", provider.GetProviderName(), err)
	}

	return "", fmt.Errorf("all providers failed, last error: %w", lastErr)
}

// GetProviderName 获取管理器名称（实现MusicAPI接口）
func (m *Manager) GetProviderName() string {
	if m.primary != nil {
		return fmt.Sprintf("Manager[Primary: %s]", m.primary.GetProviderName())
	}
	return "Manager[No Providers]"
}

// GetProviderNames 获取所有提供商名称
func (m *Manager) GetProviderNames() []string {
	names := make([]string, len(m.providers))
	for i, provider := range m.providers {
		names[i] = provider.GetProviderName()
	}
	return names
}
