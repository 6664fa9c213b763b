package music

import (
	"fmt"
	"lyricsync/pkg/lrclib"
	"lyricsync/pkg/netease"
	"strings"
)

// CreateProvider 创建音乐提供商客户端
func CreateProvider(provider Provider) (MusicAPI, error) {
	switch provider {
	case ProviderLRCLib:
		logger.Info().Msg("Creating LRCLib client")
		return lrclib.NewClient(), nil
	case ProviderNetEase:
		logger.Info().Msg("Creating NetEase music client")
		return netease.NewClient(), nil
	default:
		return nil, fmt.Errorf("unknown music provider: %s", provider)
	}
}

// CreateManager 按给定顺序创建提供商，names 为空时使用默认顺序
func CreateManager(names []string) (*Manager, error) {
	if len(names) == 0 {
		return CreateDefaultManager()
	}

	var providers []MusicAPI
	for _, name := range names {
		providerType, err := GetProviderByName(name)
		if err != nil {
			logger.Warn().Err(err).Msg("Skipping provider")
			continue
		}
		provider, err := CreateProvider(providerType)
		if err != nil {
			logger.Warn().Err(err).Str("provider", string(providerType)).Msg("Failed to create provider")
			continue
		}
		providers = append(providers, provider)
	}

	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	return NewManager(providers), nil
}

// CreateDefaultManager 创建默认的音乐API管理器
func CreateDefaultManager() (*Manager, error) {
	names := make([]string, 0, len(GetAvailableProviders()))
	for _, p := range GetAvailableProviders() {
		names = append(names, string(p))
	}
	return CreateManager(names)
}

// GetAvailableProviders 按优先级返回所有可用的提供商
func GetAvailableProviders() []Provider {
	return []Provider{
		ProviderLRCLib,  // 支持按时长匹配
		ProviderNetEase, // 中文歌曲覆盖更好
	}
}

// GetProviderByName 根据名称获取提供商
func GetProviderByName(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lrclib":
		return ProviderLRCLib, nil
	case "netease", "网易云", "163":
		return ProviderNetEase, nil
	default:
		return "", fmt.Errorf("unknown provider name: %s", name)
	}
}
