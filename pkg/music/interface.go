package music

import (
	"context"
)

// MusicAPI 歌词来源通用接口
type MusicAPI interface {
	// SearchSong 搜索歌曲，返回歌曲ID
	SearchSong(ctx context.Context, title, artist string) (string, error)

	// GetLyrics 根据歌曲ID获取 LRC 歌词
	GetLyrics(ctx context.Context, songID string) (string, error)

	// GetProviderName 获取提供商名称
	GetProviderName() string
}

// DurationLookup 可以直接按歌曲信息和时长查询歌词的提供商（如 LRCLib）
type DurationLookup interface {
	GetLyricsByInfo(ctx context.Context, title, artist string, duration float64) (string, error)
}

// MusicManager 音乐管理器接口（扩展接口，包含组合操作）
type MusicManager interface {
	MusicAPI

	// GetLyricsByInfo 根据歌曲信息直接获取歌词（封装搜索+获取歌词）
	GetLyricsByInfo(ctx context.Context, title, artist string, duration float64) (string, error)
}
