// Package playlist 在键值存储之上保存播放列表、当前歌曲和播放进度。
// 结构化数据以 JSON 字符串保存，标量以普通字符串保存。
package playlist

import (
	"context"
	"encoding/json"
	"fmt"
	"lyricsync/internal/store"
	"strconv"

	"github.com/google/uuid"
)

const (
	PlaylistKey    = "music-player-playlist"
	CurrentSongKey = "music-player-current-song"
	CurrentTimeKey = "music-player-current-time"
)

// Song 播放列表条目
type Song struct {
	ID         string  `json:"id"`
	Identifier string  `json:"identifier,omitempty"` // 播放器给出的 "artist - title"
	Title      string  `json:"title,omitempty"`
	Artist     string  `json:"artist,omitempty"`
	Duration   float64 `json:"duration,omitempty"` // 秒
}

// Storage 播放列表存储
type Storage struct {
	kv store.Store
}

func New(kv store.Store) *Storage {
	return &Storage{kv: kv}
}

// Playlist 读取播放列表，未保存过时返回空列表
func (s *Storage) Playlist(ctx context.Context) ([]Song, error) {
	raw, ok, err := s.kv.Get(ctx, PlaylistKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}
	if !ok || raw == "" {
		return []Song{}, nil
	}

	var songs []Song
	if err := json.Unmarshal([]byte(raw), &songs); err != nil {
		return nil, fmt.Errorf("failed to decode playlist: %w", err)
	}
	if songs == nil {
		songs = []Song{}
	}
	return songs, nil
}

func (s *Storage) SetPlaylist(ctx context.Context, songs []Song) error {
	if songs == nil {
		songs = []Song{}
	}
	data, err := json.Marshal(songs)
	if err != nil {
		return fmt.Errorf("failed to encode playlist: %w", err)
	}
	if err := s.kv.Set(ctx, PlaylistKey, string(data)); err != nil {
		return fmt.Errorf("failed to save playlist: %w", err)
	}
	return nil
}

// SongByID 按 ID 查找歌曲
func (s *Storage) SongByID(ctx context.Context, id string) (Song, bool, error) {
	return s.find(ctx, func(song Song) bool { return song.ID == id })
}

// SongByIdentifier 按播放器标识查找歌曲
func (s *Storage) SongByIdentifier(ctx context.Context, identifier string) (Song, bool, error) {
	return s.find(ctx, func(song Song) bool { return song.Identifier == identifier })
}

func (s *Storage) find(ctx context.Context, match func(Song) bool) (Song, bool, error) {
	songs, err := s.Playlist(ctx)
	if err != nil {
		return Song{}, false, err
	}
	for _, song := range songs {
		if match(song) {
			return song, true, nil
		}
	}
	return Song{}, false, nil
}

// Add 添加歌曲；ID 为空时分配新的 UUID，已存在相同 ID 时原地替换
func (s *Storage) Add(ctx context.Context, song Song) (Song, error) {
	songs, err := s.Playlist(ctx)
	if err != nil {
		return Song{}, err
	}
	if song.ID == "" {
		song.ID = uuid.NewString()
	}

	replaced := false
	for i := range songs {
		if songs[i].ID == song.ID {
			songs[i] = song
			replaced = true
			break
		}
	}
	if !replaced {
		songs = append(songs, song)
	}

	if err := s.SetPlaylist(ctx, songs); err != nil {
		return Song{}, err
	}
	return song, nil
}

// Remove 删除歌曲；如果它是当前歌曲，同时清除当前歌曲和进度
func (s *Storage) Remove(ctx context.Context, id string) error {
	songs, err := s.Playlist(ctx)
	if err != nil {
		return err
	}

	kept := songs[:0]
	for _, song := range songs {
		if song.ID != id {
			kept = append(kept, song)
		}
	}
	if len(kept) == len(songs) {
		return nil
	}
	if err := s.SetPlaylist(ctx, kept); err != nil {
		return err
	}

	current, ok, err := s.CurrentSongID(ctx)
	if err != nil {
		return err
	}
	if ok && current == id {
		if err := s.kv.Remove(ctx, CurrentSongKey); err != nil {
			return fmt.Errorf("failed to clear current song: %w", err)
		}
		if err := s.kv.Remove(ctx, CurrentTimeKey); err != nil {
			return fmt.Errorf("failed to clear current time: %w", err)
		}
	}
	return nil
}

func (s *Storage) CurrentSongID(ctx context.Context) (string, bool, error) {
	id, ok, err := s.kv.Get(ctx, CurrentSongKey)
	if err != nil {
		return "", false, fmt.Errorf("failed to read current song: %w", err)
	}
	return id, ok && id != "", nil
}

func (s *Storage) SetCurrentSongID(ctx context.Context, id string) error {
	if err := s.kv.Set(ctx, CurrentSongKey, id); err != nil {
		return fmt.Errorf("failed to save current song: %w", err)
	}
	return nil
}

// CurrentTime 读取保存的播放进度（秒）；不存在或无法解析时 ok 为 false
func (s *Storage) CurrentTime(ctx context.Context) (float64, bool, error) {
	raw, ok, err := s.kv.Get(ctx, CurrentTimeKey)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read current time: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, nil
	}
	return t, true, nil
}

func (s *Storage) SetCurrentTime(ctx context.Context, seconds float64) error {
	if err := s.kv.Set(ctx, CurrentTimeKey, strconv.FormatFloat(seconds, 'f', -1, 64)); err != nil {
		return fmt.Errorf("failed to save current time: %w", err)
	}
	return nil
}
