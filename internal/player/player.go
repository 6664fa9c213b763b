package player

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var ErrNoPlayer = errors.New("no player running")

// Player 提供正在播放的歌曲和播放时钟
type Player interface {
	CurrentSong(ctx context.Context) (string, error)
	Position(ctx context.Context) (float64, error)
	Duration(ctx context.Context) (float64, error)
}

// Playerctl 通过 playerctl 命令读取 MPRIS 播放器状态
type Playerctl struct {
	bin    string
	player string // 为空时由 playerctl 自行选择
}

func NewPlayerctl(player string) *Playerctl {
	return &Playerctl{bin: "playerctl", player: player}
}

func (p *Playerctl) run(ctx context.Context, args ...string) (string, error) {
	if p.player != "" {
		args = append([]string{"--player", p.player}, args...)
	}
	out, err := exec.CommandContext(ctx, p.bin, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoPlayer, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CurrentSong 返回 "artist - title"
func (p *Playerctl) CurrentSong(ctx context.Context) (string, error) {
	song, err := p.run(ctx, "metadata", "--format", `{{artist}} - {{title}}`)
	if err != nil {
		return "", err
	}
	if song == "" || song == "-" {
		return "", ErrNoPlayer
	}
	return song, nil
}

// Position 当前播放位置（秒）
func (p *Playerctl) Position(ctx context.Context) (float64, error) {
	out, err := p.run(ctx, "position")
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q: %w", out, err)
	}
	return seconds, nil
}

// Duration 歌曲时长（秒），mpris:length 单位为微秒
func (p *Playerctl) Duration(ctx context.Context) (float64, error) {
	out, err := p.run(ctx, "metadata", "mpris:length")
	if err != nil {
		return 0, err
	}
	micros, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid length %q: %w", out, err)
	}
	return micros / 1e6, nil
}
