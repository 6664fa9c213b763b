// Package i3block 在广播新歌词后通知 i3blocks 刷新对应的 block。
// i3blocks 的 `signal=N` 对应实时信号 SIGRTMIN+N。
package i3block

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	sigRTMin        = 34
	refreshInterval = 10 * time.Second
)

var ErrNotFound = errors.New("i3blocks process not found")

var logger = log.With().Str("component", "i3block").Logger()

// Controller 定期查找 i3blocks 进程并在需要时发送刷新信号
type Controller struct {
	signal  syscall.Signal
	process string

	mu  sync.RWMutex
	pid int
}

// NewController blockSignal 为 i3blocks 配置中的 signal 值
func NewController(blockSignal int) *Controller {
	return &Controller{
		signal:  syscall.Signal(sigRTMin + blockSignal),
		process: "i3blocks",
		pid:     -1,
	}
}

// Run 每 10 秒刷新一次 PID，直到 ctx 结束
func (c *Controller) Run(ctx context.Context) {
	if err := c.refreshPID(ctx); err != nil {
		logger.Warn().Err(err).Msg("i3blocks not found yet")
	}

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.refreshPID(ctx); err != nil {
				logger.Debug().Err(err).Msg("Failed to refresh i3blocks PID")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) refreshPID(ctx context.Context) error {
	pid, err := c.findPID(ctx)
	c.mu.Lock()
	old := c.pid
	if err != nil {
		c.pid = -1
	} else {
		c.pid = pid
	}
	c.mu.Unlock()

	if err == nil && old != pid {
		logger.Info().Int("old_pid", old).Int("pid", pid).Msg("i3blocks PID updated")
	}
	return err
}

// findPID 优先使用 pgrep，失败时解析 ps 输出
func (c *Controller) findPID(ctx context.Context) (int, error) {
	if out, err := exec.CommandContext(ctx, "pgrep", "-x", c.process).Output(); err == nil {
		first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
		if pid, err := strconv.Atoi(first); err == nil {
			return pid, nil
		}
	}

	out, err := exec.CommandContext(ctx, "ps", "-eo", "pid,comm").Output()
	if err != nil {
		return 0, fmt.Errorf("failed to run ps: %w", err)
	}
	return parsePS(string(out), c.process)
}

func parsePS(out, process string) (int, error) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[1] != process {
			continue
		}
		if pid, err := strconv.Atoi(fields[0]); err == nil {
			return pid, nil
		}
	}
	return 0, ErrNotFound
}

// PID 当前记录的 PID，未找到时为 -1
func (c *Controller) PID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pid
}

// Refresh 向 i3blocks 发送刷新信号
func (c *Controller) Refresh() error {
	pid := c.PID()
	if pid <= 0 {
		return ErrNotFound
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(c.signal); err != nil {
		return fmt.Errorf("failed to send signal %d to process %d: %w", int(c.signal), pid, err)
	}
	return nil
}
