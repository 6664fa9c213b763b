package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"lyricsync/pkg/fileutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const kvSeparator = " => "

// File 基于单个文本文件的存储，每行一条 `key => "value"`。
// 打开时整体加载，每次修改后整体重写。
type File struct {
	path string
	mu   sync.Mutex
	data map[string]string
}

// OpenFile 打开（必要时创建）存储文件
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("file store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	f := &File{path: path, data: make(map[string]string)}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open store file %s: %w", f.path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		key, quoted, ok := strings.Cut(scanner.Text(), kvSeparator)
		if !ok {
			continue
		}
		value, err := strconv.Unquote(quoted)
		if err != nil {
			log.Warn().Str("path", f.path).Int("line", lineNo).Err(err).Msg("Skipping malformed store entry")
			continue
		}
		f.data[key] = value
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read store file %s: %w", f.path, err)
	}
	return nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	if err := checkFileKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	old, existed := f.data[key]
	f.data[key] = value
	if err := f.flush(); err != nil {
		if existed {
			f.data[key] = old
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	old, existed := f.data[key]
	if !existed {
		return nil
	}
	delete(f.data, key)
	if err := f.flush(); err != nil {
		f.data[key] = old
		return err
	}
	return nil
}

// flush 调用方需持有锁
func (f *File) flush() error {
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(kvSeparator)
		b.WriteString(strconv.Quote(f.data[k]))
		b.WriteByte('\n')
	}
	return fileutil.WriteFileOverwrite(f.path, []byte(b.String()), 0644)
}

func checkFileKey(key string) error {
	if key == "" || strings.ContainsAny(key, "\r\n") || strings.Contains(key, kvSeparator) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
