package ipc

import (
	"errors"
	"fmt"
	"lyricsync/pkg/fileutil"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
)

// Server 通过 unix socket 向所有连接的客户端广播当前歌词行。
// 每条消息以换行结尾；新连接会先收到最近一次广播的内容。
type Server struct {
	socketPath   string
	outputFile   string
	lockFilePath string
	lockFile     *os.File
	listener     net.Listener

	mu      sync.Mutex
	clients map[net.Conn]struct{}
	current string
	closed  bool
	wg      sync.WaitGroup
}

// NewServer outputFile 不为空时，每次广播同时写入该文件（供 i3blocks 等读取）
func NewServer(socketPath, outputFile string) *Server {
	return &Server{
		socketPath:   socketPath,
		outputFile:   outputFile,
		lockFilePath: socketPath + ".lock",
		clients:      make(map[net.Conn]struct{}),
	}
}

// cleanStaleLock 删除进程已退出的锁文件
func (s *Server) cleanStaleLock() {
	content, err := os.ReadFile(s.lockFilePath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read lock file, removing it")
		os.Remove(s.lockFilePath)
		return
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		log.Warn().Str("content", string(content)).Msg("Invalid PID in lock file, removing it")
		os.Remove(s.lockFilePath)
		return
	}

	// kill(pid, 0) 只检查进程是否存在
	if syscall.Kill(pid, 0) != nil {
		log.Info().Int("old_pid", pid).Msg("Process in lock file is not running, removing lock file")
		os.Remove(s.lockFilePath)
		return
	}
	log.Info().Int("existing_pid", pid).Msg("Lock file held by a running process")
}

func (s *Server) acquireLock() error {
	s.cleanStaleLock()

	file, err := os.OpenFile(s.lockFilePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return errors.New("another lyrics server instance is already running")
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	// 拿到锁之后再截断写入 PID，避免清空其他实例的锁文件
	if err := file.Truncate(0); err == nil {
		_, err = file.WriteString(fmt.Sprintf("%d\n", os.Getpid()))
	}
	if err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return fmt.Errorf("failed to write PID to lock file: %w", err)
	}

	s.lockFile = file
	log.Info().Str("lock_file", s.lockFilePath).Int("pid", os.Getpid()).Msg("Acquired process lock")
	return nil
}

func (s *Server) releaseLock() {
	if s.lockFile == nil {
		return
	}
	syscall.Flock(int(s.lockFile.Fd()), syscall.LOCK_UN)
	s.lockFile.Close()
	os.Remove(s.lockFilePath)
	log.Info().Str("lock_file", s.lockFilePath).Msg("Released process lock")
	s.lockFile = nil
}

func (s *Server) Start() error {
	if err := s.acquireLock(); err != nil {
		return err
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.releaseLock()
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.releaseLock()
		return err
	}
	s.listener = listener
	log.Info().Str("socket_path", s.socketPath).Msg("IPC server listening")

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error().Err(err).Msg("Failed to accept IPC connection")
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[conn] = struct{}{}
	_, err := conn.Write([]byte(s.current + "\n"))
	s.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Msg("Failed to send initial line")
	}
	log.Info().Msg("Client connected")

	// 客户端只读，这里仅用于感知断开
	buf := make([]byte, 64)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
	log.Info().Msg("Client disconnected")
}

// Broadcast 把一行文本发送给所有客户端，写失败的客户端会被移除
func (s *Server) Broadcast(line string) {
	line = strings.ReplaceAll(line, "\n", " ")

	if s.outputFile != "" {
		if err := fileutil.WriteFileOverwrite(s.outputFile, []byte(line+"\n"), 0644); err != nil {
			log.Warn().Err(err).Str("path", s.outputFile).Msg("Failed to write output file")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = line

	payload := []byte(line + "\n")
	for conn := range s.clients {
		if _, err := conn.Write(payload); err != nil {
			log.Error().Err(err).Msg("Failed to write to client, removing")
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// Current 最近一次广播的内容
func (s *Server) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	s.releaseLock()
}
