package i3block

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"
)

func TestParsePS(t *testing.T) {
	out := `    PID COMMAND
      1 systemd
   1234 i3blocks-helper
   2345 i3blocks
   3456 i3blocks
`
	pid, err := parsePS(out, "i3blocks")
	if err != nil || pid != 2345 {
		t.Errorf("parsePS = %d, %v; want 2345", pid, err)
	}

	if _, err := parsePS("  PID COMMAND\n 1 init\n", "i3blocks"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRefreshWithoutPID(t *testing.T) {
	c := NewController(21)
	if c.signal != syscall.Signal(55) {
		t.Errorf("signal = %d, want 55", c.signal)
	}
	if err := c.Refresh(); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRefreshSendsSignal(t *testing.T) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	defer signal.Stop(ch)

	c := &Controller{signal: syscall.SIGUSR1, process: "i3blocks", pid: os.Getpid()}
	if err := c.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	select {
	case sig := <-ch:
		if sig != syscall.SIGUSR1 {
			t.Errorf("got %v, want SIGUSR1", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal not received")
	}
}
