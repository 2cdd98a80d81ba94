//go:build unix

package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/roach88/connect/internal/connect"
)

// osSignals maps SIGUSR1 to Suspend and SIGUSR2 to Resume.
type osSignals struct {
	mu   sync.Mutex
	ch   chan os.Signal
	stop chan struct{}
}

func newSignalSource() connect.SignalSource {
	return &osSignals{}
}

func (s *osSignals) Register(l connect.Lifecycle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch != nil {
		return
	}
	s.ch = make(chan os.Signal, 1)
	s.stop = make(chan struct{})
	signal.Notify(s.ch, syscall.SIGUSR1, syscall.SIGUSR2)
	go s.loop(l, s.ch, s.stop)
}

// Unregister stops delivery without waiting for a delivery in progress.
func (s *osSignals) Unregister(connect.Lifecycle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil {
		return
	}
	signal.Stop(s.ch)
	close(s.stop)
	s.ch = nil
	s.stop = nil
}

func (s *osSignals) loop(l connect.Lifecycle, ch <-chan os.Signal, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case sig := <-ch:
			switch sig {
			case syscall.SIGUSR1:
				slog.Warn("suspending on signal: protection will become unavailable", "signal", sig)
				l.Suspend()
			case syscall.SIGUSR2:
				slog.Info("resuming on signal", "signal", sig)
				l.Resume()
			}
		}
	}
}
