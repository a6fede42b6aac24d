// Package supervisor owns the lifecycle of the external filter process.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"fencebench/internal/model"
)

var (
	ErrExecutableNotFound = errors.New("filter executable not found")
	ErrStartupTimeout     = errors.New("filter did not become ready in time")
	ErrAlreadyRunning     = errors.New("a filter process is already running")
)

// candidateNames are tried in order when locating the filter binary.
var candidateNames = []string{
	"PocketFence-Filter.exe",
	"PocketFence-Filter",
	"pocketfence-filter.exe",
	"pocketfence-filter",
	"filter.exe",
	"filter",
}

// Handle represents one supervised filter process. At most one live
// handle exists per Supervisor.
type Handle struct {
	PID       int
	StartedAt time.Time

	cmd     *exec.Cmd
	stopped bool
}

// Alive reports whether Stop has not yet reaped the process.
func (h *Handle) Alive() bool {
	return h != nil && !h.stopped
}

// Supervisor starts the filter binary and polls its proxy port until it
// answers, and tears it down with a bounded grace period.
type Supervisor struct {
	ExecPath  string
	ReadyURL  string
	WaitReady time.Duration
	StopGrace time.Duration

	active *Handle
	client *http.Client
}

func New(execPath string) *Supervisor {
	return &Supervisor{
		ExecPath:  execPath,
		ReadyURL:  model.ProxyURL,
		WaitReady: model.ReadyWaitBudget,
		StopGrace: model.StopGracePeriod,
		client:    &http.Client{Timeout: time.Second},
	}
}

// FindExecutable locates the filter binary: candidate names in root
// first, then a walk of its subdirectories.
func FindExecutable(root string) (string, error) {
	for _, name := range candidateNames {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		for _, name := range candidateNames {
			if d.Name() == name {
				found = path
				return fs.SkipAll
			}
		}
		return nil
	})
	if err == nil && found != "" {
		return found, nil
	}
	return "", ErrExecutableNotFound
}

// Start launches the filter and blocks until the proxy port answers or
// the wait budget elapses. A prior live handle is torn down first so a
// caller mistake cannot leak a process.
func (s *Supervisor) Start(ctx context.Context) (*Handle, error) {
	if s.active.Alive() {
		s.Stop(s.active)
		return nil, ErrAlreadyRunning
	}

	cmd := exec.Command(s.ExecPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrExecutableNotFound, s.ExecPath)
		}
		return nil, fmt.Errorf("start filter: %w", err)
	}

	h := &Handle{
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
		cmd:       cmd,
	}

	if err := s.waitReady(ctx, h); err != nil {
		s.Stop(h)
		return nil, err
	}

	s.active = h
	return h, nil
}

func (s *Supervisor) waitReady(ctx context.Context, h *Handle) error {
	deadline := time.Now().Add(s.WaitReady)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ReadyURL, nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err == nil {
			// Any response means the listener is up; status is the
			// filter's business.
			resp.Body.Close()
			return nil
		}

		time.Sleep(model.ReadyPollInterval)
	}
	return ErrStartupTimeout
}

// Stop terminates the handle's process: SIGTERM, a bounded grace wait,
// then SIGKILL of the whole process group. Safe to call twice and on a
// nil handle.
func (s *Supervisor) Stop(h *Handle) {
	if h == nil || h.stopped {
		return
	}
	h.stopped = true
	if s.active == h {
		s.active = nil
	}

	_ = h.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = h.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.StopGrace):
		_ = syscall.Kill(-h.PID, syscall.SIGKILL)
		<-done
	}
}
