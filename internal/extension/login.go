package extension

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hopboxdev/meshbox/internal/ipc"
)

// loginState is the diagnostic record reported by IsLoginComplete.
type loginState struct {
	mu         sync.Mutex
	executing  bool
	complete   bool
	lastResult string
	lastError  string
}

func (s *loginState) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executing = true
	s.complete = false
}

func (s *loginState) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executing = false
	if err != nil {
		s.lastResult = ipc.LoginResultError
		s.lastError = err.Error()
		return
	}
	s.complete = true
	s.lastResult = ipc.LoginResultSuccess
	s.lastError = ""
}

func (s *loginState) snapshot() ipc.LoginDiagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ipc.LoginDiagnostic{
		IsComplete:  s.complete,
		IsExecuting: s.executing,
		LastResult:  s.lastResult,
		LastError:   s.lastError,
	}
}

// loginListener forwards the first URL or error to Login and records the
// final outcome.
type loginListener struct {
	state *loginState
	urls  chan ipc.LoginResponse
	errs  chan error
}

func (l *loginListener) OnURL(url, userCode string) {
	select {
	case l.urls <- ipc.LoginResponse{URL: url, UserCode: userCode}:
	default:
	}
}

func (l *loginListener) OnSuccess() {
	l.state.finish(nil)
}

func (l *loginListener) OnError(err error) {
	l.state.finish(err)
	select {
	case l.errs <- err:
	default:
	}
}

// Login starts the SDK's interactive login and returns the URL to open.
// With deviceAuth the response also carries the user code. Completion is
// reported later through HandleLoginStatus.
func (e *Engine) Login(ctx context.Context, deviceAuth bool) (ipc.LoginResponse, error) {
	if !e.cfg.Client.IsLoginRequired() {
		e.login.finish(nil)
		e.log.Info("login not required")
		return ipc.LoginResponse{}, nil
	}

	e.login.begin()
	l := &loginListener{
		state: &e.login,
		urls:  make(chan ipc.LoginResponse, 1),
		errs:  make(chan error, 1),
	}
	e.cfg.Client.LoginAsync(deviceAuth, l)

	timer := time.NewTimer(e.cfg.LoginTimeout)
	defer timer.Stop()
	select {
	case resp := <-l.urls:
		e.log.WithField("device_auth", deviceAuth).Info("login URL issued")
		return resp, nil
	case err := <-l.errs:
		return ipc.LoginResponse{}, fmt.Errorf("login: %w", err)
	case <-timer.C:
		err := fmt.Errorf("login: no URL within %s", e.cfg.LoginTimeout)
		e.login.finish(err)
		return ipc.LoginResponse{}, err
	case <-ctx.Done():
		return ipc.LoginResponse{}, ctx.Err()
	}
}
