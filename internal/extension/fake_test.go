package extension

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/hopboxdev/meshbox/internal/sdk"
)

func testLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

// fakeClient is an in-memory sdk.Client. When listener is set, Stop
// delivers the disconnect callbacks on another goroutine the way the SDK
// does.
type fakeClient struct {
	mu        sync.Mutex
	starts    []startCall
	stops     int
	startErr  error
	listener  sdk.Listener
	loginReq  bool
	loginURL  string
	loginCode string
	loginErr  error
	loginL    sdk.LoginListener
	status    *sdk.StatusDetails
	statusErr error
	routes    *sdk.RoutesSelectionDetails
	selected  []string
	configs   []string
}

type startCall struct {
	fd     int
	ifName string
	env    sdk.Env
}

func (c *fakeClient) Start(fd int, ifName string, env sdk.Env) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts = append(c.starts, startCall{fd, ifName, env})
	return c.startErr
}

func (c *fakeClient) Stop() {
	c.mu.Lock()
	c.stops++
	l := c.listener
	c.mu.Unlock()
	if l != nil {
		go func() {
			l.OnDisconnecting()
			l.OnDisconnected()
		}()
	}
}

func (c *fakeClient) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.starts)
}

func (c *fakeClient) IsLoginRequired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginReq
}

func (c *fakeClient) Login() (string, error) { return c.loginURL, c.loginErr }

func (c *fakeClient) LoginAsync(forceDeviceAuth bool, l sdk.LoginListener) {
	c.mu.Lock()
	c.loginL = l
	url, code, err := c.loginURL, c.loginCode, c.loginErr
	c.mu.Unlock()
	go func() {
		if err != nil {
			l.OnError(err)
			return
		}
		if forceDeviceAuth {
			l.OnURL(url, code)
		} else {
			l.OnURL(url, "")
		}
	}()
}

func (c *fakeClient) StatusDetails() (*sdk.StatusDetails, error) {
	return c.status, c.statusErr
}

func (c *fakeClient) RoutesSelectionDetails() (*sdk.RoutesSelectionDetails, error) {
	if c.routes == nil {
		return nil, errors.New("not connected")
	}
	return c.routes, nil
}

func (c *fakeClient) SelectRoute(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = append(c.selected, id)
	return nil
}

func (c *fakeClient) DeselectRoute(string) error { return nil }

func (c *fakeClient) SetConfigFromJSON(json string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = append(c.configs, json)
	return nil
}
