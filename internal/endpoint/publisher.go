package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAttempts = 20
	DefaultInterval = 500 * time.Millisecond
)

// Publisher runs inside the subject's environment. It waits for a spawned
// browser child to expose its debugging address and writes one descriptor
// file keyed by run id. Distinct run ids write distinct files, so
// concurrent subjects never collide.
type Publisher struct {
	Store    *Store
	Attempts int           // discovery attempts (default 20)
	Interval time.Duration // delay between attempts (default 500ms)
	Client   *http.Client  // probe client (default: 1s timeout)
}

// FreePort asks the kernel for an unused local TCP port. The port is
// released before returning; the browser child binds it next.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocate debug port: %w", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port, nil
}

// Publish discovers the debug endpoint for runID and writes its descriptor.
// Discovery polls, in order per attempt, the DevToolsActivePort file under
// userDataDir (when given) and then the browser's /json/version endpoint on
// port (when nonzero). The budget is strict; when the child never exposes
// an address Publish returns an error and writes nothing.
func (p *Publisher) Publish(ctx context.Context, runID string, port int, userDataDir string) (Info, error) {
	if runID == "" {
		return Info{}, fmt.Errorf("publish requires a run id")
	}
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return Info{}, ctx.Err()
			case <-time.After(interval):
			}
		}
		if userDataDir != "" {
			if info, ok := p.fromPortFile(runID, userDataDir); ok {
				return info, p.Store.Write(info)
			}
		}
		if port > 0 {
			if info, ok := p.fromVersionEndpoint(ctx, runID, port); ok {
				return info, p.Store.Write(info)
			}
		}
	}
	return Info{}, fmt.Errorf("debug endpoint for run %s did not appear within %d attempts", runID, attempts)
}

// fromPortFile reads the DevToolsActivePort file the browser drops in its
// user data directory: first line is the port, second the browser target
// path.
func (p *Publisher) fromPortFile(runID, userDataDir string) (Info, bool) {
	path := filepath.Join(userDataDir, "DevToolsActivePort")
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Info{}, false
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 {
		return Info{}, false
	}
	port, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || port <= 0 {
		return Info{}, false
	}
	url := fmt.Sprintf("ws://127.0.0.1:%d", port)
	if len(lines) > 1 && strings.HasPrefix(lines[1], "/") {
		url += strings.TrimSpace(lines[1])
	}
	return Info{
		RunID:               runID,
		Port:                port,
		EndpointURL:         url,
		DiscoverySourcePath: path,
		Timestamp:           time.Now().UTC(),
	}, true
}

// fromVersionEndpoint probes the browser's HTTP debug interface for its
// websocket debugger URL.
func (p *Publisher) fromVersionEndpoint(ctx context.Context, runID string, port int) (Info, bool) {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: time.Second}
	}
	url := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Info{}, false
	}
	resp, err := client.Do(req)
	if err != nil {
		return Info{}, false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Info{}, false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Info{}, false
	}
	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.Unmarshal(body, &version); err != nil || version.WebSocketDebuggerURL == "" {
		return Info{}, false
	}
	return Info{
		RunID:               runID,
		Port:                port,
		EndpointURL:         version.WebSocketDebuggerURL,
		DiscoverySourcePath: url,
		Timestamp:           time.Now().UTC(),
	}, true
}
