package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestStoreWriteRead(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "endpoints"))
	info := Info{
		RunID:       "100-1700000000000",
		Port:        9222,
		EndpointURL: "ws://127.0.0.1:9222/devtools/browser/abc",
		Timestamp:   time.Now().UTC(),
	}
	if err := s.Write(info); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.Read(info.RunID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.RunID != info.RunID || got.Port != 9222 || got.EndpointURL != info.EndpointURL {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestStoreDistinctRunsNoCollision(t *testing.T) {
	s := NewStore(t.TempDir())
	for i := 0; i < 5; i++ {
		id := "run-" + strconv.Itoa(i)
		if err := s.Write(Info{RunID: id, Port: 9000 + i}); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}
	for i := 0; i < 5; i++ {
		got, err := s.Read("run-" + strconv.Itoa(i))
		if err != nil || got.Port != 9000+i {
			t.Fatalf("run-%d got %+v err=%v", i, got, err)
		}
	}
}

func TestReadRetryAbsentIsNotError(t *testing.T) {
	s := NewStore(t.TempDir())
	start := time.Now()
	if _, ok := s.ReadRetry("never", 3, 10*time.Millisecond); ok {
		t.Fatalf("expected unavailable")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("retry budget not bounded: %v", elapsed)
	}
}

func TestReadRetryToleratesMidWrite(t *testing.T) {
	s := NewStore(t.TempDir())
	// Simulate a writer flushing in two steps: truncated JSON first.
	if err := os.MkdirAll(s.Dir(), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path("r1"), []byte(`{"runId":"r1","po`), 0o600); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = s.Write(Info{RunID: "r1", Port: 9222})
	}()
	info, ok := s.ReadRetry("r1", 10, 20*time.Millisecond)
	if !ok || info.Port != 9222 {
		t.Fatalf("expected descriptor after writer finished, got (%+v, %v)", info, ok)
	}
}

func TestSweepRemovesOldDescriptors(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Write(Info{RunID: "old"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(Info{RunID: "fresh"}); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(s.Path("old"), past, past); err != nil {
		t.Fatal(err)
	}
	if removed := s.Sweep(24 * time.Hour); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := s.Read("old"); !os.IsNotExist(err) {
		t.Fatalf("old descriptor should be gone, err=%v", err)
	}
	if _, err := s.Read("fresh"); err != nil {
		t.Fatalf("fresh descriptor swept: %v", err)
	}
}

func TestPublishFromVersionEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"webSocketDebuggerUrl": "ws://127.0.0.1:9222/devtools/browser/xyz",
		})
	}))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())

	s := NewStore(t.TempDir())
	p := &Publisher{Store: s, Attempts: 3, Interval: 10 * time.Millisecond}
	info, err := p.Publish(context.Background(), "r2", port, "")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if info.EndpointURL != "ws://127.0.0.1:9222/devtools/browser/xyz" {
		t.Fatalf("endpoint url = %q", info.EndpointURL)
	}
	if got, err := s.Read("r2"); err != nil || got.Port != port {
		t.Fatalf("descriptor not persisted: %+v err=%v", got, err)
	}
}

func TestPublishFromPortFile(t *testing.T) {
	userData := t.TempDir()
	body := fmt.Sprintf("%d\n/devtools/browser/abc", 9333)
	if err := os.WriteFile(filepath.Join(userData, "DevToolsActivePort"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewStore(t.TempDir())
	p := &Publisher{Store: s, Attempts: 2, Interval: 10 * time.Millisecond}
	info, err := p.Publish(context.Background(), "r3", 0, userData)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if info.Port != 9333 || info.EndpointURL != "ws://127.0.0.1:9333/devtools/browser/abc" {
		t.Fatalf("info = %+v", info)
	}
}

func TestPublishBoundedFailure(t *testing.T) {
	s := NewStore(t.TempDir())
	p := &Publisher{Store: s, Attempts: 3, Interval: 5 * time.Millisecond}
	start := time.Now()
	if _, err := p.Publish(context.Background(), "r4", 0, filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected bounded failure")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("publish did not respect attempt budget: %v", elapsed)
	}
	if _, err := s.Read("r4"); !os.IsNotExist(err) {
		t.Fatalf("failed publish must not write a descriptor")
	}
}

func TestFreePort(t *testing.T) {
	port, err := FreePort()
	if err != nil || port <= 0 {
		t.Fatalf("FreePort = (%d, %v)", port, err)
	}
}
