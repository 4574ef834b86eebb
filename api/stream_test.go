package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Luka0103/studyconnect/domain"
)

func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(lines) == 0 {
				continue
			}
			return strings.Join(lines, "\n")
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		lines = append(lines, line)
	}
}

func TestStreamSendsFramePerVersion(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(New(f.deps))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/board/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	r := bufio.NewReader(resp.Body)

	first := readFrame(t, r)
	if !strings.HasPrefix(first, "id: 0\ndata: ") {
		t.Fatalf("unexpected first frame %q", first)
	}

	f.store.Insert(domain.Task{ID: "5", Title: "new", Status: "done"})
	second := readFrame(t, r)
	if !strings.HasPrefix(second, "id: 1\n") || !strings.Contains(second, `"id":"5"`) {
		t.Fatalf("unexpected second frame %q", second)
	}
}
