package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"lsmversion/pkg/localversion"
	"lsmversion/pkg/metrics"
	"lsmversion/pkg/types"
	"lsmversion/pkg/version"

	"github.com/prometheus/client_golang/prometheus"
)

type fakeSender struct {
	mu  sync.Mutex
	ids []types.VersionID
}

func (s *fakeSender) Send(id types.VersionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	return nil
}

type fakePinner struct {
	pinned []types.VersionID
}

func (p *fakePinner) Pin(_ context.Context, id types.VersionID) error {
	p.pinned = append(p.pinned, id)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *localversion.LocalVersion, *fakePinner) {
	t.Helper()

	reg := prometheus.NewRegistry()
	lv := localversion.New(version.New(1, 5, 0, 2), &fakeSender{},
		localversion.WithMetrics(metrics.New(reg, "test")))
	pinner := &fakePinner{}

	srv := NewServer(lv, pinner, reg, "")
	ts := httptest.NewServer(srv.createRouter())
	t.Cleanup(ts.Close)

	return ts, lv, pinner
}

func do(t *testing.T, method, url string, body []byte) (int, Response) {
	t.Helper()

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var out Response
	if strings.HasPrefix(resp.Header.Get("Content-Type"), contentTypeJSON) {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode, out
}

func TestServer_Health(t *testing.T) {
	ts, _, _ := newTestServer(t)

	code, resp := do(t, http.MethodGet, ts.URL+"/health", nil)
	if code != http.StatusOK || resp.Status != StatusOK {
		t.Fatalf("unexpected health response: %d %+v", code, resp)
	}
}

func TestServer_WriteReadAndCommit(t *testing.T) {
	ts, lv, pinner := newTestServer(t)

	if code, resp := do(t, http.MethodPut, ts.URL+"/write?epoch=6&key=a&value=1", nil); code != http.StatusOK {
		t.Fatalf("write failed: %d %+v", code, resp)
	}
	if code, resp := do(t, http.MethodPut, ts.URL+"/write?epoch=7&key=a&value=2", nil); code != http.StatusOK {
		t.Fatalf("write failed: %d %+v", code, resp)
	}

	code, resp := do(t, http.MethodGet, ts.URL+"/read?epoch=6&key=a", nil)
	if code != http.StatusOK || resp.Value != "1" || resp.Epoch != 6 {
		t.Fatalf("read at 6: %d %+v", code, resp)
	}
	code, resp = do(t, http.MethodGet, ts.URL+"/read?epoch=7&key=a", nil)
	if code != http.StatusOK || resp.Value != "2" {
		t.Fatalf("read at 7: %d %+v", code, resp)
	}

	body, _ := json.Marshal(version.New(2, 6, 0, 2))
	if code, resp := do(t, http.MethodPut, ts.URL+"/version", body); code != http.StatusOK {
		t.Fatalf("put version failed: %d %+v", code, resp)
	}
	if len(pinner.pinned) != 1 || pinner.pinned[0] != 2 {
		t.Fatalf("expected version 2 pinned at the authority, got %v", pinner.pinned)
	}
	if lv.PinnedVersion().MaxCommittedEpoch() != 6 {
		t.Fatalf("version not applied")
	}

	// epoch 6 now lives in the committed version only
	if code, _ := do(t, http.MethodGet, ts.URL+"/read?epoch=6&key=a", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for committed epoch, got %d", code)
	}
	if code, _ := do(t, http.MethodPut, ts.URL+"/write?epoch=6&key=b&value=1", nil); code != http.StatusConflict {
		t.Fatalf("expected 409 for committed epoch write, got %d", code)
	}

	back, _ := json.Marshal(version.New(3, 4, 0, 2))
	if code, _ := do(t, http.MethodPut, ts.URL+"/version", back); code != http.StatusConflict {
		t.Fatalf("expected 409 for backward version, got %d", code)
	}
	conflicting, _ := json.Marshal(version.New(2, 9, 0, 2))
	if code, _ := do(t, http.MethodPut, ts.URL+"/version", conflicting); code != http.StatusConflict {
		t.Fatalf("expected 409 for a pinned id with another epoch, got %d", code)
	}
	if lv.PinnedVersion().MaxCommittedEpoch() != 6 {
		t.Fatalf("conflicting descriptor applied")
	}
}

func TestServer_Tombstone(t *testing.T) {
	ts, _, _ := newTestServer(t)

	do(t, http.MethodPut, ts.URL+"/write?epoch=6&key=a&value=1", nil)
	do(t, http.MethodPut, ts.URL+"/write?epoch=7&key=a", nil)

	if code, _ := do(t, http.MethodGet, ts.URL+"/read?epoch=7&key=a", nil); code != http.StatusNotFound {
		t.Fatalf("expected deleted key to be 404, got %d", code)
	}
}

func TestServer_BadRequests(t *testing.T) {
	ts, _, _ := newTestServer(t)

	cases := []struct {
		method, path string
	}{
		{http.MethodGet, "/read?epoch=x&key=a"},
		{http.MethodGet, "/read?epoch=1"},
		{http.MethodPut, "/write?key=a"},
		{http.MethodPut, "/write?epoch=9"},
		{http.MethodPut, "/version"},
	}
	for _, tc := range cases {
		if code, _ := do(t, tc.method, ts.URL+tc.path, []byte("{")); code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d", tc.method, tc.path, code)
		}
	}
}

func TestServer_VersionBuffersAndMetrics(t *testing.T) {
	ts, _, _ := newTestServer(t)
	do(t, http.MethodPut, ts.URL+"/write?epoch=8&key=a&value=1", nil)

	code, resp := do(t, http.MethodGet, ts.URL+"/version", nil)
	if code != http.StatusOK {
		t.Fatalf("get version: %d", code)
	}
	v, _ := resp.Data.(map[string]any)
	if v["id"] != float64(1) || v["max_committed_epoch"] != float64(5) {
		t.Fatalf("unexpected version payload: %v", resp.Data)
	}

	code, resp = do(t, http.MethodGet, ts.URL+"/buffers", nil)
	if code != http.StatusOK {
		t.Fatalf("get buffers: %d", code)
	}
	stats, _ := resp.Data.(map[string]any)
	buffers, _ := stats["buffers"].([]any)
	if len(buffers) != 1 {
		t.Fatalf("expected one buffer, got %v", stats)
	}

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer res.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(res.Body)
	if !strings.Contains(buf.String(), "lsmversion_shared_buffer_epochs") {
		t.Fatal("metrics endpoint does not expose shared buffer gauge")
	}
}
