package unpin

import (
	"context"
	"sync"
	"testing"

	"github.com/go-zookeeper/zk"
)

type fakeZKConn struct {
	mu    sync.Mutex
	nodes map[string]int32
}

func newFakeZKConn() *fakeZKConn {
	return &fakeZKConn{nodes: make(map[string]int32)}
}

func (c *fakeZKConn) Exists(path string) (bool, *zk.Stat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.nodes[path]
	return ok, &zk.Stat{}, nil
}

func (c *fakeZKConn) Create(path string, _ []byte, flags int32, _ []zk.ACL) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.nodes[path]; ok {
		return "", zk.ErrNodeExists
	}
	c.nodes[path] = flags
	return path, nil
}

func (c *fakeZKConn) Delete(path string, _ int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.nodes[path]; !ok {
		return zk.ErrNoNode
	}
	delete(c.nodes, path)
	return nil
}

func (c *fakeZKConn) State() zk.State { return zk.StateHasSession }
func (c *fakeZKConn) Close()          {}

func TestZKSink_PinUnpin(t *testing.T) {
	conn := newFakeZKConn()
	s := newZKSink(conn, "lsmversion/", "node-1", nil)

	if err := s.waitConnected(0); err != nil {
		t.Fatalf("waitConnected failed: %v", err)
	}
	if err := s.ensurePath(s.nodePath()); err != nil {
		t.Fatalf("ensurePath failed: %v", err)
	}
	for _, p := range []string{"/lsmversion", "/lsmversion/pins", "/lsmversion/pins/node-1"} {
		if ok, _, _ := conn.Exists(p); !ok {
			t.Fatalf("expected %s to exist", p)
		}
	}

	ctx := context.Background()
	if err := s.Pin(ctx, 42); err != nil {
		t.Fatalf("Pin failed: %v", err)
	}
	if err := s.Pin(ctx, 42); err != nil {
		t.Fatalf("repeated Pin must be tolerated: %v", err)
	}
	if flags := conn.nodes["/lsmversion/pins/node-1/42"]; flags != zk.FlagEphemeral {
		t.Fatalf("pin must be ephemeral, flags=%d", flags)
	}

	if err := s.Unpin(ctx, 42); err != nil {
		t.Fatalf("Unpin failed: %v", err)
	}
	if ok, _, _ := conn.Exists("/lsmversion/pins/node-1/42"); ok {
		t.Fatal("pin znode still present after Unpin")
	}
	if err := s.Unpin(ctx, 42); err != nil {
		t.Fatalf("Unpin of a missing pin must be tolerated: %v", err)
	}
}

func TestZKSink_CancelledContext(t *testing.T) {
	s := newZKSink(newFakeZKConn(), "/root", "n", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Pin(ctx, 1); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if err := s.Unpin(ctx, 1); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
