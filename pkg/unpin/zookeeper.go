package unpin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"lsmversion/pkg/types"

	"github.com/go-zookeeper/zk"
)

type iZKConn interface {
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	Delete(path string, version int32) error
	State() zk.State
	Close()
}

// ZKSink publishes pins as ephemeral znodes <root>/pins/<node>/<version id>.
// The version authority keeps a version while any node has a znode for it;
// a crashed node's pins vanish with its session.
type ZKSink struct {
	conn   iZKConn
	root   string
	node   types.NodeID
	logger *slog.Logger
}

// servers: ["zk1:2181", "zk2:2181"]
func NewZKSink(servers []string, root string, node types.NodeID, logger *slog.Logger) (*ZKSink, error) {
	conn, _, err := zk.Connect(servers, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}

	s := newZKSink(conn, root, node, logger)
	if err := s.waitConnected(10 * time.Second); err != nil {
		conn.Close()
		return nil, err
	}
	if err := s.ensurePath(s.nodePath()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure pins path: %w", err)
	}

	return s, nil
}

func newZKSink(conn iZKConn, root string, node types.NodeID, logger *slog.Logger) *ZKSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ZKSink{
		conn:   conn,
		root:   path.Clean("/" + strings.Trim(root, "/")),
		node:   node,
		logger: logger,
	}
}

func (s *ZKSink) nodePath() string {
	return path.Join(s.root, "pins", string(s.node))
}

func (s *ZKSink) pinPath(id types.VersionID) string {
	return path.Join(s.nodePath(), strconv.FormatUint(uint64(id), 10))
}

func (s *ZKSink) Pin(ctx context.Context, id types.VersionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.conn.Create(s.pinPath(id), nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("create pin %d: %w", id, err)
	}

	s.logger.Debug("[zk] version pinned", "path", s.pinPath(id))
	return nil
}

func (s *ZKSink) Unpin(ctx context.Context, id types.VersionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.conn.Delete(s.pinPath(id), -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("delete pin %d: %w", id, err)
	}

	s.logger.Debug("[zk] version unpinned", "path", s.pinPath(id))
	return nil
}

func (s *ZKSink) Close() error {
	s.conn.Close()
	return nil
}

func (s *ZKSink) ensurePath(p string) error {
	parts := strings.Split(p, "/")
	cur := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		cur = cur + "/" + part
		exists, _, err := s.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = s.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
		}
	}
	return nil
}

func (s *ZKSink) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := s.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
