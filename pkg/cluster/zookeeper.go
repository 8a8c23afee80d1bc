package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

// ZKMembership читает список primary-нод стора из ZooKeeper
// (<root>/nodes/<host:port>) и раздаёт им слоты через HashRing.
type ZKMembership struct {
	conn     *zk.Conn
	rootPath string
	replicas int
}

// servers: ["zk1:2181", "zk2:2181"]
func NewZKMembership(servers []string, rootPath string, ringReplicas int) (*ZKMembership, error) {
	conn, _, err := zk.Connect(servers, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	return &ZKMembership{
		conn:     conn,
		rootPath: strings.TrimRight(rootPath, "/"),
		replicas: ringReplicas,
	}, nil
}

func (m *ZKMembership) Close() error {
	m.conn.Close()
	return nil
}

func (m *ZKMembership) nodesPath() string {
	return m.rootPath + "/nodes"
}

func (m *ZKMembership) ensurePath(path string) error {
	parts := strings.Split(path, "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := m.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = m.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
		}
	}
	return nil
}

// Register создаёт ephemeral-узел для ноды стора. Узел живёт,
// пока жива сессия, так что упавшая нода сама пропадёт из топологии.
func (m *ZKMembership) Register(addr string) error {
	if err := m.waitConnected(10 * time.Second); err != nil {
		return err
	}
	if err := m.ensurePath(m.nodesPath()); err != nil {
		return fmt.Errorf("ensure nodes path: %w", err)
	}

	nodePath := m.nodesPath() + "/" + addr
	_, err := m.conn.Create(nodePath, nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("create ephemeral node: %w", err)
	}

	slog.Info("[zk] registered node", "path", nodePath)
	return nil
}

// Topology implements Source.
func (m *ZKMembership) Topology(_ context.Context) (*Topology, error) {
	if err := m.waitConnected(10 * time.Second); err != nil {
		return nil, err
	}
	children, _, err := m.conn.Children(m.nodesPath())
	if err != nil {
		return nil, fmt.Errorf("zk children: %w", err)
	}
	return topologyFromMembers(children, m.replicas)
}

// RunWatch следит за изменениями <root>/nodes и обновляет топологию в Router.
func (m *ZKMembership) RunWatch(ctx context.Context, r *Router) {
	go func() {
		for {
			// читаем и подписываемся
			children, _, ch, err := m.conn.ChildrenW(m.nodesPath())
			if err != nil {
				slog.Warn("[zk] ChildrenW failed", "error", err)
				select {
				case <-time.After(2 * time.Second):
					continue
				case <-ctx.Done():
					return
				}
			}

			topo, err := topologyFromMembers(children, m.replicas)
			if err != nil {
				slog.Warn("[zk] skip topology update", "error", err)
			} else {
				r.UpdateTopology(topo)
			}

			select {
			case ev := <-ch:
				slog.Debug("[zk] event", "type", ev.Type.String(), "path", ev.Path)
			case <-ctx.Done():
				slog.Info("[zk] watch stopped")
				return
			}
		}
	}()
}

func (m *ZKMembership) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := m.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func topologyFromMembers(members []string, replicas int) (*Topology, error) {
	members = uniqueSorted(members)
	if len(members) == 0 {
		return nil, fmt.Errorf("zk: no registered nodes")
	}
	ring := NewHashRing(replicas)
	for _, n := range members {
		ring.AddNode(n)
	}
	return NewTopology(RingSlots(ring))
}
