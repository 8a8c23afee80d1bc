package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"

	"keyscan/pkg/store"
	"keyscan/pkg/types"
)

type Options struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Password     string
}

// Store talks to real nodes, one client per node address. Clients are
// created on first use and live until Close.
type Store struct {
	opts    Options
	clients *xsync.MapOf[string, *redis.Client]
}

var _ store.Store = (*Store)(nil)

func New(opts Options) *Store {
	return &Store{
		opts:    opts,
		clients: xsync.NewMapOf[string, *redis.Client](),
	}
}

func (s *Store) client(addr string) *redis.Client {
	c, loaded := s.clients.LoadOrCompute(addr, func() *redis.Client {
		return redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     s.opts.Password,
			DialTimeout:  s.opts.DialTimeout,
			ReadTimeout:  s.opts.ReadTimeout,
			WriteTimeout: s.opts.WriteTimeout,
		})
	})
	if !loaded {
		slog.Debug("redis client created", "addr", addr)
	}
	return c
}

func (s *Store) Close() error {
	var firstErr error
	s.clients.Range(func(addr string, c *redis.Client) bool {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", addr, err)
		}
		s.clients.Delete(addr)
		return true
	})
	return firstErr
}

func (s *Store) ScanStep(ctx context.Context, target types.Partition, cursor types.Cursor, pattern string, hint int) (types.Cursor, []types.Key, error) {
	keys, next, err := s.client(target.Addr).Scan(ctx, uint64(cursor), pattern, int64(hint)).Result()
	if err != nil {
		return 0, nil, classify(target.Addr, "scan", err)
	}
	return types.Cursor(next), keys, nil
}

func (s *Store) FullEnumerate(ctx context.Context, target types.Partition, pattern string) ([]types.Key, error) {
	keys, err := s.client(target.Addr).Keys(ctx, pattern).Result()
	if err != nil {
		return nil, classify(target.Addr, "keys", err)
	}
	return keys, nil
}

func (s *Store) PipelineExecute(ctx context.Context, target types.Partition, ops []store.Operation) ([]store.Result, error) {
	results := make([]store.Result, len(ops))
	cmds := make([]redis.Cmder, len(ops))

	pipe := s.client(target.Addr).Pipeline()
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			results[i].Err = err
			continue
		}
		switch op.Kind {
		case store.OpSet:
			cmds[i] = pipe.Set(ctx, op.Key, op.Value, 0)
		case store.OpDelete:
			cmds[i] = pipe.Del(ctx, op.Key)
		case store.OpIncrBy:
			cmds[i] = pipe.IncrBy(ctx, op.Key, op.Delta)
		case store.OpHIncrBy:
			cmds[i] = pipe.HIncrBy(ctx, op.Key, op.Field, op.Delta)
		case store.OpGet:
			cmds[i] = pipe.Get(ctx, op.Key)
		case store.OpHGetAll:
			cmds[i] = pipe.HGetAll(ctx, op.Key)
		}
	}

	if pipe.Len() > 0 {
		if _, err := pipe.Exec(ctx); err != nil && isTransport(err) {
			return nil, classify(target.Addr, "pipeline", err)
		}
	}

	for i, cmd := range cmds {
		if cmd == nil {
			continue
		}
		results[i] = resultOf(cmd)
	}
	return results, nil
}

func resultOf(cmd redis.Cmder) store.Result {
	var res store.Result
	switch c := cmd.(type) {
	case *redis.StatusCmd:
		res.Err = commandError(c.Err())
	case *redis.IntCmd:
		res.Int, res.Err = c.Val(), commandError(c.Err())
	case *redis.StringCmd:
		switch err := c.Err(); err {
		case nil:
			res.Str, res.Found = c.Val(), true
		case redis.Nil:
		default:
			res.Err = commandError(err)
		}
	case *redis.MapStringStringCmd:
		res.Fields, res.Err = c.Val(), commandError(c.Err())
		res.Found = res.Err == nil && len(res.Fields) > 0
		if res.Fields == nil {
			res.Fields = map[string]string{}
		}
	}
	return res
}

func (s *Store) QueryStats(ctx context.Context, target types.Partition, op types.OpClass) (types.Counters, error) {
	info, err := s.client(target.Addr).Info(ctx, "commandstats").Result()
	if err != nil {
		return types.Counters{}, classify(target.Addr, "info", err)
	}
	return ParseCommandStats(info)[op], nil
}

func (s *Store) ResetStats(ctx context.Context, target types.Partition) error {
	if err := s.client(target.Addr).ConfigResetStat(ctx).Err(); err != nil {
		return classify(target.Addr, "config resetstat", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context, target types.Partition) error {
	if err := s.client(target.Addr).Ping(ctx).Err(); err != nil {
		return classify(target.Addr, "ping", err)
	}
	return nil
}
