package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go-appfw/internal/core"
	"go-appfw/internal/logging"
)

// RedisAppStore keeps applications in Redis. Each application is a hash
// holding its JSON record and a version; a sorted set scored by a counter
// keeps install order.
type RedisAppStore struct {
	mu     sync.Mutex
	client *redis.Client
	logger zerolog.Logger
	prefix string
}

// NewRedisAppStore returns a store using keys under prefix.
func NewRedisAppStore(opts *redis.Options, prefix string, logger *zerolog.Logger) *RedisAppStore {
	return &RedisAppStore{
		client: redis.NewClient(opts),
		logger: logging.OrDefault(logger).With().Str("component", "appstore").Logger(),
		prefix: prefix,
	}
}

func (s *RedisAppStore) appKey(id string) string { return s.prefix + ":app:" + id }
func (s *RedisAppStore) indexKey() string       { return s.prefix + ":apps" }
func (s *RedisAppStore) seqKey() string         { return s.prefix + ":apps:seq" }

// ensureConnection pings Redis. Broken pool connections are redialed by the
// client itself, so s.client stays the same for the life of the store.
func (s *RedisAppStore) ensureConnection(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Redis unreachable")
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Put stores app and returns its new version.
func (s *RedisAppStore) Put(ctx context.Context, app core.AppInfo) (int64, error) {
	if app.AppID == "" {
		return 0, errors.New("relay: application without appid")
	}
	if err := s.ensureConnection(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(app)
	if err != nil {
		return 0, err
	}
	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate position: %w", err)
	}
	hkey := s.appKey(app.AppID)
	var ver int64
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, hkey, "version").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		ver = cur + 1
		pipe := tx.TxPipeline()
		pipe.HSet(ctx, hkey, "value", data, "version", ver)
		pipe.ZAddNX(ctx, s.indexKey(), redis.Z{Score: float64(seq), Member: app.AppID})
		_, err = pipe.Exec(ctx)
		return err
	}, hkey)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", app.AppID, err)
	}
	return ver, nil
}

// Get returns the application and its version.
func (s *RedisAppStore) Get(ctx context.Context, appID string) (core.AppInfo, int64, error) {
	if err := s.ensureConnection(ctx); err != nil {
		return core.AppInfo{}, 0, err
	}
	res, err := s.client.HGetAll(ctx, s.appKey(appID)).Result()
	if err != nil {
		return core.AppInfo{}, 0, err
	}
	if len(res) == 0 {
		return core.AppInfo{}, 0, ErrAppNotFound
	}
	var app core.AppInfo
	if err := json.Unmarshal([]byte(res["value"]), &app); err != nil {
		return core.AppInfo{}, 0, fmt.Errorf("decode %s: %w", appID, err)
	}
	ver, err := parseInt(res["version"])
	if err != nil {
		return core.AppInfo{}, 0, fmt.Errorf("version of %s: %w", appID, err)
	}
	return app, ver, nil
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// List returns every application in install order.
func (s *RedisAppStore) List(ctx context.Context) ([]core.AppInfo, error) {
	if err := s.ensureConnection(ctx); err != nil {
		return nil, err
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, s.appKey(id), "value")
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
	}
	apps := make([]core.AppInfo, 0, len(ids))
	for i, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil {
			s.logger.Warn().Err(err).Str("appid", ids[i]).Msg("indexed application missing")
			continue
		}
		var app core.AppInfo
		if err := json.Unmarshal([]byte(raw), &app); err != nil {
			s.logger.Warn().Err(err).Str("appid", ids[i]).Msg("undecodable application record")
			continue
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// Delete removes an application.
func (s *RedisAppStore) Delete(ctx context.Context, appID string) error {
	if err := s.ensureConnection(ctx); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.appKey(appID))
	pipe.ZRem(ctx, s.indexKey(), appID)
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the Redis connection.
func (s *RedisAppStore) Close() error {
	return s.client.Close()
}

var _ AppStore = (*RedisAppStore)(nil)
