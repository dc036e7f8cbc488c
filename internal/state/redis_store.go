package state

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "AgentPlane/internal/errors"
)

// RedisStore 把组件状态放进 Redis，过期直接交给 Redis 的原生
// TTL，读路径无需再做过期过滤。
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// NewRedisStore 建立连接并验证可达性。
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "ping redis for state")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "agentplane:state"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) entryKey(component, key string) string {
	return s.prefix + ":" + component + ":" + key
}

func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	var ttl time.Duration
	if entry.ExpiresAt != 0 {
		ttl = time.Until(time.Unix(entry.ExpiresAt, 0))
		if ttl <= 0 {
			// 已经过期的写入等价于删除。
			return s.Delete(ctx, entry.ComponentName, entry.StateKey)
		}
	}
	// 覆盖写保留首次创建的身份，与内存、MySQL 驱动一致。
	existing, err := s.Get(ctx, entry.ComponentName, entry.StateKey)
	switch {
	case err == nil:
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	case errors.Is(err, ErrStateNotFound):
	default:
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeInvalidArgument, "encode state entry")
	}
	err = s.client.Set(ctx, s.entryKey(entry.ComponentName, entry.StateKey), data, ttl).Err()
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeStorageFailure, "set state entry")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, component, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.entryKey(component, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "get state entry")
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "decode state entry")
	}
	return &entry, nil
}

func (s *RedisStore) GetAll(ctx context.Context, component string) ([]*Entry, error) {
	pattern := s.prefix + ":" + component + ":*"
	var entries []*Entry
	iter := s.client.Scan(ctx, 0, pattern, 64).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "get state entry during scan")
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "decode state entry during scan")
		}
		entries = append(entries, &entry)
	}
	if err := iter.Err(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "scan state entries")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StateKey < entries[j].StateKey
	})
	return entries, nil
}

func (s *RedisStore) Delete(ctx context.Context, component, key string) error {
	if err := s.client.Del(ctx, s.entryKey(component, key)).Err(); err != nil {
		return xerrors.Wrap(err, xerrors.CodeStorageFailure, "delete state entry")
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
