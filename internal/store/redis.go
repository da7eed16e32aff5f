package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/logline-motor/motor/internal/domain"
)

const (
	entityKeyPrefix   = "logline:entity:"
	contractKeyPrefix = "logline:contract:"
	ideaKeyPrefix     = "logline:idea:"
	timelineKeyPrefix = "logline:timeline:"
	timelineIndexKey  = "logline:timeline:index"
)

// RedisStore is a go-redis-backed collaborator for entities, contracts,
// ideas, and timeline events, using the key layout from SPEC_FULL.md §6.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr and returns a ready RedisStore.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Close closes the underlying client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client exposes the underlying client for health checks.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Ping verifies the Redis connection is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SaveEntity stores an entity under logline:entity:<id>.
func (s *RedisStore) SaveEntity(ctx context.Context, e domain.Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, entityKeyPrefix+e.LogicalID, data, 0).Err()
}

// GetEntity loads the entity stored under id.
func (s *RedisStore) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	var e domain.Entity
	data, err := s.client.Get(ctx, entityKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.Entity{}, fmt.Errorf("entity not found: %s", id)
		}
		return domain.Entity{}, err
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.Entity{}, err
	}
	return e, nil
}

// SaveContract stores a contract under logline:contract:<id>.
func (s *RedisStore) SaveContract(ctx context.Context, c domain.Contract) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, contractKeyPrefix+c.ID, data, 0).Err()
}

// GetContract loads the contract stored under id.
func (s *RedisStore) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	var c domain.Contract
	data, err := s.client.Get(ctx, contractKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.Contract{}, fmt.Errorf("contract not found: %s", id)
		}
		return domain.Contract{}, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Contract{}, err
	}
	return c, nil
}

// SaveIdea stores an idea under logline:idea:<id>.
func (s *RedisStore) SaveIdea(ctx context.Context, d domain.Idea) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, ideaKeyPrefix+d.ID, data, 0).Err()
}

// GetIdea loads the idea stored under id.
func (s *RedisStore) GetIdea(ctx context.Context, id string) (domain.Idea, error) {
	var d domain.Idea
	data, err := s.client.Get(ctx, ideaKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.Idea{}, fmt.Errorf("idea not found: %s", id)
		}
		return domain.Idea{}, err
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return domain.Idea{}, err
	}
	return d, nil
}

// AppendTimelineEvent stores a timeline event under logline:timeline:<seq>
// and records its id in the sorted-set index for range listing, writing
// both in one pipelined round trip.
func (s *RedisStore) AppendTimelineEvent(ctx context.Context, e domain.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	key := timelineKeyPrefix + strconv.FormatUint(e.ID, 10)
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.ZAdd(ctx, timelineIndexKey, &redis.Z{Score: float64(e.ID), Member: e.ID})
	_, err = pipe.Exec(ctx)
	return err
}

// ListTimelineEvents returns every persisted timeline event with id >
// afterID, in ascending id order, using the sorted-set index followed by
// a pipelined batch GET.
func (s *RedisStore) ListTimelineEvents(ctx context.Context, afterID uint64, limit int) ([]domain.Event, error) {
	ids, err := s.client.ZRangeByScore(ctx, timelineIndexKey, &redis.ZRangeBy{
		Min:    strconv.FormatUint(afterID+1, 10),
		Max:    "+inf",
		Offset: 0,
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, timelineKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		var e domain.Event
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
