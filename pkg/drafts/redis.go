package drafts

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nodeloom/nodeloom/pkg/models"
)

// Key of the hash that holds all drafts, one field per workflow id.
const redisDraftsKey = "nodeloom:drafts"

// RedisRepository stores drafts in a single Redis hash so multi-instance
// deployments share the recovery cache.
type RedisRepository struct {
	client *redis.Client
	key    string
}

// NewRedisRepository connects with the given URL (redis://host:port/db) and
// pings once so misconfiguration fails at startup, not on first save.
func NewRedisRepository(ctx context.Context, url string) (*RedisRepository, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, NewDraftError("NewRedisRepository", "", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, NewDraftError("NewRedisRepository", "", err)
	}

	return &RedisRepository{client: client, key: redisDraftsKey}, nil
}

// NewRedisRepositoryWithClient wraps an existing client, used by tests.
func NewRedisRepositoryWithClient(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client, key: redisDraftsKey}
}

// Save upserts the draft field for the workflow id.
func (r *RedisRepository) Save(ctx context.Context, id string, dto models.WorkflowDTO) error {
	dto.ID = id
	dto.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(dto)
	if err != nil {
		return NewDraftError("Save", id, err)
	}

	if err := r.client.HSet(ctx, r.key, id, data).Err(); err != nil {
		return NewDraftError("Save", id, err)
	}

	return nil
}

// Load returns nil when the field is absent.
func (r *RedisRepository) Load(ctx context.Context, id string) (*models.WorkflowDTO, error) {
	data, err := r.client.HGet(ctx, r.key, id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}

	if err != nil {
		return nil, NewDraftError("Load", id, err)
	}

	var dto models.WorkflowDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, NewDraftError("Load", id, err)
	}

	return &dto, nil
}

// Clear removes the draft field; an absent field is not an error.
func (r *RedisRepository) Clear(ctx context.Context, id string) error {
	if err := r.client.HDel(ctx, r.key, id).Err(); err != nil {
		return NewDraftError("Clear", id, err)
	}

	return nil
}

// List returns all stored draft ids in lexical order.
func (r *RedisRepository) List(ctx context.Context) ([]string, error) {
	ids, err := r.client.HKeys(ctx, r.key).Result()
	if err != nil {
		return nil, NewDraftError("List", "", err)
	}

	sort.Strings(ids)

	return ids, nil
}

// Close releases the underlying client.
func (r *RedisRepository) Close(_ context.Context) error {
	return r.client.Close()
}
