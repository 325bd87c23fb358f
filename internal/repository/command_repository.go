package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agri-ai-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// ErrNoCommand 表示设备没有待消费的命令
var ErrNoCommand = errors.New("no pending command")

// CommandRepository 是按设备划分的先进先出命令队列，每条命令只会被取出一次。
type CommandRepository interface {
	Push(ctx context.Context, deviceID string, cmd model.Command) error
	Pop(ctx context.Context, deviceID string) (*model.Command, error)
}

type redisCommandRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewCommandRepository 创建基于 Redis 列表的命令队列，未消费的命令在 ttl 后过期。
func NewCommandRepository(redisClient *redis.Client, ttl time.Duration) CommandRepository {
	return &redisCommandRepository{redisClient: redisClient, ttl: ttl}
}

func commandKey(deviceID string) string {
	return fmt.Sprintf("commands:%s", deviceID)
}

func (r *redisCommandRepository) Push(ctx context.Context, deviceID string, cmd model.Command) error {
	jsonData, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	key := commandKey(deviceID)
	pipe := r.redisClient.TxPipeline()
	pipe.RPush(ctx, key, jsonData)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push command: %w", err)
	}
	return nil
}

// Pop 原子地取出并移除队首命令
func (r *redisCommandRepository) Pop(ctx context.Context, deviceID string) (*model.Command, error) {
	jsonData, err := r.redisClient.LPop(ctx, commandKey(deviceID)).Result()
	if err == redis.Nil {
		return nil, ErrNoCommand
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop command: %w", err)
	}
	var cmd model.Command
	if err := json.Unmarshal([]byte(jsonData), &cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command: %w", err)
	}
	return &cmd, nil
}
