// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"agri-ai-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// DefaultHistoryLimit 是每个设备保留的历史记录上限
const DefaultHistoryLimit = 50

// ErrEntryNotFound 表示设备历史中不存在指定记录
var ErrEntryNotFound = errors.New("history entry not found")

// HistoryRepository 定义了扫描历史的操作接口。
// 每个设备的历史以单个 JSON 数组保存，最新在前，后写者覆盖先写者。
type HistoryRepository interface {
	List(ctx context.Context, deviceID string) ([]model.HistoryEntry, error)
	Get(ctx context.Context, deviceID, id string) (*model.HistoryEntry, error)
	Append(ctx context.Context, deviceID string, entry model.HistoryEntry) (model.HistoryEntry, error)
	Clear(ctx context.Context, deviceID string) error
}

type redisHistoryRepository struct {
	redisClient *redis.Client
	limit       int
}

// NewHistoryRepository 创建一个新的 HistoryRepository 实例。
// 上限固定为 DefaultHistoryLimit，limit 只能更小，越界时回到默认值。
func NewHistoryRepository(redisClient *redis.Client, limit int) HistoryRepository {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	return &redisHistoryRepository{redisClient: redisClient, limit: limit}
}

func historyKey(deviceID string) string {
	return fmt.Sprintf("scanHistory:%s", deviceID)
}

// List 返回设备的全部历史记录，最新在前。
func (r *redisHistoryRepository) List(ctx context.Context, deviceID string) ([]model.HistoryEntry, error) {
	jsonData, err := r.redisClient.Get(ctx, historyKey(deviceID)).Result()
	if err == redis.Nil {
		return []model.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}
	var entries []model.HistoryEntry
	if err := json.Unmarshal([]byte(jsonData), &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scan history: %w", err)
	}
	return entries, nil
}

func (r *redisHistoryRepository) Get(ctx context.Context, deviceID, id string) (*model.HistoryEntry, error) {
	entries, err := r.List(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, ErrEntryNotFound
}

// Append 把记录插入最前并截断到上限，ID 与已有记录冲突时追加序号后缀。
func (r *redisHistoryRepository) Append(ctx context.Context, deviceID string, entry model.HistoryEntry) (model.HistoryEntry, error) {
	entries, err := r.List(ctx, deviceID)
	if err != nil {
		return model.HistoryEntry{}, err
	}

	entry.ID = uniqueID(entries, entry.ID)
	entries = append([]model.HistoryEntry{entry}, entries...)
	if len(entries) > r.limit {
		entries = entries[:r.limit]
	}

	jsonData, err := json.Marshal(entries)
	if err != nil {
		return model.HistoryEntry{}, fmt.Errorf("failed to marshal scan history: %w", err)
	}
	if err := r.redisClient.Set(ctx, historyKey(deviceID), jsonData, 0).Err(); err != nil {
		return model.HistoryEntry{}, fmt.Errorf("failed to set scan history: %w", err)
	}
	return entry, nil
}

func (r *redisHistoryRepository) Clear(ctx context.Context, deviceID string) error {
	if err := r.redisClient.Del(ctx, historyKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("failed to clear scan history: %w", err)
	}
	return nil
}

func uniqueID(entries []model.HistoryEntry, id string) string {
	taken := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		taken[e.ID] = struct{}{}
	}
	if _, ok := taken[id]; !ok {
		return id
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
