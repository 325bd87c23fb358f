package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agri-ai-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// TranslationCache 按 (设备, 历史记录 ID, 语言) 缓存翻译后的诊断结果
type TranslationCache interface {
	Get(ctx context.Context, deviceID, entryID, lang string) (*model.Diagnosis, bool, error)
	Set(ctx context.Context, deviceID, entryID, lang string, d model.Diagnosis) error
}

type redisTranslationCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewTranslationCache 创建基于 Redis 的翻译缓存，ttl 为 0 表示不过期。
func NewTranslationCache(redisClient *redis.Client, ttl time.Duration) TranslationCache {
	return &redisTranslationCache{redisClient: redisClient, ttl: ttl}
}

func translationKey(deviceID, entryID, lang string) string {
	return fmt.Sprintf("translation:%s:%s:%s", deviceID, entryID, lang)
}

func (c *redisTranslationCache) Get(ctx context.Context, deviceID, entryID, lang string) (*model.Diagnosis, bool, error) {
	jsonData, err := c.redisClient.Get(ctx, translationKey(deviceID, entryID, lang)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached translation: %w", err)
	}
	var d model.Diagnosis
	if err := json.Unmarshal([]byte(jsonData), &d); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached translation: %w", err)
	}
	return &d, true, nil
}

func (c *redisTranslationCache) Set(ctx context.Context, deviceID, entryID, lang string, d model.Diagnosis) error {
	jsonData, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal translation: %w", err)
	}
	if err := c.redisClient.Set(ctx, translationKey(deviceID, entryID, lang), jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache translation: %w", err)
	}
	return nil
}
