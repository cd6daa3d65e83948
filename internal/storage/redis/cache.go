package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mailledger/backend/internal/domain"
)

// Cache 消息记录的 Redis 读穿缓存。
//
// 消息创建后内容不可变，只需在删除时失效，不存在一致性窗口问题。
type Cache struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewCache 创建 Redis 缓存实例并测试连接。
func NewCache(addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

func messageKey(id domain.MessageID) string {
	return fmt.Sprintf("message:%d", uint64(id))
}

// CacheMessage 缓存消息记录。
func (c *Cache) CacheMessage(ctx context.Context, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, messageKey(msg.ID), data, c.ttl).Err()
}

// GetCachedMessage 读取缓存的消息，未命中返回 (nil, nil)。
func (c *Cache) GetCachedMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	data, err := c.client.Get(ctx, messageKey(id)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// InvalidateMessage 删除消息缓存，消息删除后调用。
func (c *Cache) InvalidateMessage(ctx context.Context, id domain.MessageID) error {
	return c.client.Del(ctx, messageKey(id)).Err()
}

// Health 检查 Redis 连接。
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接。
func (c *Cache) Close() error {
	return c.client.Close()
}
