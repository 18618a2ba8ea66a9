package cache

import (
	"context"
	"time"
)

// Store 工具结果缓存的存储接口。key 是 wrapper.Fingerprint 生成的
// 请求指纹，value 是完整的 tool.Response（JSON 序列化后落存储）。
type Store interface {
	// Set 写入缓存，expiration 为工具结果 TTL
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// Get 读出并反序列化到 dest，未命中返回包装过的 ErrCacheMiss
	Get(ctx context.Context, key string, dest interface{}) error
	// Delete 删除指定 key
	Delete(ctx context.Context, key string) error
	// Exists 检查 key 是否存在且未过期
	Exists(ctx context.Context, key string) (bool, error)
	// Clear 清空全部缓存条目
	Clear(ctx context.Context) error
	// Close 释放底层连接
	Close() error
}
