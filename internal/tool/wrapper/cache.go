// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wrapper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"trna-chat/internal/storage/cache"
	"trna-chat/internal/tool"
	"trna-chat/pkg/metrics"
)

// Cached 缓存包装器：以 (工具名, method, 规范化参数) 的指纹为 key，
// 只缓存成功响应；失败永远穿透到内层工具。
type Cached struct {
	inner tool.Tool
	store cache.Store
	ttl   time.Duration
}

// NewCached 创建缓存包装器。ttl<=0 时使用 1 小时默认值。
func NewCached(inner tool.Tool, store cache.Store, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cached{inner: inner, store: store, ttl: ttl}
}

// Wrap 组装标准包装链：缓存在外、监控在内。
// 缓存命中不触发内层监控计数，命中本身单独记入 cache_hit。
func Wrap(t tool.Tool, store cache.Store, ttl time.Duration) tool.Tool {
	return NewCached(NewMonitored(t), store, ttl)
}

// Name 实现 tool.Tool
func (c *Cached) Name() string { return c.inner.Name() }

// Description 实现 tool.Tool
func (c *Cached) Description() string { return c.inner.Description() }

// Invoke 实现 tool.Tool：先查缓存，未命中才调用内层工具
func (c *Cached) Invoke(ctx context.Context, req tool.Request) tool.Response {
	key := Fingerprint(c.inner.Name(), req)

	var cached tool.Response
	if err := c.store.Get(ctx, key, &cached); err == nil && cached.OK() {
		metrics.ToolCallTotal.WithLabelValues(c.inner.Name(), "cache_hit").Inc()
		return cached
	}

	resp := c.inner.Invoke(ctx, req)
	if resp.OK() {
		// 缓存写失败只影响性能不影响结果，忽略
		_ = c.store.Set(ctx, key, resp, c.ttl)
	}
	return resp
}

// Fingerprint 计算请求指纹：key 按字典序排序后拼接，保证参数顺序无关
func Fingerprint(toolName string, req tool.Request) string {
	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s", toolName, req.Method)
	for _, k := range keys {
		v, _ := json.Marshal(req.Params[k])
		fmt.Fprintf(h, "\x00%s=%s", k, v)
	}
	return "tool:" + hex.EncodeToString(h.Sum(nil))
}
