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

package event

import (
	"context"
	"sync"
	"time"

	"trna-chat/pkg/metrics"
)

// Registry 会话队列注册表。显式注入到使用方，不做包级单例；
// 配合 Run 启动的回收循环清理闲置会话。
type Registry struct {
	mu     sync.Mutex
	queues map[string]*Queue

	idleTTL      time.Duration
	reapInterval time.Duration
}

// NewRegistry 创建注册表。idleTTL/reapInterval <=0 时取 5m/60s。
func NewRegistry(idleTTL, reapInterval time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = 5 * time.Minute
	}
	if reapInterval <= 0 {
		reapInterval = time.Minute
	}
	return &Registry{
		queues:       make(map[string]*Queue),
		idleTTL:      idleTTL,
		reapInterval: reapInterval,
	}
}

// GetOrCreate 获取会话队列，不存在则创建
func (r *Registry) GetOrCreate(sessionID string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[sessionID]
	if !ok {
		q = NewQueue(sessionID)
		r.queues[sessionID] = q
		metrics.SessionsActive.Set(float64(len(r.queues)))
	}
	return q
}

// Get 获取已有会话队列
func (r *Registry) Get(sessionID string) (*Queue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[sessionID]
	return q, ok
}

// Dispose 关闭并移除会话队列，幂等
func (r *Registry) Dispose(sessionID string) {
	r.mu.Lock()
	q, ok := r.queues[sessionID]
	if ok {
		delete(r.queues, sessionID)
		metrics.SessionsActive.Set(float64(len(r.queues)))
	}
	r.mu.Unlock()

	if ok {
		q.Close()
	}
}

// Len 当前会话数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}

// Run 启动闲置会话回收循环，阻塞到 ctx 取消。
// 原始实现只在正常结束时清理队列，异常终止的会话会泄漏，这里统一靠 TTL 兜底。
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reap(time.Now())
		}
	}
}

func (r *Registry) reap(now time.Time) {
	r.mu.Lock()
	var expired []*Queue
	for id, q := range r.queues {
		if now.Sub(q.LastActive()) > r.idleTTL {
			expired = append(expired, q)
			delete(r.queues, id)
		}
	}
	metrics.SessionsActive.Set(float64(len(r.queues)))
	r.mu.Unlock()

	for _, q := range expired {
		q.Close()
	}
}
