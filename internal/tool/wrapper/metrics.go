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
	"sync"
	"time"

	"trna-chat/internal/tool"
	"trna-chat/pkg/metrics"
)

// ToolMetrics 单个工具的运行期统计快照
type ToolMetrics struct {
	Calls         int64         `json:"calls"`
	Successes     int64         `json:"successes"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
	LastError     string        `json:"last_error,omitempty"`
}

// SuccessRate 成功率，无调用时返回 0
func (m ToolMetrics) SuccessRate() float64 {
	if m.Calls == 0 {
		return 0
	}
	return float64(m.Successes) / float64(m.Calls)
}

// AvgDuration 平均耗时，无调用时返回 0
func (m ToolMetrics) AvgDuration() time.Duration {
	if m.Calls == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.Calls)
}

// Monitored 监控包装器：计数、计时、panic 收敛。
// 被包装工具的 panic 不会外泄，统一转为 INTERNAL_ERROR 失败响应。
type Monitored struct {
	inner tool.Tool

	mu    sync.Mutex
	stats ToolMetrics
}

// NewMonitored 创建监控包装器
func NewMonitored(inner tool.Tool) *Monitored {
	return &Monitored{inner: inner}
}

// Name 实现 tool.Tool
func (m *Monitored) Name() string { return m.inner.Name() }

// Description 实现 tool.Tool
func (m *Monitored) Description() string { return m.inner.Description() }

// Invoke 实现 tool.Tool：记录调用次数与耗时，再转发给内层工具
func (m *Monitored) Invoke(ctx context.Context, req tool.Request) (resp tool.Response) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			resp = tool.Failure(tool.CodeInternalError, "tool %s panicked: %v", m.inner.Name(), r)
		}
		m.record(resp, time.Since(start))
	}()

	resp = m.inner.Invoke(ctx, req)
	return resp
}

func (m *Monitored) record(resp tool.Response, elapsed time.Duration) {
	name := m.inner.Name()
	status := "success"
	if !resp.OK() {
		status = "error"
	}
	metrics.ToolCallTotal.WithLabelValues(name, status).Inc()
	metrics.ToolDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Calls++
	m.stats.TotalDuration += elapsed
	if resp.OK() {
		m.stats.Successes++
	} else {
		m.stats.Errors++
		if resp.Err != nil {
			m.stats.LastError = resp.Err.Message
		}
	}
}

// Metrics 返回当前统计快照
func (m *Monitored) Metrics() ToolMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
