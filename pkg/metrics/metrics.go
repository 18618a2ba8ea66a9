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

package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		PlanIterations, PlanOutcomeTotal,
		ToolCallTotal, ToolDuration,
		LLMTokensTotal, RateLimitWaitSeconds,
		SessionsActive, EventQueueDepth,
		ChatMessagesTotal,
	)
}

// PlanIterations 单次会话的规划循环迭代次数
var PlanIterations = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "trnachat_plan_iterations",
		Help:    "单次会话的规划循环迭代次数",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 6},
	},
)

// PlanOutcomeTotal 规划步骤结果总数（按结果分类）
var PlanOutcomeTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trnachat_plan_outcome_total",
		Help: "规划步骤结果总数",
	},
	[]string{"outcome"}, // directive | sentinel | noop | error
)

// ToolCallTotal 工具调用总数（按工具与状态）
var ToolCallTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trnachat_tool_call_total",
		Help: "工具调用总数",
	},
	[]string{"tool", "status"}, // status: success | error | cache_hit
)

// ToolDuration 工具调用耗时（秒）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "trnachat_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// LLMTokensTotal LLM 调用 token 数
var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trnachat_llm_tokens_total",
		Help: "LLM 调用 token 总数",
	},
	[]string{"direction"}, // input | output
)

// RateLimitWaitSeconds 限流等待时间（秒）
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "trnachat_rate_limit_wait_seconds",
		Help:    "限流等待时间（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind", "target"}, // kind: llm
)

// SessionsActive 当前活跃会话数（事件队列存量）
var SessionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "trnachat_sessions_active",
		Help: "当前活跃会话数",
	},
)

// EventQueueDepth 各会话事件队列深度
var EventQueueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "trnachat_event_queue_depth",
		Help: "各会话事件队列深度",
	},
	[]string{"session_id"},
)

// ChatMessagesTotal 接收的用户消息总数
var ChatMessagesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "trnachat_chat_messages_total",
		Help: "接收的用户消息总数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
