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

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"trna-chat/internal/agent/planner"
	"trna-chat/internal/agent/responder"
	"trna-chat/internal/chat/event"
	"trna-chat/internal/model/llm"
	"trna-chat/internal/storage/history"
	"trna-chat/internal/tool"
	"trna-chat/internal/tool/registry"
	"trna-chat/pkg/log"
	"trna-chat/pkg/metrics"
)

// State 规划循环状态
type State string

const (
	StatePlanning      State = "PLANNING"
	StateExecutingTool State = "EXECUTING_TOOL"
	StateResponding    State = "RESPONDING"
	StateDone          State = "DONE"
	StateError         State = "ERROR"
)

// Session 会话上下文。一次请求生命周期内不可变，只做透传。
type Session struct {
	UserID    string
	ChatID    string
	MessageID string
}

// Config 循环参数
type Config struct {
	MaxIterations int           // 规划循环上限，<=0 默认 5
	HistoryWindow int           // 回答历史窗口（消息条数），<=0 默认 6
	ToolTimeout   time.Duration // 单次工具调用超时，<=0 默认 30s
	Model         string        // 持久化到 assistant 消息上的模型名
}

// Orchestrator 规划循环驱动器：规划 → 解析指令 → 执行工具 → 累积数据，
// 循环有界；完成后把累积数据交给 Responder 流式生成回复。
type Orchestrator struct {
	planner   *planner.Planner
	responder *responder.Responder
	tools     *registry.Registry
	hist      history.Store
	logger    *log.Logger
	cfg       Config
}

// New 创建 Orchestrator
func New(p *planner.Planner, r *responder.Responder, tools *registry.Registry, hist history.Store, logger *log.Logger, cfg Config) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	return &Orchestrator{
		planner:   p,
		responder: r,
		tools:     tools,
		hist:      hist,
		logger:    logger,
		cfg:       cfg,
	}
}

// runFrame 单次请求的循环内状态，全部留在栈上
type runFrame struct {
	state       State
	accumulated []map[string]any
	dataSummary string
	lastPlan    string
	lastFailed  string // 上一条执行失败的指令原文，重复出现时降级为 no-op
	iterations  int
}

// Run 处理一条用户消息。事件写入 queue，结束时关闭 queue。
// 设计为 goroutine-per-session：caller 启动后即可返回。
func (o *Orchestrator) Run(ctx context.Context, sess Session, userInput string, queue *event.Queue) {
	defer queue.Close()

	frame := &runFrame{state: StatePlanning}
	defer func() {
		metrics.PlanIterations.Observe(float64(frame.iterations))
	}()

	hist, err := o.hist.RecentHistory(ctx, sess.ChatID, o.cfg.HistoryWindow)
	if err != nil {
		o.logger.Warn("读取会话历史failed", "chat_id", sess.ChatID, "error", err)
		hist = nil
	}
	// 当前这条用户消息在调用前已入库，历史窗口里要去掉它
	if n := len(hist); n > 0 && hist[n-1].Role == "user" && hist[n-1].Content == userInput {
		hist = hist[:n-1]
	}

	var lastExchange []llm.Message
	if len(hist) >= 2 {
		for _, msg := range hist[len(hist)-2:] {
			lastExchange = append(lastExchange, llm.Message{Role: msg.Role, Content: msg.Content})
		}
	}

	for frame.iterations < o.cfg.MaxIterations {
		frame.state = StatePlanning
		planText, err := o.planner.NextStep(ctx, userInput, frame.dataSummary, frame.lastPlan, lastExchange)
		if err != nil {
			// 规划失败是致命的：单个 error 事件后终止
			metrics.PlanOutcomeTotal.WithLabelValues("error").Inc()
			o.fail(queue, frame, fmt.Sprintf("planning failed: %v", err))
			return
		}
		o.logger.Debug("规划输出", "chat_id", sess.ChatID, "iteration", frame.iterations, "plan", planText)

		// 哨兵与迭代上限都强制进入回答阶段，优先于任何指令
		if planner.HasSentinel(planText) {
			metrics.PlanOutcomeTotal.WithLabelValues("sentinel").Inc()
			break
		}
		if frame.iterations >= o.cfg.MaxIterations-1 {
			frame.iterations++
			break
		}

		o.executeStep(ctx, sess, planText, frame, queue)
		frame.lastPlan = planText
		frame.iterations++
	}

	o.respond(ctx, sess, userInput, hist, frame, queue)
}

// executeStep 解析并执行一条规划输出。所有失败都是非致命的。
func (o *Orchestrator) executeStep(ctx context.Context, sess Session, planText string, frame *runFrame, queue *event.Queue) {
	directive, ok := planner.ParseDirective(planText)
	if !ok {
		// 解析失败按构造即为 no-op，循环继续
		metrics.PlanOutcomeTotal.WithLabelValues("noop").Inc()
		o.logger.Debug("规划输出不是有效指令", "chat_id", sess.ChatID, "plan", planText)
		return
	}
	if directive.Raw == frame.lastFailed {
		// 同一条失败指令重复出现，不再重试
		metrics.PlanOutcomeTotal.WithLabelValues("noop").Inc()
		o.logger.Warn("重复的失败指令，跳过", "chat_id", sess.ChatID, "tool", directive.Tool)
		return
	}

	t, ok := o.tools.Get(directive.Tool)
	if !ok {
		metrics.PlanOutcomeTotal.WithLabelValues("noop").Inc()
		o.logger.Warn("指令引用未注册工具", "chat_id", sess.ChatID, "tool", directive.Tool)
		return
	}
	metrics.PlanOutcomeTotal.WithLabelValues("directive").Inc()

	frame.state = StateExecutingTool
	queue.Push(event.NewContent(event.TypeToolStart, toolStartMessage(directive.Tool)))

	directive.Params["context"] = map[string]any{
		"user_id":    sess.UserID,
		"chat_id":    sess.ChatID,
		"message_id": sess.MessageID,
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ToolTimeout)
	resp := t.Invoke(callCtx, tool.Request{Method: directive.Method, Params: directive.Params})
	cancel()

	if !resp.OK() {
		// 工具失败：一个 error 事件，循环继续
		frame.lastFailed = directive.Raw
		queue.Push(event.NewError(resp.Err.Message))
		o.logger.Warn("工具调用failed", "chat_id", sess.ChatID, "tool", directive.Tool,
			"code", resp.Err.Code, "error", resp.Err.Message)
		return
	}
	frame.lastFailed = ""

	o.foldResult(directive.Tool, resp, frame, queue)
}

// foldResult 把成功的工具结果折叠进累积数据，并重建数据摘要
func (o *Orchestrator) foldResult(toolName string, resp tool.Response, frame *runFrame, queue *event.Queue) {
	switch toolName {
	case "GET_TRNA":
		sequences := sequenceRows(resp.Data)
		queue.Push(event.NewContent(event.TypeToolProgress, fmt.Sprintf("Found %d sequences", len(sequences))))
		for _, seq := range sequences {
			queue.Push(event.New(event.TypeSequenceData, seq))
			frame.accumulated = append(frame.accumulated, seq)
		}
		summary := fmt.Sprintf("Retrieved %d sequences:", len(sequences))
		for _, seq := range sequences {
			summary += fmt.Sprintf("\n- %v (%v)", seq["gene_symbol"], seq["isotype"])
		}
		frame.dataSummary = summary

	case "CRAP":
		queue.Push(event.NewContent(event.TypeToolProgress, "Retrieved genomic data"))
		data := map[string]any{
			"sequence":           resp.Data["sequence"],
			"annotated_sequence": resp.Data["annotated_sequence"],
			"features":           resp.Data["features"],
			"tracks":             resp.Data["tracks"],
			"browser_link":       resp.Data["browser_link"],
		}
		frame.accumulated = append(frame.accumulated, data)
		seq, _ := resp.Data["sequence"].(string)
		frame.dataSummary = fmt.Sprintf("Retrieved genomic data:\n- Sequence length: %d\n- Features: %v\n- Region: %v",
			len(seq), resp.Data["feature_count"], resp.Data["region"])

	default:
		frame.accumulated = append(frame.accumulated, resp.Data)
		frame.dataSummary = fmt.Sprintf("Tool %s returned data: %v", toolName, resp.Data)
	}

	queue.Push(event.New(event.TypeToolResult, map[string]any{
		"tool":    toolName,
		"summary": frame.dataSummary,
	}))
}

// respond 回答阶段：流式生成、转发 token 事件、持久化最终消息
func (o *Orchestrator) respond(ctx context.Context, sess Session, userInput string, hist []history.Message, frame *runFrame, queue *event.Queue) {
	frame.state = StateResponding
	queue.Push(event.New(event.TypeStart, nil))

	fragments, errFn, err := o.responder.Respond(ctx, userInput, hist, frame.accumulated)
	if err != nil {
		o.fail(queue, frame, fmt.Sprintf("response generation failed: %v", err))
		return
	}

	var full []byte
	for f := range fragments {
		full = append(full, f...)
		metrics.LLMTokensTotal.WithLabelValues("output").Inc()
		queue.Push(event.NewToken(f))
	}

	streamErr := errFn()
	if streamErr != nil && len(full) == 0 {
		o.fail(queue, frame, fmt.Sprintf("response stream failed: %v", streamErr))
		return
	}

	// 流中断但已有片段：持久化部分回复再报告错误
	if _, err := o.hist.CreateMessage(ctx, sess.ChatID, "assistant", string(full), o.cfg.Model); err != nil {
		o.logger.Error("持久化 assistant 消息failed", "chat_id", sess.ChatID, "error", err)
	}
	if streamErr != nil {
		queue.Push(event.NewError(fmt.Sprintf("response stream interrupted: %v", streamErr)))
	}

	queue.Push(event.New(event.TypeEnd, nil))
	frame.state = StateDone
	o.logger.Info("会话处理完成", "chat_id", sess.ChatID,
		"iterations", frame.iterations, "tokens", len(full))
}

// fail 致命错误统一出口：恰好一个 error 事件，然后 end
func (o *Orchestrator) fail(queue *event.Queue, frame *runFrame, message string) {
	frame.state = StateError
	o.logger.Error("会话处理failed", "error", message)
	queue.Push(event.NewError(message))
	queue.Push(event.New(event.TypeEnd, nil))
}

func sequenceRows(data map[string]any) []map[string]any {
	switch rows := data["sequences"].(type) {
	case []map[string]any:
		return rows
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for _, r := range rows {
			if m, ok := r.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func toolStartMessage(toolName string) string {
	switch toolName {
	case "GET_TRNA":
		return "Searching for tRNA sequences..."
	case "CRAP":
		return "Surfing the genome browser..."
	case "STDIO_PIPE":
		return "Processing data..."
	default:
		return "Running " + toolName + "..."
	}
}
