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

package http

import (
	"bytes"
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"

	"trna-chat/internal/agent/orchestrator"
	"trna-chat/internal/chat/event"
	"trna-chat/internal/storage/history"
	"trna-chat/pkg/log"
	"trna-chat/pkg/metrics"
)

// Handler HTTP 处理器。每条用户消息启动一个 orchestrator goroutine，
// 事件通过会话队列传给 SSE 端点。
type Handler struct {
	orch     *orchestrator.Orchestrator
	hist     history.Store
	sessions *event.Registry
	logger   *log.Logger
	model    string
}

// NewHandler 创建 HTTP 处理器
func NewHandler(orch *orchestrator.Orchestrator, hist history.Store, sessions *event.Registry, logger *log.Logger, model string) *Handler {
	return &Handler{
		orch:     orch,
		hist:     hist,
		sessions: sessions,
		logger:   logger,
		model:    model,
	}
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "trna-chat",
		"timestamp": time.Now().Unix(),
	})
}

// CreateMessage 接收一条用户消息并启动处理
// POST /api/chats/:id/messages
func (h *Handler) CreateMessage(c context.Context, ctx *app.RequestContext) {
	chatID := ctx.Param("id")
	if chatID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "chat id is required"})
		return
	}

	var req struct {
		Content string `json:"content"`
		UserID  string `json:"user_id"`
	}
	if err := ctx.BindJSON(&req); err != nil || req.Content == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	messageID, err := h.hist.CreateMessage(c, chatID, "user", req.Content, "")
	if err != nil {
		hlog.CtxErrorf(c, "持久化 user 消息 failed: chat=%s err=%v", chatID, err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": "failed to persist message"})
		return
	}
	if messageID == "" {
		messageID = uuid.New().String()
	}

	queue := h.sessions.GetOrCreate(chatID)
	sess := orchestrator.Session{
		UserID:    req.UserID,
		ChatID:    chatID,
		MessageID: messageID,
	}

	// goroutine-per-message：处理结束时 orchestrator 关闭队列。
	// run context 与请求生命周期解耦，但挂在队列上：
	// 队列被关闭或回收时，进行中的 LLM/工具调用随之中止。
	runCtx, cancel := context.WithCancel(context.WithoutCancel(c))
	queue.BindCancel(cancel)
	go h.orch.Run(runCtx, sess, req.Content, queue)

	metrics.ChatMessagesTotal.Inc()
	ctx.JSON(consts.StatusAccepted, map[string]any{
		"status":     "accepted",
		"chat_id":    chatID,
		"message_id": messageID,
	})
}

// Metrics Prometheus 文本格式指标
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		hlog.CtxErrorf(c, "写入指标 failed: %v", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": "failed to gather metrics"})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
