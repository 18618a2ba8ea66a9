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
	"context"
	"fmt"
	"io"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/protocol/http1/resp"

	"trna-chat/internal/chat/event"
)

// StreamEvents 以 SSE 形式消费会话事件队列
// GET /api/chats/:id/stream
//
// 单消费者：同一会话同时只应有一个 stream 连接。
// 队列关闭（end 事件写完）后结束响应并回收会话。
func (h *Handler) StreamEvents(c context.Context, ctx *app.RequestContext) {
	chatID := ctx.Param("id")
	if chatID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "chat id is required"})
		return
	}

	queue, ok := h.sessions.Get(chatID)
	if !ok {
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": "no active session for chat"})
		return
	}
	// 所有出口统一回收：流正常结束、写失败（客户端断开）都走 Dispose，
	// 队列关闭同时取消该会话还在进行中的调用
	defer h.sessions.Dispose(chatID)

	ctx.Response.Header.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.SetStatusCode(consts.StatusOK)

	writer := resp.NewChunkedBodyWriter(&ctx.Response, ctx.GetWriter())
	ctx.Response.HijackWriter(writer)

	if err := writeEvents(c, writer, queue); err != nil {
		hlog.CtxWarnf(c, "SSE 写入 failed: chat=%s err=%v", chatID, err)
	}
}

// sseWriter SSE 帧的落地目标，由 hertz 的 chunked body writer 实现
type sseWriter interface {
	io.Writer
	Flush() error
}

// writeEvents 把队列事件逐条写成 SSE data 帧，直到 end 事件或队列关闭。
// 写失败（通常是客户端断开）返回错误，caller 负责回收会话。
func writeEvents(c context.Context, w sseWriter, queue *event.Queue) error {
	for {
		ev, ok := queue.Next(c)
		if !ok {
			return nil
		}
		payload, err := ev.Encode()
		if err != nil {
			hlog.CtxWarnf(c, "事件序列化 failed: type=%s err=%v", ev.Type, err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if ev.Type == event.TypeEnd {
			return nil
		}
	}
}
