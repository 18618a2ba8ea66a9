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
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/route"
)

// Router HTTP 路由器（Hertz）
type Router struct {
	handler *Handler
}

// NewRouter 创建路由器
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Build 创建 Hertz server 并注册路由。流式端点需要关闭响应超时。
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	base := []config.Option{
		server.WithHostPorts(addr),
		server.WithStreamBody(true),
	}
	h := server.Default(append(base, opts...)...)
	r.Register(h.Engine)
	return h
}

// Register 在已有引擎上注册路由（测试用）
func (r *Router) Register(e *route.Engine) {
	api := e.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	chats := api.Group("/chats")
	chats.POST("/:id/messages", r.handler.CreateMessage)
	chats.GET("/:id/stream", r.handler.StreamEvents)

	e.GET("/metrics", r.handler.Metrics)
}
