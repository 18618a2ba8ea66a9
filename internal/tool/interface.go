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

package tool

import (
	"context"
	"fmt"
)

// 标准错误码。所有 adapter 的失败响应都从这组常量中取值，
// 上层（orchestrator、event 层）只依赖这些码做分支。
const (
	CodeNotFound      = "NOT_FOUND"
	CodeInvalidParam  = "INVALID_PARAM"
	CodeBackendError  = "BACKEND_ERROR"
	CodeTimeout       = "TIMEOUT"
	CodeInvalidMethod = "INVALID_METHOD"
	CodeInternalError = "INTERNAL_ERROR"
)

// Request 工具调用请求：method + 扁平参数表
type Request struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// ToolError 失败响应的结构化错误
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Response 工具调用响应。成功与失败互斥：
// 成功时 Status=="success" 且 Err==nil；失败时 Status=="error" 且 Err!=nil。
type Response struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
	Err    *ToolError     `json:"error,omitempty"`
}

// OK 响应是否成功
func (r Response) OK() bool {
	return r.Status == "success"
}

// Success 构造成功响应
func Success(data map[string]any) Response {
	return Response{Status: "success", Data: data}
}

// Failure 构造失败响应
func Failure(code, format string, args ...any) Response {
	return Response{
		Status: "error",
		Err:    &ToolError{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}

// Tool 统一工具接口。Invoke 不返回 Go error：
// 一切失败都收敛为 Failure 响应，调用方只看 Response。
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, req Request) Response
}
