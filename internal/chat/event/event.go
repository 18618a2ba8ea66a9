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
	"encoding/json"
	"time"
)

// 事件类型。消费者按 type 分支，顺序与产生顺序严格一致。
const (
	TypeStart        = "start"
	TypeToolStart    = "tool_start"
	TypeToolProgress = "tool_progress"
	TypeToolResult   = "tool_result"
	TypeSequenceData = "sequence_data"
	TypeToken        = "token"
	TypeError        = "error"
	TypeEnd          = "end"
)

// Event 会话事件。结构化事件带 Data，token 事件只带 Content。
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Content   string         `json:"content,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New 构造结构化事件，时间戳取当前时刻
func New(eventType string, data map[string]any) Event {
	return Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}
}

// NewToken 构造 token 事件
func NewToken(content string) Event {
	return Event{Type: TypeToken, Content: content, Timestamp: time.Now().UTC()}
}

// NewContent 构造带人类可读 content 的事件（tool_start / tool_progress）
func NewContent(eventType, content string) Event {
	return Event{Type: eventType, Content: content, Timestamp: time.Now().UTC()}
}

// NewError 构造 error 事件
func NewError(message string) Event {
	return New(TypeError, map[string]any{"error": message})
}

// Encode 序列化为传输用 JSON
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
