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

package responder

import (
	"context"
	"encoding/json"
	"fmt"

	"trna-chat/internal/model/llm"
	"trna-chat/internal/storage/history"
)

// Responder 回答 agent：基于会话历史与累积数据流式生成用户可见回复。
// 无内部状态，每次 Respond 独立。
type Responder struct {
	client llm.Client
	prompt string
}

// New 创建 Responder。prompt 为空时用默认回答 prompt。
func New(client llm.Client, prompt string) *Responder {
	if prompt == "" {
		prompt = DefaultUserFacingPrompt
	}
	return &Responder{client: client, prompt: prompt}
}

// Respond 流式生成回复。fragment 按生成顺序写入返回 channel，结束后关闭；
// 中途错误通过 errFn 暴露。accumulated 是规划循环收集的工具数据。
func (r *Responder) Respond(ctx context.Context, userInput string, hist []history.Message, accumulated []map[string]any) (<-chan string, func() error, error) {
	messages := make([]llm.Message, 0, len(hist)+2)
	messages = append(messages, llm.Message{Role: "system", Content: r.systemPrompt(accumulated)})
	for _, msg := range hist {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: userInput})

	fragments, errFn, err := r.client.ChatStream(ctx, messages,
		llm.GenerateOptions{Temperature: 0.7, MaxTokens: 1000})
	if err != nil {
		return nil, nil, fmt.Errorf("流式回答调用failed: %w", err)
	}
	return fragments, errFn, nil
}

func (r *Responder) systemPrompt(accumulated []map[string]any) string {
	if len(accumulated) == 0 {
		return r.prompt
	}
	data, err := json.Marshal(accumulated)
	if err != nil {
		return r.prompt
	}
	return r.prompt + "\n\n" + dataPreamble + string(data)
}
