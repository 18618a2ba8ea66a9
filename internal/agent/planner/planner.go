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

package planner

import (
	"context"
	"fmt"
	"strings"

	"trna-chat/internal/model/llm"
)

// Planner 规划 agent。每次 NextStep 调用独立无状态，只依赖入参。
type Planner struct {
	client llm.Client
	prompt string
}

// New 创建 Planner。prompt 为空时用默认规划 prompt。
func New(client llm.Client, prompt string) *Planner {
	if prompt == "" {
		prompt = DefaultPlanningPrompt
	}
	return &Planner{client: client, prompt: prompt}
}

// NextStep 请求下一步规划，返回原始规划文本，解析由调用方做。
// lastExchange 是上一轮 user/assistant 消息对，可为空。
func (p *Planner) NextStep(ctx context.Context, userInput, dataSummary, lastPlan string, lastExchange []llm.Message) (string, error) {
	parts := []string{fmt.Sprintf("Original query: %s", userInput)}

	if len(lastExchange) > 0 {
		lines := make([]string, 0, len(lastExchange))
		for _, msg := range lastExchange {
			if strings.TrimSpace(msg.Content) != "" {
				lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
			}
		}
		if len(lines) > 0 {
			parts = append(parts, "Last chat exchange:\n"+strings.Join(lines, "\n"))
		}
	}

	if dataSummary != "" {
		parts = append(parts, "Here is the data resulting from your previous actions - "+
			"now you're on to the next step, or the plan is complete, depending on the data and goal. "+
			"Data collected so far:\n"+dataSummary)
	}

	if lastPlan != "" {
		parts = append(parts, "Last planning step:\n"+lastPlan)
	}

	content := p.prompt + "\n\n" + strings.Join(parts, "\n\n")

	response, err := p.client.ChatWithContext(ctx,
		[]llm.Message{{Role: "system", Content: content}},
		llm.GenerateOptions{Temperature: 0, MaxTokens: 1000})
	if err != nil {
		return "", fmt.Errorf("规划调用failed: %w", err)
	}
	return response, nil
}
