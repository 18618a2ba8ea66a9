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

package llm

import (
	"context"
	"time"

	"trna-chat/pkg/metrics"
)

// RateLimitedClient 包装任意 LLM Client，在真实调用前后执行限流控制。
// 用于 Planner、Responder 等直接持有 Client 的调用路径。
type RateLimitedClient struct {
	inner       Client
	rateLimiter *LLMRateLimiter
}

// NewRateLimitedClient 创建带限流的 LLM 客户端。rateLimiter 为 nil 时退化为直接调用。
func NewRateLimitedClient(inner Client, rateLimiter *LLMRateLimiter) *RateLimitedClient {
	return &RateLimitedClient{inner: inner, rateLimiter: rateLimiter}
}

// ChatWithContext 实现 Client.ChatWithContext，调用前后执行限流。
func (c *RateLimitedClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	release, err := c.acquire(ctx, messages, options)
	if err != nil {
		return "", err
	}
	defer release()

	result, err := c.inner.ChatWithContext(ctx, messages, options)
	if err != nil {
		return "", err
	}
	if c.rateLimiter != nil {
		// 用 MaxTokens 近似记录实际用量（未来可从 response 中取 usage）
		c.rateLimiter.RecordTokenUsage(c.inner.Provider(), options.MaxTokens)
	}
	return result, nil
}

// ChatStream 实现 Client.ChatStream，进入流之前执行限流；并发 slot 在流结束后释放。
func (c *RateLimitedClient) ChatStream(ctx context.Context, messages []Message, options GenerateOptions) (<-chan string, func() error, error) {
	release, err := c.acquire(ctx, messages, options)
	if err != nil {
		return nil, nil, err
	}

	fragments, errFn, err := c.inner.ChatStream(ctx, messages, options)
	if err != nil {
		release()
		return nil, nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer release()
		for f := range fragments {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errFn, nil
}

func (c *RateLimitedClient) acquire(ctx context.Context, messages []Message, options GenerateOptions) (func(), error) {
	if c.rateLimiter == nil {
		return func() {}, nil
	}
	provider := c.inner.Provider()
	estimatedTokens := estimateTokens(messagesText(messages), options.MaxTokens)
	start := time.Now()
	if err := c.rateLimiter.Wait(ctx, provider, estimatedTokens); err != nil {
		return nil, err
	}
	waited := time.Since(start)
	if waited > 100*time.Millisecond {
		metrics.RateLimitWaitSeconds.WithLabelValues("llm", provider).Observe(waited.Seconds())
	}
	return func() { c.rateLimiter.Release(provider) }, nil
}

// Model 实现 Client.Model。
func (c *RateLimitedClient) Model() string { return c.inner.Model() }

// Provider 实现 Client.Provider。
func (c *RateLimitedClient) Provider() string { return c.inner.Provider() }

// SetModel 实现 Client.SetModel。
func (c *RateLimitedClient) SetModel(model string) { c.inner.SetModel(model) }

// estimateTokens 粗略估算 tokens：文本长度/4 + MaxTokens 输出预算。
func estimateTokens(text string, maxTokens int) int {
	estimated := len(text) / 4
	if maxTokens > 0 {
		estimated += maxTokens
	}
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

// messagesText 将消息列表合并为单一字符串，用于 token 估算。
func messagesText(msgs []Message) string {
	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	buf := make([]byte, 0, total)
	for _, m := range msgs {
		buf = append(buf, m.Content...)
	}
	return string(buf)
}
