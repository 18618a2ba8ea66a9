package llm

import (
	"context"
)

// Client LLM 客户端接口
type Client interface {
	// ChatWithContext 使用上下文聊天，返回完整文本
	ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error)
	// ChatStream 流式聊天；fragment 按生成顺序写入返回的 channel，结束后关闭。
	// 发生中途错误时 channel 关闭且 errFn 返回非 nil。
	ChatStream(ctx context.Context, messages []Message, options GenerateOptions) (<-chan string, func() error, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
	// SetModel 设置模型
	SetModel(model string)
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Message 聊天消息
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// NewClient 创建新的 LLM 客户端；baseURL 用于 OpenAI 兼容端点（如 LiteLLM 网关），空则用默认或环境变量
func NewClient(provider, model, apiKey, baseURL string) (Client, error) {
	switch provider {
	case "", "openai":
		return NewOpenAIClientWithBaseURL(model, apiKey, baseURL)
	default:
		// 其余 provider 均走 OpenAI 兼容协议
		return NewOpenAIClientWithBaseURL(model, apiKey, baseURL)
	}
}
