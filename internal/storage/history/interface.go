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

package history

import (
	"context"
	"time"
)

// Store 会话历史与序列记录存储接口
type Store interface {
	// CreateMessage 追加一条消息，返回生成的消息 ID
	CreateMessage(ctx context.Context, chatID, role, content, model string) (string, error)
	// RecentHistory 返回该会话最近 limit 条消息（按时间正序）
	RecentHistory(ctx context.Context, chatID string, limit int) ([]Message, error)
	// SaveSequence 持久化一条工具返回的序列记录，返回生成的 ID；同一 ID 重复写入为幂等
	SaveSequence(ctx context.Context, rec *SequenceRecord) (string, error)
	// Close 关闭存储连接
	Close() error
}

// Message 单条会话消息
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"` // user | assistant
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SequenceRecord 工具检索到的 tRNA 序列记录（与消息关联）
type SequenceRecord struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	ChatID         string         `json:"chat_id"`
	MessageID      string         `json:"message_id"`
	GeneSymbol     string         `json:"gene_symbol"`
	Anticodon      string         `json:"anticodon"`
	Isotype        string         `json:"isotype"`
	GeneralScore   float64        `json:"general_score"`
	IsotypeScore   float64        `json:"isotype_score"`
	ModelAgreement bool           `json:"model_agreement"`
	Features       string         `json:"features"`
	Locus          string         `json:"locus"`
	Sequences      map[string]any `json:"sequences"`
	Overview       map[string]any `json:"overview"`
	CreatedAt      time.Time      `json:"created_at"`
}
