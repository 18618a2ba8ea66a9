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
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore 内存实现，供测试与单机开发使用
type MemoryStore struct {
	mu        sync.RWMutex
	messages  map[string][]Message       // chatID -> 按写入顺序
	sequences map[string]*SequenceRecord // id -> record
}

// NewMemoryStore 创建内存历史存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:  make(map[string][]Message),
		sequences: make(map[string]*SequenceRecord),
	}
}

// CreateMessage 追加消息
func (s *MemoryStore) CreateMessage(ctx context.Context, chatID, role, content, model string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
	s.messages[chatID] = append(s.messages[chatID], msg)
	return msg.ID, nil
}

// RecentHistory 返回最近 limit 条消息（正序）
func (s *MemoryStore) RecentHistory(ctx context.Context, chatID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// SaveSequence 持久化序列记录；同一 ID 重复写入为幂等覆盖
func (s *MemoryStore) SaveSequence(ctx context.Context, rec *SequenceRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	cp := *rec
	s.sequences[rec.ID] = &cp
	return rec.ID, nil
}

// SequenceCount 返回已持久化的序列记录数（测试辅助）
func (s *MemoryStore) SequenceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sequences)
}

// Close 关闭存储
func (s *MemoryStore) Close() error {
	return nil
}
