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
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgStore PostgreSQL 实现：messages 表 + sequences 表
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 创建基于 PostgreSQL 的历史存储；dsn 为连接串，
// poolSize > 0 时覆盖连接池上限，否则用 pgxpool 默认值
func NewPostgresStore(ctx context.Context, dsn string, poolSize int) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if poolSize > 0 {
		config.MaxConns = int32(poolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &pgStore{pool: pool}, nil
}

// CreateMessage 追加消息
func (s *pgStore) CreateMessage(ctx context.Context, chatID, role, content, model string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, role, content, model, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, chatID, role, content, model, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecentHistory 返回最近 limit 条消息（按时间正序）
func (s *pgStore) RecentHistory(ctx context.Context, chatID string, limit int) ([]Message, error) {
	// 先倒序取最近 N 条，再翻转为正序
	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, role, content, COALESCE(model, ''), created_at
		 FROM messages WHERE chat_id = $1 ORDER BY created_at DESC LIMIT $2`,
		chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.Model, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SaveSequence 持久化序列记录；ON CONFLICT DO NOTHING 保证按 ID 幂等
func (s *pgStore) SaveSequence(ctx context.Context, rec *SequenceRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	seqJSON, err := json.Marshal(rec.Sequences)
	if err != nil {
		return "", err
	}
	overviewJSON, err := json.Marshal(rec.Overview)
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sequences
		 (id, user_id, chat_id, message_id, gene_symbol, anticodon, isotype,
		  general_score, isotype_score, model_agreement, features, locus,
		  sequences, overview, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, rec.ChatID, rec.MessageID, rec.GeneSymbol, rec.Anticodon,
		rec.Isotype, rec.GeneralScore, rec.IsotypeScore, rec.ModelAgreement,
		rec.Features, rec.Locus, seqJSON, overviewJSON, rec.CreatedAt)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Close 关闭连接池
func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}
