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

package builtin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"trna-chat/internal/storage/history"
	"trna-chat/internal/tool"
)

// defaultResultLimit 单次检索返回行数上限，任何请求都不能超过
const defaultResultLimit = 10

var validSpecies = map[string]string{
	"human": "Human (Homo sapiens)",
	"yeast": "Yeast (Saccharomyces cerevisiae)",
	"mouse": "Mouse (Mus musculus)",
}

// sortColumns 允许用于 ORDER BY 的列名白名单
var sortColumns = map[string]bool{
	"GtRNAdb_Gene_Symbol":     true,
	"Anticodon":               true,
	"Isotype_from_Anticodon":  true,
	"General_tRNA_Model_Score": true,
	"Isotype_Model_Score":     true,
	"Locus":                   true,
	"Features":                true,
}

// TRNADatabase tRNA 结构化检索工具：SQLite 按物种分表查询，
// 命中行同步持久化为 SequenceRecord。
type TRNADatabase struct {
	db         *sql.DB
	store      history.Store
	maxResults int
}

// NewTRNADatabase 打开 tRNA SQLite 数据库。maxResults<=0 时取默认上限。
func NewTRNADatabase(path string, maxResults int, store history.Store) (*TRNADatabase, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 tRNA 数据库failed: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接 tRNA 数据库failed: %w", err)
	}
	if maxResults <= 0 || maxResults > defaultResultLimit {
		maxResults = defaultResultLimit
	}
	return &TRNADatabase{db: db, store: store, maxResults: maxResults}, nil
}

// Name 实现 tool.Tool
func (t *TRNADatabase) Name() string { return "GET_TRNA" }

// Description 实现 tool.Tool
func (t *TRNADatabase) Description() string {
	return "Search the tRNA gene database (human, yeast, mouse) by isotype, anticodon and model scores"
}

// Close 关闭数据库连接
func (t *TRNADatabase) Close() error { return t.db.Close() }

// Invoke 实现 tool.Tool
func (t *TRNADatabase) Invoke(ctx context.Context, req tool.Request) tool.Response {
	switch req.Method {
	case "search_rna":
		return t.searchRNA(ctx, req.Params)
	case "get_sequence":
		return t.getSequence(ctx, req.Params)
	case "get_capabilities":
		return tool.Success(map[string]any{
			"capabilities": map[string]any{
				"search": map[string]any{
					"species": []string{"human", "yeast", "mouse"},
					"fields":  []string{"isotype", "anticodon", "score"},
				},
			},
		})
	default:
		return tool.Failure(tool.CodeInvalidMethod, "unknown method: %s", req.Method)
	}
}

func (t *TRNADatabase) searchRNA(ctx context.Context, params map[string]any) tool.Response {
	species := speciesParam(params)

	var (
		sb   strings.Builder
		args []any
	)
	fmt.Fprintf(&sb, "SELECT GtRNAdb_Gene_Symbol, Anticodon, Isotype_from_Anticodon, "+
		"General_tRNA_Model_Score, Isotype_Model_Score, Anticodon_and_Isotype_Model_Agreement, "+
		"Features, Locus, sequences, overview FROM %s WHERE 1=1", species)

	if term, ok := stringParam(params, "search_term"); ok {
		sb.WriteString(" AND (Isotype_from_Anticodon LIKE ? OR GtRNAdb_Gene_Symbol LIKE ?)")
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	if isotype, ok := stringParam(params, "isotype"); ok {
		sb.WriteString(" AND Isotype_from_Anticodon = ?")
		args = append(args, isotype)
	}
	if anticodon, ok := stringParam(params, "anticodon"); ok {
		sb.WriteString(" AND Anticodon = ?")
		args = append(args, anticodon)
	}

	// score 列在库中是 TEXT，比较前 CAST
	if v, ok := floatParam(params, "min_general_score"); ok {
		sb.WriteString(" AND CAST(General_tRNA_Model_Score AS REAL) >= ?")
		args = append(args, v)
	}
	if v, ok := floatParam(params, "max_general_score"); ok {
		sb.WriteString(" AND CAST(General_tRNA_Model_Score AS REAL) <= ?")
		args = append(args, v)
	}
	if v, ok := floatParam(params, "min_isotype_score"); ok {
		sb.WriteString(" AND CAST(Isotype_Model_Score AS REAL) >= ?")
		args = append(args, v)
	}
	if v, ok := floatParam(params, "max_isotype_score"); ok {
		sb.WriteString(" AND CAST(Isotype_Model_Score AS REAL) <= ?")
		args = append(args, v)
	}

	// overview 列是 JSON 文本，按字段精确匹配
	if field, ok := stringParam(params, "json_field"); ok {
		if value, ok := stringParam(params, "json_value"); ok {
			sb.WriteString(" AND json_valid(overview) AND json_extract(overview, ?) = ?")
			args = append(args, "$.\""+field+"\"", value)
		}
	}

	if sample, _ := stringParam(params, "sample"); strings.EqualFold(sample, "random") {
		sb.WriteString(" ORDER BY RANDOM()")
	} else if sortBy, ok := stringParam(params, "sort_by"); ok && sortColumns[sortBy] {
		fmt.Fprintf(&sb, " ORDER BY %s", sortBy)
		if order, _ := stringParam(params, "order"); strings.EqualFold(order, "desc") {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}

	sb.WriteString(" LIMIT ?")
	args = append(args, t.effectiveLimit(params))

	rows, err := t.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return queryFailure(ctx, err)
	}
	defer rows.Close()

	cc := callContext(params)
	sequences := make([]map[string]any, 0, defaultResultLimit)
	for rows.Next() {
		rec, err := scanSequence(rows)
		if err != nil {
			return tool.Failure(tool.CodeBackendError, "scan row failed: %v", err)
		}
		payload, err := t.persist(ctx, rec, cc)
		if err != nil {
			return tool.Failure(tool.CodeBackendError, "persist sequence failed: %v", err)
		}
		sequences = append(sequences, payload)
	}
	if err := rows.Err(); err != nil {
		return queryFailure(ctx, err)
	}

	return tool.Success(map[string]any{
		"sequences": sequences,
		"metadata": map[string]any{
			"count":   len(sequences),
			"species": species,
		},
	})
}

func (t *TRNADatabase) getSequence(ctx context.Context, params map[string]any) tool.Response {
	geneSymbol, ok := stringParam(params, "gene_symbol")
	if !ok {
		return tool.Failure(tool.CodeInvalidParam, "gene_symbol parameter is required")
	}
	species := speciesParam(params)

	query := fmt.Sprintf("SELECT GtRNAdb_Gene_Symbol, Anticodon, Isotype_from_Anticodon, "+
		"General_tRNA_Model_Score, Isotype_Model_Score, Anticodon_and_Isotype_Model_Agreement, "+
		"Features, Locus, sequences, overview FROM %s WHERE GtRNAdb_Gene_Symbol = ? LIMIT 1", species)

	rows, err := t.db.QueryContext(ctx, query, geneSymbol)
	if err != nil {
		return queryFailure(ctx, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return tool.Failure(tool.CodeNotFound, "no sequence found with gene symbol: %s", geneSymbol)
	}
	rec, err := scanSequence(rows)
	if err != nil {
		return tool.Failure(tool.CodeBackendError, "scan row failed: %v", err)
	}
	payload, err := t.persist(ctx, rec, callContext(params))
	if err != nil {
		return tool.Failure(tool.CodeBackendError, "persist sequence failed: %v", err)
	}
	return tool.Success(map[string]any{"sequence": payload})
}

// effectiveLimit 结果上限：请求值、配置值与默认上限三者取最小
func (t *TRNADatabase) effectiveLimit(params map[string]any) int {
	limit := t.maxResults
	if v, ok := floatParam(params, "limit"); ok && int(v) > 0 && int(v) < limit {
		limit = int(v)
	}
	return limit
}

// persist 写入 SequenceRecord 并返回事件用 payload
func (t *TRNADatabase) persist(ctx context.Context, rec *history.SequenceRecord, cc contextIDs) (map[string]any, error) {
	rec.ID = uuid.New().String()
	rec.UserID = cc.userID
	rec.ChatID = cc.chatID
	rec.MessageID = cc.messageID

	id, err := t.store.SaveSequence(ctx, rec)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":              id,
		"gene_symbol":     rec.GeneSymbol,
		"anticodon":       rec.Anticodon,
		"isotype":         rec.Isotype,
		"general_score":   rec.GeneralScore,
		"isotype_score":   rec.IsotypeScore,
		"model_agreement": rec.ModelAgreement,
		"features":        rec.Features,
		"locus":           rec.Locus,
		"sequences":       rec.Sequences,
		"overview":        rec.Overview,
	}, nil
}

func scanSequence(rows *sql.Rows) (*history.SequenceRecord, error) {
	var (
		rec                       history.SequenceRecord
		generalScore, isotypeScore string
		agreement                 string
		sequencesJSON, overviewJSON sql.NullString
	)
	if err := rows.Scan(&rec.GeneSymbol, &rec.Anticodon, &rec.Isotype,
		&generalScore, &isotypeScore, &agreement,
		&rec.Features, &rec.Locus, &sequencesJSON, &overviewJSON); err != nil {
		return nil, err
	}

	rec.GeneralScore, _ = strconv.ParseFloat(generalScore, 64)
	rec.IsotypeScore, _ = strconv.ParseFloat(isotypeScore, 64)
	rec.ModelAgreement = strings.EqualFold(agreement, "true")

	rec.Sequences = map[string]any{}
	if sequencesJSON.Valid && sequencesJSON.String != "" {
		_ = json.Unmarshal([]byte(sequencesJSON.String), &rec.Sequences)
	}
	rec.Overview = map[string]any{}
	if overviewJSON.Valid && overviewJSON.String != "" {
		_ = json.Unmarshal([]byte(overviewJSON.String), &rec.Overview)
	}
	return &rec, nil
}

func queryFailure(ctx context.Context, err error) tool.Response {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return tool.Failure(tool.CodeTimeout, "query timed out")
	}
	return tool.Failure(tool.CodeBackendError, "query failed: %v", err)
}

// contextIDs 调用链路上下文（由 orchestrator 通过 params["context"] 注入）
type contextIDs struct {
	userID, chatID, messageID string
}

func callContext(params map[string]any) contextIDs {
	var cc contextIDs
	raw, ok := params["context"].(map[string]any)
	if !ok {
		return cc
	}
	cc.userID, _ = raw["user_id"].(string)
	cc.chatID, _ = raw["chat_id"].(string)
	cc.messageID, _ = raw["message_id"].(string)
	return cc
}

func speciesParam(params map[string]any) string {
	s, _ := stringParam(params, "species")
	s = strings.ToLower(s)
	if _, ok := validSpecies[s]; !ok {
		return "human"
	}
	return s
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// floatParam 数值参数，兼容 float64/int/数字字符串
func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
