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
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"trna-chat/internal/tool"
)

const (
	// maxSequenceChars 序列与标注文本在响应中的最大长度
	maxSequenceChars = 2000
	// defaultMaxFeatures 响应中保留的 feature 数硬上限
	defaultMaxFeatures = 50
)

// DefaultTracks 未指定 tracks 时查询的默认轨道集
var DefaultTracks = []string{
	"knownGene",
	"encodeCcreCombined",
	"encode3RenEnhancerEpdNewPromoter",
	"refSeqComposite",
	"wgEncodeBroadHmm",
	"cpgIslandExt",
	"cons100way",
	"tRNAs",
	"Enhancers",
	"wgEncodeAwgDnaseUniform",
	"wgEncodeRegDnaseClustered",
	"wgEncodeRegTfbsClusteredV3",
	"wgEncodeMapability",
	"rmsk",
}

// feature 区域内单个注释条目
type feature struct {
	ID    string         `json:"id"`
	Start int            `json:"start"`
	End   int            `json:"end"`
	Name  string         `json:"name"`
	Track string         `json:"track"`
	Score any            `json:"score,omitempty"`
	Raw   map[string]any `json:"-"`
}

// GenomeBrowser 基因组浏览器工具：UCSC REST API 区域查询
type GenomeBrowser struct {
	baseURL     string
	maxFeatures int
	client      *resty.Client
}

// NewGenomeBrowser 创建 GenomeBrowser 工具。baseURL 为空时用 UCSC 公共端点；
// maxFeatures 夹在 (0, 50]，越界回落到硬上限 50。
func NewGenomeBrowser(baseURL string, maxFeatures int) *GenomeBrowser {
	if baseURL == "" {
		baseURL = "https://api.genome.ucsc.edu"
	}
	if maxFeatures <= 0 || maxFeatures > defaultMaxFeatures {
		maxFeatures = defaultMaxFeatures
	}
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetRetryCount(2)
	return &GenomeBrowser{baseURL: baseURL, maxFeatures: maxFeatures, client: client}
}

// Name 实现 tool.Tool
func (g *GenomeBrowser) Name() string { return "CRAP" }

// Description 实现 tool.Tool
func (g *GenomeBrowser) Description() string {
	return "Look up a genomic region in the UCSC genome browser: sequence, track features and browser link"
}

// Invoke 实现 tool.Tool
func (g *GenomeBrowser) Invoke(ctx context.Context, req tool.Request) tool.Response {
	switch req.Method {
	case "view_region":
		return g.viewRegion(ctx, req.Params)
	case "list_tracks":
		return g.listTracks(ctx, req.Params)
	default:
		return tool.Failure(tool.CodeInvalidMethod, "unknown method: %s", req.Method)
	}
}

func (g *GenomeBrowser) viewRegion(ctx context.Context, params map[string]any) tool.Response {
	genome, _ := stringParam(params, "genome")
	if genome == "" {
		genome = "hg19"
	}
	chrom, ok := stringParam(params, "chrom")
	if !ok {
		return tool.Failure(tool.CodeInvalidParam, "chrom parameter is required")
	}
	start, okStart := floatParam(params, "start")
	end, okEnd := floatParam(params, "end")
	if !okStart || !okEnd || int(end) <= int(start) || start < 0 {
		return tool.Failure(tool.CodeInvalidParam, "start/end must form a valid region")
	}

	tracks := trackList(params)

	sequence, err := g.fetchSequence(ctx, genome, chrom, int(start), int(end))
	if err != nil {
		return httpFailure(ctx, err)
	}

	all := make([]feature, 0, g.maxFeatures)
	nextID := 1
	for _, track := range tracks {
		data, err := g.fetchTrack(ctx, genome, track, chrom, int(start), int(end))
		if err != nil {
			// 单个轨道失败不终止整个区域查询
			continue
		}
		feats := extractFeatures(data, track, &nextID)
		all = append(all, feats...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].End < all[j].End
	})

	truncatedFeatures := len(all) > g.maxFeatures
	if truncatedFeatures {
		all = all[:g.maxFeatures]
	}

	annotated := annotateSequence(sequence, int(start), all)

	truncatedSeq := len(sequence) > maxSequenceChars
	if truncatedSeq {
		sequence = sequence[:maxSequenceChars]
	}
	if len(annotated) > maxSequenceChars {
		annotated = annotated[:maxSequenceChars]
	}

	featPayload := make([]map[string]any, len(all))
	for i, f := range all {
		featPayload[i] = map[string]any{
			"id":    f.ID,
			"start": f.Start,
			"end":   f.End,
			"name":  f.Name,
			"track": f.Track,
		}
		if f.Score != nil {
			featPayload[i]["score"] = f.Score
		}
	}

	return tool.Success(map[string]any{
		"region":             fmt.Sprintf("%s %s:%d-%d", genome, chrom, int(start), int(end)),
		"sequence":           sequence,
		"annotated_sequence": annotated,
		"features":           featPayload,
		"feature_count":      len(all),
		"tracks":             tracks,
		"browser_link":       browserLink(genome, chrom, int(start), int(end), tracks),
		"truncated":          truncatedSeq || truncatedFeatures,
	})
}

func (g *GenomeBrowser) listTracks(ctx context.Context, params map[string]any) tool.Response {
	genome, _ := stringParam(params, "genome")
	if genome == "" {
		genome = "hg19"
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("genome", genome).
		Get(g.baseURL + "/list/tracks")
	if err != nil {
		return httpFailure(ctx, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return tool.Failure(tool.CodeBackendError, "UCSC list/tracks returned status %d", resp.StatusCode())
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return tool.Failure(tool.CodeBackendError, "parse list/tracks response failed: %v", err)
	}
	var tracksData map[string]any
	if raw, ok := body[genome]; ok {
		if err := json.Unmarshal(raw, &tracksData); err != nil {
			return tool.Failure(tool.CodeBackendError, "parse tracks for genome %s failed: %v", genome, err)
		}
	}

	names := make([]string, 0, len(tracksData))
	for name := range tracksData {
		names = append(names, name)
	}
	sort.Strings(names)

	return tool.Success(map[string]any{
		"genome": genome,
		"tracks": names,
	})
}

func (g *GenomeBrowser) fetchSequence(ctx context.Context, genome, chrom string, start, end int) (string, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"genome": genome,
			"chrom":  chrom,
			"start":  strconv.Itoa(start),
			"end":    strconv.Itoa(end),
		}).
		Get(g.baseURL + "/getData/sequence")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("UCSC getData/sequence returned status %d", resp.StatusCode())
	}

	var body struct {
		DNA string `json:"dna"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("parse sequence response failed: %w", err)
	}
	if body.DNA == "" {
		return "", fmt.Errorf("no dna in sequence response")
	}
	return body.DNA, nil
}

func (g *GenomeBrowser) fetchTrack(ctx context.Context, genome, track, chrom string, start, end int) (map[string]json.RawMessage, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"genome": genome,
			"track":  track,
			"chrom":  chrom,
			"start":  strconv.Itoa(start),
			"end":    strconv.Itoa(end),
		}).
		Get(g.baseURL + "/getData/track")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("UCSC getData/track returned status %d", resp.StatusCode())
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, err
	}
	return body, nil
}

// extractFeatures 从轨道响应中提取 feature；字段名在不同轨道间不统一，按候选名逐个尝试
func extractFeatures(data map[string]json.RawMessage, track string, nextID *int) []feature {
	var items []map[string]any
	if raw, ok := data[track]; ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			var single map[string]any
			if json.Unmarshal(raw, &single) == nil {
				items = []map[string]any{single}
			}
		}
	}

	features := make([]feature, 0, len(items))
	for _, item := range items {
		start, okStart := firstInt(item, "chromStart", "txStart", "start", "begin")
		end, okEnd := firstInt(item, "chromEnd", "txEnd", "end", "stop")
		if !okStart || !okEnd {
			continue
		}
		name := "unnamed"
		for _, field := range []string{"name", "id", "gene", "transcript"} {
			if v, ok := item[field].(string); ok && v != "" {
				name = v
				break
			}
		}
		features = append(features, feature{
			ID:    fmt.Sprintf("id%05d", *nextID),
			Start: start,
			End:   end,
			Name:  name,
			Track: track,
			Score: item["score"],
			Raw:   item,
		})
		*nextID++
	}
	return features
}

func firstInt(item map[string]any, fields ...string) (int, bool) {
	for _, field := range fields {
		switch v := item[field].(type) {
		case float64:
			return int(v), true
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// annotateSequence 在序列中内联 feature 边界标记：
// [id-track:start-end:name| 开始，|id-track:start-end:name] 结束
func annotateSequence(sequence string, regionStart int, features []feature) string {
	type mark struct {
		pos   int
		close bool
		text  string
	}

	marks := make([]mark, 0, len(features)*2)
	for _, f := range features {
		relStart := f.Start - regionStart
		relEnd := f.End - regionStart
		if relStart < 0 {
			relStart = 0
		}
		if relEnd > len(sequence) {
			relEnd = len(sequence)
		}
		if relStart >= len(sequence) || relEnd <= relStart {
			continue
		}
		label := fmt.Sprintf("%s-%s:%d-%d:%s", f.ID, f.Track, f.Start, f.End, f.Name)
		marks = append(marks, mark{pos: relStart, text: "[" + label + "|"})
		marks = append(marks, mark{pos: relEnd, close: true, text: "|" + label + "]"})
	}
	sort.SliceStable(marks, func(i, j int) bool {
		if marks[i].pos != marks[j].pos {
			return marks[i].pos < marks[j].pos
		}
		// 同一位置先开后闭，与原始标注顺序一致
		return !marks[i].close && marks[j].close
	})

	var sb strings.Builder
	pos := 0
	for _, m := range marks {
		if m.pos > pos {
			sb.WriteString(sequence[pos:m.pos])
			pos = m.pos
		}
		sb.WriteString(m.text)
	}
	sb.WriteString(sequence[pos:])
	return sb.String()
}

// browserLink 拼 UCSC 浏览器跳转链接，每个轨道以 pack 模式展示
func browserLink(genome, chrom string, start, end int, tracks []string) string {
	params := []string{
		"db=" + genome,
		fmt.Sprintf("position=%s:%d-%d", chrom, start, end),
		"lastVirtModeType=default",
		"lastVirtModeExtraState=",
		"virtModeType=default",
		"virtMode=0",
		"nonVirtPosition=",
	}
	for _, track := range tracks {
		params = append(params, track+"=pack")
	}
	return "https://genome.ucsc.edu/cgi-bin/hgTracks?" + strings.Join(params, "&")
}

func trackList(params map[string]any) []string {
	raw, ok := params["tracks"]
	if !ok {
		return DefaultTracks
	}
	switch v := raw.(type) {
	case []string:
		if len(v) > 0 {
			return v
		}
	case []any:
		tracks := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				tracks = append(tracks, s)
			}
		}
		if len(tracks) > 0 {
			return tracks
		}
	case string:
		if v != "" {
			parts := strings.Split(v, ",")
			tracks := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					tracks = append(tracks, p)
				}
			}
			if len(tracks) > 0 {
				return tracks
			}
		}
	}
	return DefaultTracks
}

func httpFailure(ctx context.Context, err error) tool.Response {
	if ctx.Err() == context.DeadlineExceeded {
		return tool.Failure(tool.CodeTimeout, "request timed out")
	}
	return tool.Failure(tool.CodeBackendError, "request failed: %v", err)
}
