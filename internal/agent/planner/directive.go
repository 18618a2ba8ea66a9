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
	"strconv"
	"strings"
)

// Sentinel 规划完成哨兵。出现在规划输出的任何位置都表示循环结束。
const Sentinel = "PLAN_COMPLETE=True"

// Directive 解析后的工具指令
type Directive struct {
	Tool   string         // 工具名（注册表 key）
	Method string         // 工具协议 method
	Params map[string]any // 已规范化的参数
	Raw    string         // 原始规划输出
}

// toolMethods 可识别的工具名与对应的默认 method。
// 规划输出是不可信的外部输入，工具名必须在这个闭集内。
var toolMethods = map[string]string{
	"GET_TRNA":   "search_rna",
	"CRAP":       "view_region",
	"STDIO_PIPE": "process_stdio",
}

// HasSentinel 规划输出是否包含完成哨兵
func HasSentinel(text string) bool {
	return strings.Contains(text, Sentinel)
}

// ParseDirective 解析规划输出为工具指令。
// 语法：<TOOL_NAME> key:"value" key:"value" ...（空白分隔）。
// 任何不符合语法的输入都返回 ok=false，由调用方按 no-op 处理。
func ParseDirective(text string) (*Directive, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return nil, false
	}
	method, known := toolMethods[fields[0]]
	if !known {
		return nil, false
	}

	d := &Directive{
		Tool:   fields[0],
		Method: method,
		Params: make(map[string]any),
		Raw:    text,
	}

	for _, token := range fields[1:] {
		key, value, ok := strings.Cut(token, ":")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch d.Tool {
		case "GET_TRNA":
			setTRNAParam(d.Params, key, value)
		case "CRAP":
			setRegionParam(d.Params, key, value)
		case "STDIO_PIPE":
			setStdioParam(d.Params, key, value)
		}
	}
	return d, true
}

// setTRNAParam GET_TRNA 参数：规划词表映射到 adapter 词表；
// 未知 key 丢弃，数值解析失败只作废该 key。
func setTRNAParam(params map[string]any, key, value string) {
	switch key {
	case "search_term":
		params["search_term"] = value
	case "Isotype_from_Anticodon":
		params["isotype"] = value
	case "Anticodon":
		params["anticodon"] = value
	case "species":
		params["species"] = value
	case "json_field":
		params["json_field"] = value
	case "json_value":
		params["json_value"] = value
	case "General_tRNA_Model_Score_min":
		setFloat(params, "min_general_score", value)
	case "General_tRNA_Model_Score_max":
		setFloat(params, "max_general_score", value)
	case "Isotype_Model_Score_min":
		setFloat(params, "min_isotype_score", value)
	case "Isotype_Model_Score_max":
		setFloat(params, "max_isotype_score", value)
	case "sort_by":
		params["sort_by"] = value
	case "order":
		params["order"] = strings.ToLower(value)
	case "limit":
		if n, err := strconv.Atoi(value); err == nil {
			params["limit"] = n
		}
	case "sample":
		params["sample"] = strings.ToLower(value)
	}
}

func setRegionParam(params map[string]any, key, value string) {
	switch key {
	case "genome", "chrom", "tracks":
		params[key] = value
	case "start", "end":
		if n, err := strconv.Atoi(value); err == nil {
			params[key] = n
		}
	}
}

func setStdioParam(params map[string]any, key, value string) {
	switch key {
	case "command", "input":
		params[key] = value
	}
}

func setFloat(params map[string]any, key, value string) {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		params[key] = f
	}
}
