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
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"strings"

	"trna-chat/internal/tool"
)

// defaultMaxLines 单次执行采集的 stdout 行数上限
const defaultMaxLines = 1000

// StdioPipe 子进程管道工具：执行配置白名单中的命令，
// 逐行采集 stdout。命令由配置给定，LLM 只能按名字选择，不能注入命令行。
type StdioPipe struct {
	commands map[string][]string // name -> argv
	maxLines int
}

// NewStdioPipe 创建 StdioPipe。commands 的 value 是空格分隔的命令行。
func NewStdioPipe(commands map[string]string, maxLines int) *StdioPipe {
	argvs := make(map[string][]string, len(commands))
	for name, line := range commands {
		if argv := strings.Fields(line); len(argv) > 0 {
			argvs[name] = argv
		}
	}
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	return &StdioPipe{commands: argvs, maxLines: maxLines}
}

// Name 实现 tool.Tool
func (s *StdioPipe) Name() string { return "STDIO_PIPE" }

// Description 实现 tool.Tool
func (s *StdioPipe) Description() string {
	return "Run a pre-configured processing command and collect its stdout line by line"
}

// Invoke 实现 tool.Tool
func (s *StdioPipe) Invoke(ctx context.Context, req tool.Request) tool.Response {
	switch req.Method {
	case "process_stdio":
		return s.processStdio(ctx, req.Params)
	case "get_capabilities":
		names := make([]string, 0, len(s.commands))
		for name := range s.commands {
			names = append(names, name)
		}
		return tool.Success(map[string]any{
			"capabilities": map[string]any{
				"process": map[string]any{
					"commands":     names,
					"input_types":  []string{"text"},
					"output_types": []string{"lines"},
				},
			},
		})
	default:
		return tool.Failure(tool.CodeInvalidMethod, "unknown method: %s", req.Method)
	}
}

func (s *StdioPipe) processStdio(ctx context.Context, params map[string]any) tool.Response {
	name, ok := stringParam(params, "command")
	if !ok {
		return tool.Failure(tool.CodeInvalidParam, "command parameter is required")
	}
	argv, ok := s.commands[name]
	if !ok {
		return tool.Failure(tool.CodeNotFound, "command not configured: %s", name)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if input, ok := stringParam(params, "input"); ok {
		cmd.Stdin = strings.NewReader(input)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return tool.Failure(tool.CodeInternalError, "open stdout pipe failed: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return tool.Failure(tool.CodeBackendError, "start command failed: %v", err)
	}

	// 每行要么是 JSON 对象，要么包装成 {"text": line}
	lines := make([]map[string]any, 0, 64)
	truncated := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(lines) >= s.maxLines {
			truncated = true
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			record = map[string]any{"text": line}
		}
		lines = append(lines, record)
	}
	scanErr := scanner.Err()

	if truncated {
		// 到达行数上限后子进程可能还在写，先杀掉再排空管道，否则 Wait 会卡住
		_ = cmd.Process.Kill()
		go func() { _, _ = io.Copy(io.Discard, stdout) }()
	}
	waitErr := cmd.Wait()
	if !truncated && ctx.Err() == context.DeadlineExceeded {
		return tool.Failure(tool.CodeTimeout, "command %s timed out", name)
	}
	if waitErr != nil && !truncated {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		return tool.Failure(tool.CodeBackendError, "command %s failed: %s", name, msg)
	}
	if scanErr != nil {
		return tool.Failure(tool.CodeBackendError, "read command output failed: %v", scanErr)
	}

	return tool.Success(map[string]any{
		"command":   name,
		"lines":     lines,
		"count":     len(lines),
		"truncated": truncated,
	})
}
