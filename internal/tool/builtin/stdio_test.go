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
	"runtime"
	"testing"
	"time"

	"trna-chat/internal/tool"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("posix tools not available")
	}
}

func TestStdioPipe_TextLines(t *testing.T) {
	skipOnWindows(t)
	pipe := NewStdioPipe(map[string]string{"count": "seq 1 3"}, 0)

	resp := pipe.Invoke(context.Background(), tool.Request{
		Method: "process_stdio",
		Params: map[string]any{"command": "count"},
	})
	if !resp.OK() {
		t.Fatalf("process_stdio failed: %+v", resp.Err)
	}
	lines := resp.Data["lines"].([]map[string]any)
	if len(lines) != 3 {
		t.Fatalf("lines: got %d", len(lines))
	}
	if lines[0]["text"] != "1" || lines[2]["text"] != "3" {
		t.Errorf("line content: got %v", lines)
	}
}

func TestStdioPipe_JSONLines(t *testing.T) {
	skipOnWindows(t)
	pipe := NewStdioPipe(map[string]string{"emit": `echo {"gene":"tRNA-Ala","score":72.4}`}, 0)

	resp := pipe.Invoke(context.Background(), tool.Request{
		Method: "process_stdio",
		Params: map[string]any{"command": "emit"},
	})
	if !resp.OK() {
		t.Fatalf("process_stdio failed: %+v", resp.Err)
	}
	lines := resp.Data["lines"].([]map[string]any)
	if len(lines) != 1 {
		t.Fatalf("lines: got %d", len(lines))
	}
	if lines[0]["gene"] != "tRNA-Ala" || lines[0]["score"] != 72.4 {
		t.Errorf("json line: got %v", lines[0])
	}
}

func TestStdioPipe_LineCeiling(t *testing.T) {
	skipOnWindows(t)
	pipe := NewStdioPipe(map[string]string{"many": "seq 1 100"}, 10)

	resp := pipe.Invoke(context.Background(), tool.Request{
		Method: "process_stdio",
		Params: map[string]any{"command": "many"},
	})
	if !resp.OK() {
		t.Fatalf("process_stdio failed: %+v", resp.Err)
	}
	if got := resp.Data["count"]; got != 10 {
		t.Errorf("count: got %v, want 10", got)
	}
	if resp.Data["truncated"] != true {
		t.Error("expected truncated flag")
	}
}

// 输出远超管道缓冲的命令：截断后必须杀掉子进程立即返回，
// 而不是等子进程写满管道、被 deadline 杀死后报 TIMEOUT。
func TestStdioPipe_LineCeilingKillsChattyCommand(t *testing.T) {
	skipOnWindows(t)
	pipe := NewStdioPipe(map[string]string{"chatty": "seq 1 2000000"}, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	start := time.Now()
	resp := pipe.Invoke(ctx, tool.Request{
		Method: "process_stdio",
		Params: map[string]any{"command": "chatty"},
	})
	if !resp.OK() {
		t.Fatalf("process_stdio failed: %+v", resp.Err)
	}
	if got := resp.Data["count"]; got != 5 {
		t.Errorf("count: got %v, want 5", got)
	}
	if resp.Data["truncated"] != true {
		t.Error("expected truncated flag")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("truncated call took %v, child was not reaped", elapsed)
	}
}

func TestStdioPipe_UnconfiguredCommandRejected(t *testing.T) {
	pipe := NewStdioPipe(map[string]string{"count": "seq 1 3"}, 0)

	resp := pipe.Invoke(context.Background(), tool.Request{
		Method: "process_stdio",
		Params: map[string]any{"command": "rm -rf /"},
	})
	if resp.OK() || resp.Err.Code != tool.CodeNotFound {
		t.Errorf("unconfigured command: got %+v", resp)
	}

	resp = pipe.Invoke(context.Background(), tool.Request{Method: "process_stdio"})
	if resp.OK() || resp.Err.Code != tool.CodeInvalidParam {
		t.Errorf("missing command param: got %+v", resp)
	}
}

func TestStdioPipe_CommandFailure(t *testing.T) {
	skipOnWindows(t)
	pipe := NewStdioPipe(map[string]string{"fail": "false"}, 0)

	resp := pipe.Invoke(context.Background(), tool.Request{
		Method: "process_stdio",
		Params: map[string]any{"command": "fail"},
	})
	if resp.OK() || resp.Err.Code != tool.CodeBackendError {
		t.Errorf("failing command: got %+v", resp)
	}
}
