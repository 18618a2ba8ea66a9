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

package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"trna-chat/internal/agent/planner"
	"trna-chat/internal/agent/responder"
	"trna-chat/internal/chat/event"
	"trna-chat/internal/model/llm"
	"trna-chat/internal/storage/history"
	"trna-chat/internal/tool"
	"trna-chat/internal/tool/registry"
	"trna-chat/pkg/log"
)

// scriptedClient 按脚本回放规划输出；流式回答返回固定片段
type scriptedClient struct {
	planReplies []string
	planCalls   int
	fragments   []string
	planErr     error
}

func (c *scriptedClient) ChatWithContext(ctx context.Context, messages []llm.Message, options llm.GenerateOptions) (string, error) {
	if c.planErr != nil {
		return "", c.planErr
	}
	reply := planner.Sentinel
	if c.planCalls < len(c.planReplies) {
		reply = c.planReplies[c.planCalls]
	}
	c.planCalls++
	return reply, nil
}

func (c *scriptedClient) ChatStream(ctx context.Context, messages []llm.Message, options llm.GenerateOptions) (<-chan string, func() error, error) {
	out := make(chan string, len(c.fragments))
	for _, f := range c.fragments {
		out <- f
	}
	close(out)
	return out, func() error { return nil }, nil
}

func (c *scriptedClient) Model() string     { return "stub" }
func (c *scriptedClient) Provider() string  { return "stub" }
func (c *scriptedClient) SetModel(m string) {}

// recordingTool 记录调用并返回脚本化响应
type recordingTool struct {
	name  string
	calls int
	resps []tool.Response
}

func (t *recordingTool) Name() string        { return t.name }
func (t *recordingTool) Description() string { return "recording" }
func (t *recordingTool) Invoke(ctx context.Context, req tool.Request) tool.Response {
	resp := tool.Success(map[string]any{})
	if t.calls < len(t.resps) {
		resp = t.resps[t.calls]
	}
	t.calls++
	return resp
}

// blockingClient 规划调用挂起直到 ctx 取消，模拟进行中的 LLM 请求
type blockingClient struct {
	started chan struct{}
	once    sync.Once
}

func (c *blockingClient) ChatWithContext(ctx context.Context, messages []llm.Message, options llm.GenerateOptions) (string, error) {
	c.once.Do(func() { close(c.started) })
	<-ctx.Done()
	return "", ctx.Err()
}

func (c *blockingClient) ChatStream(ctx context.Context, messages []llm.Message, options llm.GenerateOptions) (<-chan string, func() error, error) {
	out := make(chan string)
	close(out)
	return out, func() error { return nil }, nil
}

func (c *blockingClient) Model() string     { return "stub" }
func (c *blockingClient) Provider() string  { return "stub" }
func (c *blockingClient) SetModel(m string) {}

func newTestOrchestrator(t *testing.T, client llm.Client, tools ...tool.Tool) (*Orchestrator, *history.MemoryStore) {
	t.Helper()
	reg := registry.New()
	for _, tl := range tools {
		reg.Register(tl)
	}
	hist := history.NewMemoryStore()
	logger, err := log.NewLogger(nil)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	o := New(
		planner.New(client, ""),
		responder.New(client, ""),
		reg, hist, logger,
		Config{MaxIterations: 5, HistoryWindow: 6, ToolTimeout: time.Second, Model: "stub"},
	)
	return o, hist
}

func collect(t *testing.T, q *event.Queue) []event.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var events []event.Event
	for e := range q.Drain(ctx) {
		events = append(events, e)
	}
	return events
}

func types(events []event.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func countType(events []event.Event, eventType string) int {
	n := 0
	for _, e := range events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func TestRun_GreetingSkipsTools(t *testing.T) {
	client := &scriptedClient{
		planReplies: []string{planner.Sentinel},
		fragments:   []string{"Hello! ", "Ask me about tRNAs."},
	}
	o, hist := newTestOrchestrator(t, client)

	q := event.NewQueue("chat-1")
	o.Run(context.Background(), Session{UserID: "u1", ChatID: "chat-1", MessageID: "m1"}, "hi", q)

	events := collect(t, q)
	got := types(events)
	want := []string{event.TypeStart, event.TypeToken, event.TypeToken, event.TypeEnd}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events: got %v, want %v", got, want)
	}
	if client.planCalls != 1 {
		t.Errorf("planning calls: got %d, want 1", client.planCalls)
	}

	msgs, _ := hist.RecentHistory(context.Background(), "chat-1", 10)
	if len(msgs) != 1 || msgs[0].Content != "Hello! Ask me about tRNAs." {
		t.Errorf("persisted message: got %+v", msgs)
	}
}

func TestRun_DirectiveExecutesToolAndEmitsSequenceData(t *testing.T) {
	rows := []map[string]any{
		{"gene_symbol": "tRNA-Ala-AGC-1-1", "isotype": "Ala"},
		{"gene_symbol": "tRNA-Ala-AGC-2-1", "isotype": "Ala"},
	}
	trna := &recordingTool{
		name:  "GET_TRNA",
		resps: []tool.Response{tool.Success(map[string]any{"sequences": rows})},
	}
	client := &scriptedClient{
		planReplies: []string{
			`GET_TRNA species:"human" Isotype_from_Anticodon:"Ala" limit:"2"`,
			planner.Sentinel,
		},
		fragments: []string{"Found two alanine tRNAs."},
	}
	o, hist := newTestOrchestrator(t, client, trna)

	q := event.NewQueue("chat-2")
	o.Run(context.Background(), Session{UserID: "u1", ChatID: "chat-2", MessageID: "m1"}, "show me alanine tRNAs", q)

	events := collect(t, q)
	if trna.calls != 1 {
		t.Errorf("tool calls: got %d", trna.calls)
	}
	if got := countType(events, event.TypeSequenceData); got != 2 {
		t.Errorf("sequence_data events: got %d, want 2", got)
	}
	if countType(events, event.TypeToolStart) != 1 || countType(events, event.TypeToolResult) != 1 {
		t.Errorf("tool lifecycle events: got %v", types(events))
	}
	// start 在所有工具事件之后，end 收尾
	if events[len(events)-1].Type != event.TypeEnd {
		t.Errorf("last event: got %q", events[len(events)-1].Type)
	}

	msgs, _ := hist.RecentHistory(context.Background(), "chat-2", 10)
	if len(msgs) != 1 {
		t.Fatalf("persisted messages: got %d", len(msgs))
	}
}

func TestRun_ToolFailureEmitsErrorAndContinues(t *testing.T) {
	trna := &recordingTool{
		name: "GET_TRNA",
		resps: []tool.Response{
			tool.Failure(tool.CodeBackendError, "db down"),
		},
	}
	client := &scriptedClient{
		planReplies: []string{
			`GET_TRNA species:"human" limit:"1"`,
			planner.Sentinel,
		},
		fragments: []string{"Sorry, the database is unavailable."},
	}
	o, _ := newTestOrchestrator(t, client, trna)

	q := event.NewQueue("chat-3")
	o.Run(context.Background(), Session{ChatID: "chat-3"}, "find tRNAs", q)

	events := collect(t, q)
	if got := countType(events, event.TypeError); got != 1 {
		t.Errorf("error events: got %d, want 1", got)
	}
	// 失败后仍进入回答阶段
	if countType(events, event.TypeStart) != 1 || countType(events, event.TypeEnd) != 1 {
		t.Errorf("missing start/end after failure: %v", types(events))
	}
	if client.planCalls != 2 {
		t.Errorf("planning calls after failure: got %d, want 2", client.planCalls)
	}
}

func TestRun_RepeatedFailingDirectiveNotRetried(t *testing.T) {
	directive := `GET_TRNA species:"human" limit:"1"`
	trna := &recordingTool{
		name: "GET_TRNA",
		resps: []tool.Response{
			tool.Failure(tool.CodeBackendError, "db down"),
			tool.Failure(tool.CodeBackendError, "db down"),
		},
	}
	client := &scriptedClient{
		planReplies: []string{directive, directive, planner.Sentinel},
		fragments:   []string{"No data available."},
	}
	o, _ := newTestOrchestrator(t, client, trna)

	q := event.NewQueue("chat-4")
	o.Run(context.Background(), Session{ChatID: "chat-4"}, "find tRNAs", q)
	collect(t, q)

	if trna.calls != 1 {
		t.Errorf("tool calls: got %d, want 1 (identical failing directive must not be retried)", trna.calls)
	}
}

func TestRun_UnparseablePlansBoundedByMaxIterations(t *testing.T) {
	client := &scriptedClient{
		planReplies: []string{
			"let me think about this",
			"I should probably search the database",
			"hmm",
			"searching now",
			"almost there",
			"this reply must never be requested",
		},
		fragments: []string{"I could not determine a plan."},
	}
	o, _ := newTestOrchestrator(t, client)

	q := event.NewQueue("chat-5")
	o.Run(context.Background(), Session{ChatID: "chat-5"}, "do something", q)
	events := collect(t, q)

	if client.planCalls != 5 {
		t.Errorf("planning calls: got %d, want exactly max (5)", client.planCalls)
	}
	// 强制进入回答阶段
	if countType(events, event.TypeStart) != 1 || events[len(events)-1].Type != event.TypeEnd {
		t.Errorf("forced responding missing: %v", types(events))
	}
}

func TestRun_PlanningFailureIsFatal(t *testing.T) {
	client := &scriptedClient{planErr: errors.New("llm unreachable")}
	o, hist := newTestOrchestrator(t, client)

	q := event.NewQueue("chat-6")
	o.Run(context.Background(), Session{ChatID: "chat-6"}, "hi", q)
	events := collect(t, q)

	got := types(events)
	want := []string{event.TypeError, event.TypeEnd}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events: got %v, want %v", got, want)
	}
	msgs, _ := hist.RecentHistory(context.Background(), "chat-6", 10)
	if len(msgs) != 0 {
		t.Errorf("no message must be persisted on fatal planning failure, got %d", len(msgs))
	}
}

func TestRun_QueueCloseAbortsInFlightPlanning(t *testing.T) {
	client := &blockingClient{started: make(chan struct{})}
	o, hist := newTestOrchestrator(t, client)

	q := event.NewQueue("chat-8")
	runCtx, cancel := context.WithCancel(context.Background())
	q.BindCancel(cancel)

	done := make(chan struct{})
	go func() {
		o.Run(runCtx, Session{ChatID: "chat-8"}, "hi", q)
		close(done)
	}()

	select {
	case <-client.started:
	case <-time.After(time.Second):
		t.Fatal("planning call never started")
	}

	// 会话回收走的就是队列 Close
	q.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not abort after queue close")
	}

	msgs, _ := hist.RecentHistory(context.Background(), "chat-8", 10)
	if len(msgs) != 0 {
		t.Errorf("aborted run must not persist messages, got %d", len(msgs))
	}
}

func TestRun_SentinelAfterDirectiveAlwaysResponds(t *testing.T) {
	trna := &recordingTool{name: "GET_TRNA", resps: []tool.Response{
		tool.Success(map[string]any{"sequences": []map[string]any{{"gene_symbol": "x", "isotype": "Ala"}}}),
	}}
	client := &scriptedClient{
		planReplies: []string{
			`GET_TRNA species:"human" limit:"1"`,
			"All done here. " + planner.Sentinel,
		},
		fragments: []string{"Here you go."},
	}
	o, _ := newTestOrchestrator(t, client, trna)

	q := event.NewQueue("chat-7")
	o.Run(context.Background(), Session{ChatID: "chat-7"}, "one tRNA please", q)
	events := collect(t, q)

	if countType(events, event.TypeStart) != 1 {
		t.Errorf("sentinel embedded in text must still trigger responding: %v", types(events))
	}
	if client.planCalls != 2 {
		t.Errorf("planning calls: got %d", client.planCalls)
	}
}
