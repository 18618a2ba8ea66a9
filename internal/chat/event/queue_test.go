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

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := NewQueue("chat-1")
	for i := 0; i < 100; i++ {
		q.Push(NewToken(fmt.Sprintf("t%d", i)))
	}
	q.Close()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		e, ok := q.Next(ctx)
		if !ok {
			t.Fatalf("queue drained early at %d", i)
		}
		if e.Content != fmt.Sprintf("t%d", i) {
			t.Fatalf("order violated at %d: got %q", i, e.Content)
		}
	}
	if _, ok := q.Next(ctx); ok {
		t.Error("expected exhausted queue after close")
	}
}

func TestQueue_ConcurrentProducersNoLoss(t *testing.T) {
	q := NewQueue("chat-2")
	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(New(TypeToolProgress, map[string]any{"producer": p, "seq": i}))
			}
		}(p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		q.Close()
		close(done)
	}()

	// 每个生产者内部的顺序必须保持
	lastSeq := make(map[int]int)
	count := 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for e := range q.Drain(ctx) {
		count++
		p := e.Data["producer"].(int)
		seq := e.Data["seq"].(int)
		if last, ok := lastSeq[p]; ok && seq != last+1 {
			t.Fatalf("producer %d reordered: %d after %d", p, seq, last)
		}
		lastSeq[p] = seq
	}
	<-done
	if count != producers*perProducer {
		t.Errorf("event count: got %d, want %d", count, producers*perProducer)
	}
}

func TestQueue_CloseIsIdempotent(t *testing.T) {
	q := NewQueue("chat-3")
	q.Push(NewToken("x"))
	q.Close()
	q.Close()

	if e, ok := q.Next(context.Background()); !ok || e.Content != "x" {
		t.Error("events pushed before close must remain consumable")
	}

	// 关闭后的 Push 静默丢弃
	q.Push(NewToken("y"))
	if _, ok := q.Next(context.Background()); ok {
		t.Error("push after close must be dropped")
	}
}

func TestQueue_CloseTriggersBoundCancel(t *testing.T) {
	q := NewQueue("chat-5")
	ctx, cancel := context.WithCancel(context.Background())
	q.BindCancel(cancel)

	select {
	case <-ctx.Done():
		t.Fatal("cancel must not fire before Close")
	default:
	}

	q.Close()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("Close did not trigger bound cancel")
	}
	q.Close() // 幂等，不会 panic

	// 已关闭的队列上绑定：立即触发
	lateCtx, lateCancel := context.WithCancel(context.Background())
	q.BindCancel(lateCancel)
	select {
	case <-lateCtx.Done():
	default:
		t.Error("BindCancel on a closed queue must cancel immediately")
	}
}

func TestQueue_NextUnblocksOnPush(t *testing.T) {
	q := NewQueue("chat-4")
	got := make(chan Event, 1)
	go func() {
		e, _ := q.Next(context.Background())
		got <- e
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(NewError("boom"))

	select {
	case e := <-got:
		if e.Type != TypeError || e.Data["error"] != "boom" {
			t.Errorf("event: got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock on Push")
	}
}

func TestEvent_EncodeShape(t *testing.T) {
	raw, err := New(TypeSequenceData, map[string]any{"gene_symbol": "tRNA-Ala-AGC-1-1"}).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["type"] != TypeSequenceData {
		t.Errorf("type: got %v", decoded["type"])
	}
	if _, ok := decoded["data"].(map[string]any); !ok {
		t.Errorf("data: got %v", decoded["data"])
	}
	if _, ok := decoded["timestamp"].(string); !ok {
		t.Errorf("timestamp: got %v", decoded["timestamp"])
	}
	if _, ok := decoded["content"]; ok {
		t.Error("structured event must not carry content")
	}

	raw, _ = NewToken("Hel").Encode()
	decoded = nil
	_ = json.Unmarshal(raw, &decoded)
	if decoded["content"] != "Hel" {
		t.Errorf("token content: got %v", decoded["content"])
	}
	if _, ok := decoded["data"]; ok {
		t.Error("token event must not carry data")
	}
}

func TestRegistry_LifecycleAndReap(t *testing.T) {
	r := NewRegistry(50*time.Millisecond, 10*time.Millisecond)

	q1 := r.GetOrCreate("chat-a")
	if q2 := r.GetOrCreate("chat-a"); q1 != q2 {
		t.Error("GetOrCreate must return the same queue per session")
	}
	if _, ok := r.Get("chat-missing"); ok {
		t.Error("Get must miss for unknown session")
	}

	r.Dispose("chat-a")
	if _, ok := r.Get("chat-a"); ok {
		t.Error("disposed session must be removed")
	}
	r.Dispose("chat-a") // 幂等

	// 闲置回收
	r.GetOrCreate("chat-idle")
	r.reap(time.Now().Add(time.Minute))
	if r.Len() != 0 {
		t.Errorf("idle session not reaped, len=%d", r.Len())
	}
}
