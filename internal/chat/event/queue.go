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
	"sync"
	"time"

	"trna-chat/pkg/metrics"
)

// Queue 单会话事件队列。生产端永不阻塞、永不丢弃、永不乱序；
// 消费端单读者，按 Push 顺序取出。
type Queue struct {
	sessionID string

	mu         sync.Mutex
	events     []Event
	closed     bool
	lastActive time.Time
	cancel     context.CancelFunc

	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewQueue 创建会话队列
func NewQueue(sessionID string) *Queue {
	return &Queue{
		sessionID:  sessionID,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		lastActive: time.Now(),
	}
}

// Push 追加事件。队列已关闭时静默丢弃（会话已结束）。
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.events = append(q.events, e)
	q.lastActive = time.Now()
	depth := len(q.events)
	q.mu.Unlock()

	metrics.EventQueueDepth.WithLabelValues(q.sessionID).Set(float64(depth))

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Next 取下一个事件，队列为空时阻塞。
// 队列关闭且剩余事件消费完后返回 ok=false。
func (q *Queue) Next(ctx context.Context) (Event, bool) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			e := q.events[0]
			q.events = q.events[1:]
			q.lastActive = time.Now()
			depth := len(q.events)
			q.mu.Unlock()
			metrics.EventQueueDepth.WithLabelValues(q.sessionID).Set(float64(depth))
			return e, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Event{}, false
		}
		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return Event{}, false
		}
	}
}

// Drain 以 channel 形式消费队列，队列关闭且排空后 channel 关闭。
// 只允许一个消费者。
func (q *Queue) Drain(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			e, ok := q.Next(ctx)
			if !ok {
				return
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// BindCancel 把正在处理这个会话的 run context 的取消函数挂到队列上，
// 队列关闭（正常结束、连接断开或闲置回收）时触发，中止未完成的 LLM/工具调用。
// 队列已关闭时立即触发。
func (q *Queue) BindCancel(cancel context.CancelFunc) {
	q.mu.Lock()
	closed := q.closed
	if !closed {
		q.cancel = cancel
	}
	q.mu.Unlock()

	if closed {
		cancel()
	}
}

// Close 关闭队列，幂等。已入队事件仍可被消费完；绑定的取消函数被触发。
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		cancel := q.cancel
		q.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		close(q.done)
		metrics.EventQueueDepth.DeleteLabelValues(q.sessionID)
	})
}

// LastActive 最近一次 Push/Next 的时间，供闲置回收使用
func (q *Queue) LastActive() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastActive
}

// Len 当前积压事件数
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
