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

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("TRNACHAT_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient() *resty.Client {
	return resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
}

// postMessage 发送一条用户消息，返回 message_id
func postMessage(chatID, content string) (string, error) {
	var out struct {
		MessageID string `json:"message_id"`
	}
	resp, err := newClient().R().
		SetBody(map[string]string{"content": content, "user_id": "cli"}).
		SetResult(&out).
		Post("/api/chats/" + chatID + "/messages")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusAccepted {
		return "", fmt.Errorf("POST message: %s", resp.String())
	}
	return out.MessageID, nil
}

type streamEvent struct {
	Type    string         `json:"type"`
	Data    map[string]any `json:"data"`
	Content string         `json:"content"`
}

// streamChat 消费 SSE 流并把事件渲染到终端，直到 end 事件
func streamChat(chatID string) error {
	// SSE 是长连接，不能用带超时的 resty client
	req, err := http.NewRequest(http.MethodGet, apiBaseURL()+"/api/chats/"+chatID+"/stream", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET stream: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "token":
			fmt.Print(ev.Content)
		case "tool_start", "tool_progress":
			fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Type, ev.Content)
		case "sequence_data":
			fmt.Fprintf(os.Stderr, "[sequence] %v (%v)\n", ev.Data["gene_symbol"], ev.Data["isotype"])
		case "error":
			fmt.Fprintf(os.Stderr, "[error] %v\n", ev.Data["error"])
		case "end":
			fmt.Println()
			return nil
		}
	}
	return scanner.Err()
}
