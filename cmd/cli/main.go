package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("trna-chat cli 0.1.0")
	case "health":
		runHealth()
	case "ask":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: trnachat ask <question> [chat_id]\n")
			os.Exit(1)
		}
		chatID := uuid.New().String()
		if len(args) > 1 {
			chatID = args[1]
		}
		runAsk(chatID, args[0])
	default:
		printUsage()
		os.Exit(1)
	}
}

func runHealth() {
	resp, err := newClient().R().Get("/api/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(resp.String())
}

func runAsk(chatID, question string) {
	if _, err := postMessage(chatID, question); err != nil {
		fmt.Fprintf(os.Stderr, "发送消息失败: %v\n", err)
		os.Exit(1)
	}
	if err := streamChat(chatID); err != nil {
		fmt.Fprintf(os.Stderr, "读取回复失败: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`trnachat - tRNA biology chat client

Usage:
  trnachat ask <question> [chat_id]   发送问题并流式打印回复
  trnachat health                     检查 API 服务状态
  trnachat version                    打印版本

Environment:
  TRNACHAT_API_URL   API 地址（默认 http://localhost:8080）`)
}
