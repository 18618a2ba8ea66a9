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

package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"trna-chat/internal/agent/orchestrator"
	"trna-chat/internal/agent/planner"
	"trna-chat/internal/agent/responder"
	apihttp "trna-chat/internal/api/http"
	"trna-chat/internal/chat/event"
	"trna-chat/internal/model/llm"
	"trna-chat/internal/storage/cache"
	"trna-chat/internal/storage/history"
	"trna-chat/internal/tool/builtin"
	"trna-chat/internal/tool/registry"
	"trna-chat/pkg/config"
	"trna-chat/pkg/log"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App 装配好的 API 应用：存储、LLM、工具、orchestrator、HTTP 路由
type App struct {
	config       *config.Config
	logger       *log.Logger
	hist         history.Store
	cache        cache.Store
	sessions     *event.Registry
	router       *apihttp.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
	stopReaper   context.CancelFunc
}

// NewApp 装配应用（由 cmd/api 调用）
func NewApp(cfg *config.Config) (*App, error) {
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}

	ctx := context.Background()

	hist, err := history.NewStore(ctx, cfg.Storage.History)
	if err != nil {
		return nil, fmt.Errorf("初始化会话历史存储failed: %w", err)
	}

	cacheStore, err := cache.NewCache(ctx, cfg.Storage.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存failed: %w", err)
	}

	client, modelName, err := newLLMClient(cfg)
	if err != nil {
		return nil, err
	}

	tools := registry.New()
	if err := builtin.RegisterBuiltin(tools, cfg.Tools, cfg.Storage.Cache.ToolTTLOrDefault(), cacheStore, hist); err != nil {
		return nil, fmt.Errorf("注册工具failed: %w", err)
	}
	logger.Info("工具注册完成", "tools", tools.Names())

	orch := orchestrator.New(
		planner.New(client, planner.LoadPrompt(os.Getenv("PLANNING_PROMPT_FILE"), planner.DefaultPlanningPrompt)),
		responder.New(client, planner.LoadPrompt(os.Getenv("USER_FACING_PROMPT_FILE"), responder.DefaultUserFacingPrompt)),
		tools, hist, logger,
		orchestrator.Config{
			MaxIterations: cfg.Agent.MaxIterationsOrDefault(),
			HistoryWindow: cfg.Agent.HistoryWindowOrDefault(),
			ToolTimeout:   cfg.Agent.ToolTimeoutOrDefault(),
			Model:         modelName,
		},
	)

	sessions := event.NewRegistry(cfg.Events.IdleTTLOrDefault(), cfg.Events.ReapIntervalOrDefault())
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	go sessions.Run(reaperCtx)

	handler := apihttp.NewHandler(orch, hist, sessions, logger, modelName)
	router := apihttp.NewRouter(handler)

	return &App{
		config:     cfg,
		logger:     logger,
		hist:       hist,
		cache:      cacheStore,
		sessions:   sessions,
		router:     router,
		stopReaper: stopReaper,
	}, nil
}

// Run 启动 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	a.logger.Info("API 服务启动", "addr", addr)

	output := os.Stdout
	if a.config.Log.File != "" {
		f, err := os.OpenFile(a.config.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件failed: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	switch a.config.Log.Level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	if a.config.Monitoring.Tracing.Enable {
		serviceName := a.config.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "trna-chat-api"
		}
		exportEndpoint := a.config.Monitoring.Tracing.ExportEndpoint
		if exportEndpoint == "" {
			exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if a.config.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
			tracerOpt, tcfg := hertztracing.NewServerTracer()
			a.hertz = a.router.Build(addr, tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(tcfg))
			a.logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		} else {
			a.hertz = a.router.Build(addr)
		}
	} else {
		a.hertz = a.router.Build(addr)
	}

	return a.hertz.Run()
}

// Shutdown 优雅关闭
func (a *App) Shutdown(ctx context.Context) error {
	if a.stopReaper != nil {
		a.stopReaper()
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.hist != nil {
		_ = a.hist.Close()
	}
	return nil
}

// newLLMClient 从配置组装 LLM 客户端：defaults.llm 为 "provider/model" 或模型别名
func newLLMClient(cfg *config.Config) (llm.Client, string, error) {
	providerName := ""
	modelAlias := cfg.Model.Defaults.LLM
	if before, after, found := strings.Cut(modelAlias, "/"); found {
		providerName = before
		modelAlias = after
	}
	if providerName == "" {
		for name := range cfg.Model.LLM.Providers {
			providerName = name
			break
		}
	}
	pc, ok := cfg.Model.LLM.Providers[providerName]
	if !ok {
		return nil, "", fmt.Errorf("LLM provider %q 未配置", providerName)
	}

	modelName := modelAlias
	if info, ok := pc.Models[modelAlias]; ok && info.Name != "" {
		modelName = info.Name
	}

	inner, err := llm.NewClient(providerName, modelName, pc.APIKey, pc.BaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("初始化 LLM 客户端failed: %w", err)
	}
	limiter := llm.NewLLMRateLimiter(nil, nil)
	return llm.NewRateLimitedClient(inner, limiter), modelName, nil
}
