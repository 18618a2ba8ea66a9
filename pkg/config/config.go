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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Events     EventsConfig     `mapstructure:"events"`
	Model      ModelConfig      `mapstructure:"model"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
	Timeout string `mapstructure:"timeout"`
}

// AgentConfig 规划循环与响应生成配置
type AgentConfig struct {
	MaxIterations int    `mapstructure:"max_iterations"` // 规划循环最大迭代次数，<=0 默认 5
	HistoryWindow int    `mapstructure:"history_window"` // 响应生成的历史窗口（消息条数），<=0 默认 6
	ToolTimeout   string `mapstructure:"tool_timeout"`   // 单次工具调用超时，如 "30s"，空则默认 30s
}

// EventsConfig 事件多路复用器配置
type EventsConfig struct {
	IdleTTL      string `mapstructure:"idle_ttl"`      // 闲置会话回收 TTL，如 "5m"，空则默认 5m
	ReapInterval string `mapstructure:"reap_interval"` // 回收扫描间隔，如 "60s"，空则默认 60s
}

// ModelConfig 模型配置
type ModelConfig struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

// LLMConfig LLM 模型配置
type LLMConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig 模型提供商配置
type ProviderConfig struct {
	APIKey  string               `mapstructure:"api_key"`
	BaseURL string               `mapstructure:"base_url"`
	Models  map[string]ModelInfo `mapstructure:"models"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name        string  `mapstructure:"name"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// DefaultsConfig 默认模型配置
type DefaultsConfig struct {
	LLM string `mapstructure:"llm"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	History HistoryConfig `mapstructure:"history"`
	Cache   CacheConfig   `mapstructure:"cache"`
}

// HistoryConfig 会话历史存储配置
type HistoryConfig struct {
	Type     string `mapstructure:"type"` // memory | postgres
	DSN      string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
	PoolSize int    `mapstructure:"pool_size"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	ToolTTL  int    `mapstructure:"tool_ttl"` // 工具结果缓存 TTL（秒），<=0 默认 3600
}

// ToolsConfig 工具配置（按工具名）
type ToolsConfig struct {
	TRNADB        TRNADBConfig        `mapstructure:"trnadb"`
	GenomeBrowser GenomeBrowserConfig `mapstructure:"genome_browser"`
	Stdio         StdioConfig         `mapstructure:"stdio"`
}

// TRNADBConfig tRNA 数据库工具配置
type TRNADBConfig struct {
	Path       string `mapstructure:"path"`        // SQLite 数据库路径
	MaxResults int    `mapstructure:"max_results"` // 单次查询结果上限，<=0 默认 10
}

// GenomeBrowserConfig 基因组浏览器工具配置
type GenomeBrowserConfig struct {
	BaseURL     string `mapstructure:"base_url"`     // UCSC REST API 地址，空则默认官方端点
	MaxFeatures int    `mapstructure:"max_features"` // 返回 feature 上限，<=0 默认 50
}

// StdioConfig 子进程工具配置
type StdioConfig struct {
	Commands map[string]string `mapstructure:"commands"` // 允许执行的命令白名单：名称 -> 命令行
	MaxLines int               `mapstructure:"max_lines"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix("TRNACHAT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	if err := replaceEnvVars(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadAPIConfig 按约定路径加载 API 配置；TRNACHAT_CONFIG 环境变量可覆盖
func LoadAPIConfig() (*Config, error) {
	path := os.Getenv("TRNACHAT_CONFIG")
	if path == "" {
		path = "configs/trnachat.yaml"
	}
	return LoadConfig(path)
}

// replaceEnvVars 替换配置中的环境变量（${VAR} 形式的 API Key）
func replaceEnvVars(config *Config) error {
	for provider, providerConfig := range config.Model.LLM.Providers {
		if strings.HasPrefix(providerConfig.APIKey, "$") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(providerConfig.APIKey, "}"), "${")
			if val := os.Getenv(envVar); val != "" {
				providerConfig.APIKey = val
				config.Model.LLM.Providers[provider] = providerConfig
			}
		}
	}
	return nil
}

// MaxIterationsOrDefault 规划循环迭代上限（默认 5）
func (c AgentConfig) MaxIterationsOrDefault() int {
	if c.MaxIterations <= 0 {
		return 5
	}
	return c.MaxIterations
}

// HistoryWindowOrDefault 响应历史窗口（默认 6 条）
func (c AgentConfig) HistoryWindowOrDefault() int {
	if c.HistoryWindow <= 0 {
		return 6
	}
	return c.HistoryWindow
}

// ToolTimeoutOrDefault 单次工具调用超时（默认 30s）
func (c AgentConfig) ToolTimeoutOrDefault() time.Duration {
	return parseDuration(c.ToolTimeout, 30*time.Second)
}

// ToolTTLOrDefault 工具结果缓存 TTL（默认 3600s）
func (c CacheConfig) ToolTTLOrDefault() time.Duration {
	if c.ToolTTL <= 0 {
		return time.Hour
	}
	return time.Duration(c.ToolTTL) * time.Second
}

// IdleTTLOrDefault 闲置会话回收 TTL（默认 5m）
func (c EventsConfig) IdleTTLOrDefault() time.Duration {
	return parseDuration(c.IdleTTL, 5*time.Minute)
}

// ReapIntervalOrDefault 回收扫描间隔（默认 60s）
func (c EventsConfig) ReapIntervalOrDefault() time.Duration {
	return parseDuration(c.ReapInterval, time.Minute)
}

// MaxResultsOrDefault 单次查询结果上限（默认 10）
func (c TRNADBConfig) MaxResultsOrDefault() int {
	if c.MaxResults <= 0 {
		return 10
	}
	return c.MaxResults
}

// MaxFeaturesOrDefault 区域查询返回的 feature 上限。
// 50 是硬上限，配置只能往下调。
func (c GenomeBrowserConfig) MaxFeaturesOrDefault() int {
	if c.MaxFeatures <= 0 || c.MaxFeatures > 50 {
		return 50
	}
	return c.MaxFeatures
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
