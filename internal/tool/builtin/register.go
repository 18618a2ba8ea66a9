package builtin

import (
	"time"

	"trna-chat/internal/storage/cache"
	"trna-chat/internal/storage/history"
	"trna-chat/internal/tool/registry"
	"trna-chat/internal/tool/wrapper"
	"trna-chat/pkg/config"
)

// RegisterBuiltin 装配并注册全部内置工具，每个工具套上标准包装链（缓存在外、监控在内）
func RegisterBuiltin(reg *registry.Registry, cfg config.ToolsConfig, ttl time.Duration, store cache.Store, hist history.Store) error {
	if reg == nil {
		return nil
	}

	if cfg.TRNADB.Path != "" {
		trnadb, err := NewTRNADatabase(cfg.TRNADB.Path, cfg.TRNADB.MaxResults, hist)
		if err != nil {
			return err
		}
		reg.Register(wrapper.Wrap(trnadb, store, ttl))
	}

	reg.Register(wrapper.Wrap(NewGenomeBrowser(cfg.GenomeBrowser.BaseURL, cfg.GenomeBrowser.MaxFeaturesOrDefault()), store, ttl))

	// 子进程输出不缓存，只挂监控
	reg.Register(wrapper.NewMonitored(NewStdioPipe(cfg.Stdio.Commands, cfg.Stdio.MaxLines)))
	return nil
}
