package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/pkg/types"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// buildConfig 构建配置
//
// 优先级（从高到低）：命令行参数、环境变量（COMMSTACK_*）、配置文件、默认值。
func buildConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if *grid != "" {
		dims, err := types.ParseCommKey(*grid)
		if err != nil {
			return nil, err
		}
		cfg.Grid.Dims = dims
	}
	if *splits != "" {
		cfg.Grid.Splits = nil
		for _, s := range splitAndTrim(*splits, ",") {
			key, err := types.ParseCommKey(s)
			if err != nil {
				return nil, err
			}
			cfg.Grid.Splits = append(cfg.Grid.Splits, key)
		}
	}
	if isFlagSet("deterministic") {
		cfg.Comm.DeterministicReduce = *deterministic
	}
	if *rank >= 0 {
		cfg.Transport.Rank = *rank
	}
	if *peers != "" {
		cfg.Transport.Peers = splitAndTrim(*peers, ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// splitAndTrim 分割字符串并去除空白
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
