package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// 环境变量名
const (
	EnvEnableP2P           = "COMMSTACK_ENABLE_P2P"
	EnvEnableGDR           = "COMMSTACK_ENABLE_GDR"
	EnvGDRDenylist         = "COMMSTACK_GDR_DENYLIST"
	EnvDeterministicReduce = "COMMSTACK_DETERMINISTIC_REDUCE"
	EnvMaxTopologies       = "COMMSTACK_MAX_TOPOLOGIES"
)

// ApplyEnv 用环境变量覆盖配置
//
// 作业脚本通常只改环境变量，不改配置文件。
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvEnableP2P); ok {
		b, err := parseBool(EnvEnableP2P, v)
		if err != nil {
			return err
		}
		c.Comm.EnableP2P = b
	}
	if v, ok := os.LookupEnv(EnvEnableGDR); ok {
		b, err := parseBool(EnvEnableGDR, v)
		if err != nil {
			return err
		}
		c.Comm.EnableGDR = b
	}
	if v, ok := os.LookupEnv(EnvDeterministicReduce); ok {
		b, err := parseBool(EnvDeterministicReduce, v)
		if err != nil {
			return err
		}
		c.Comm.DeterministicReduce = b
	}
	if v, ok := os.LookupEnv(EnvGDRDenylist); ok {
		list, err := parseIntList(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvGDRDenylist, err)
		}
		c.Comm.GDRDenylist = list
	}
	if v, ok := os.LookupEnv(EnvMaxTopologies); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxTopologies, err)
		}
		c.Registry.MaxTopologies = n
	}
	return nil
}

func parseBool(name, v string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}

// parseIntList 解析 "0,2,3" 形式的列表
func parseIntList(v string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
