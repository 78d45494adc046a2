package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/logstore"
)

// ═══════════════════════════════════════════════════════════════════════════
// 配置
// ═══════════════════════════════════════════════════════════════════════════

// 配置键
const (
	keyAPIKey   = "api_key"
	keyBaseURL  = "base_url"
	keyModel    = "model"
	keyTimeout  = "timeout"
	keyLogDB    = "log_db"
	keyNoLog    = "no_log"
	keyRegistry = "registry"
)

// initViper 创建配置
//
// 优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（NEURALWATT_API_KEY、NEURALWATT_MODEL 等，API Key 与 Base URL 也接受 LLM_ 前缀）
//  3. 配置文件（--config 指定，或 $XDG_CONFIG_HOME/neuralwatt/config.yaml）
//  4. 默认值
func initViper(configFile string) (*viper.Viper, error) {
	v := viper.New()

	d := llm.DefaultConfig()
	v.SetDefault(keyBaseURL, llm.DefaultBaseURL)
	v.SetDefault(keyModel, d.Model)
	v.SetDefault(keyTimeout, d.Timeout)
	v.SetDefault(keyLogDB, logstore.DefaultPath())
	v.SetDefault(keyNoLog, false)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "neuralwatt"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("NEURALWATT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(keyAPIKey, "NEURALWATT_API_KEY", "LLM_API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv(keyBaseURL, "NEURALWATT_BASE_URL", "LLM_BASE_URL"); err != nil {
		return nil, err
	}

	return v, nil
}

// providerConfig 从 viper 读取 Provider 配置
func providerConfig(v *viper.Viper) (*llm.Config, error) {
	var cfg llm.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, llm.NewConfigError("decode config", err)
	}
	if cfg.APIKey == "" {
		return nil, llm.NewConfigError("API key is required (set NEURALWATT_API_KEY or api_key in config)", nil)
	}
	return &cfg, nil
}

// loadRegistry 读取模型注册表，未配置时使用内嵌注册表
func loadRegistry(v *viper.Viper) (*llm.Registry, error) {
	path := v.GetString(keyRegistry)
	if path == "" {
		return llm.DefaultRegistry(), nil
	}
	return llm.LoadRegistryFile(path)
}
