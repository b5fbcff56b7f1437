// internal/config/config_test.go
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestUpdateLLMConfigPersists 测试LLM配置更新并持久化到配置文件
func TestUpdateLLMConfigPersists(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("LOG_DIR", t.TempDir())

	configDir := t.TempDir()
	if err := InitConfig(configDir); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	llmConfig := map[string]string{
		"api_key":       "test-key",
		"default_model": "gpt-4.1-mini",
	}
	if err := UpdateLLMConfig("openai", llmConfig); err != nil {
		t.Fatalf("更新LLM配置失败: %v", err)
	}

	current := GetCurrentConfig()
	if current.LLMProvider != "openai" {
		t.Errorf("当前提供商应为 openai，实际 %q", current.LLMProvider)
	}
	if current.LLMConfig["api_key"] != "test-key" {
		t.Error("当前配置应包含更新后的API密钥")
	}

	// 更新应已写入配置文件
	data, err := os.ReadFile(filepath.Join(configDir, "config.json"))
	if err != nil {
		t.Fatalf("读取配置文件失败: %v", err)
	}

	var saved AppConfig
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("解析配置文件失败: %v", err)
	}
	if saved.LLMProvider != "openai" {
		t.Errorf("持久化的提供商应为 openai，实际 %q", saved.LLMProvider)
	}
	if saved.LLMConfig["default_model"] != "gpt-4.1-mini" {
		t.Error("持久化的配置应包含默认模型")
	}
}
