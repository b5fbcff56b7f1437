// internal/llm/interface_test.go
package llm

import (
	"context"
	"errors"
	"testing"
)

type testProvider struct {
	initialized map[string]string
}

func (p *testProvider) Initialize(config map[string]string) error {
	p.initialized = config
	return nil
}

func (p *testProvider) GetName() string { return "test" }

func (p *testProvider) GetSupportedModels() []string { return []string{"test-small", "test-large"} }

func (p *testProvider) CompleteText(_ context.Context, _ CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Text: "ok"}, nil
}

// TestRegisterAndGetProvider 测试提供者注册与实例化
func TestRegisterAndGetProvider(t *testing.T) {
	Register("test", func() Provider { return &testProvider{} })

	provider, err := GetProvider("test", map[string]string{"api_key": "key"})
	if err != nil {
		t.Fatalf("创建提供者失败: %v", err)
	}
	if provider.GetName() != "test" {
		t.Errorf("提供者名称应为 test，实际 %q", provider.GetName())
	}

	found := false
	for _, name := range ListProviders() {
		if name == "test" {
			found = true
		}
	}
	if !found {
		t.Error("已注册的提供者应出现在列表中")
	}
}

// TestGetProviderUnknown 测试未注册名称返回统一错误
func TestGetProviderUnknown(t *testing.T) {
	_, err := GetProvider("missing", nil)
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("应返回未知提供者错误，实际: %v", err)
	}
}

// TestGetSupportedModelsForProvider 测试按提供商查询模型列表
func TestGetSupportedModelsForProvider(t *testing.T) {
	Register("test", func() Provider { return &testProvider{} })

	models := GetSupportedModelsForProvider("test")
	if len(models) != 2 {
		t.Errorf("模型列表长度应为 2，实际 %d", len(models))
	}

	if got := GetSupportedModelsForProvider("missing"); len(got) != 0 {
		t.Errorf("未注册提供商的模型列表应为空，实际 %v", got)
	}
}
