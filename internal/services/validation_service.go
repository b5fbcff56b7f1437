// internal/services/validation_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Plotforge/MysteryWeaver/internal/models"
)

// ValidationPipeline 外部校验引擎的调用接口
// 规则引擎本身由独立服务实现，这里只消费其契约
type ValidationPipeline interface {
	Validate(ctx context.Context, story *models.Story, caseData json.RawMessage) (*models.ValidationReport, error)
}

// HTTPValidationClient 通过HTTP调用校验引擎服务
type HTTPValidationClient struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPValidationClient 创建校验引擎客户端
func NewHTTPValidationClient(baseURL string) *HTTPValidationClient {
	return &HTTPValidationClient{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// validateRequest 校验引擎的请求体
type validateRequest struct {
	Story    *models.Story   `json:"story"`
	CaseData json.RawMessage `json:"case_data"`
}

// Validate 提交故事投影与案件数据，返回新的校验报告
func (c *HTTPValidationClient) Validate(ctx context.Context, story *models.Story, caseData json.RawMessage) (*models.ValidationReport, error) {
	payload, err := json.Marshal(validateRequest{Story: story, CaseData: caseData})
	if err != nil {
		return nil, fmt.Errorf("序列化校验请求失败: %w", err)
	}

	url := c.BaseURL + "/validate"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用校验引擎失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("校验引擎返回错误(%d): %s", resp.StatusCode, string(body))
	}

	var report models.ValidationReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("解析校验报告失败: %w", err)
	}

	return &report, nil
}
