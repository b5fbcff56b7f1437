// internal/services/prose_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Plotforge/MysteryWeaver/internal/config"
	"github.com/Plotforge/MysteryWeaver/internal/errors"
	"github.com/Plotforge/MysteryWeaver/internal/models"
)

// ProseGenerator 正文生成代理的调用接口
type ProseGenerator interface {
	GenerateProse(ctx context.Context, req models.ProseRequest) (*models.ProseResult, error)
}

// ProseService 基于LLM实现正文生成代理
type ProseService struct {
	LLMService *LLMService
}

// NewProseService 创建正文生成服务
func NewProseService(llmService *LLMService) *ProseService {
	return &ProseService{LLMService: llmService}
}

const proseSystemPrompt = `You are a mystery fiction author. You write complete mystery stories from structured case material. ` +
	`Every scene must stay consistent with the case data: the culprit, the evidence, the timeline and the suspects are fixed and must not be contradicted.`

// GenerateProse 调用生成代理产出完整正文
// 请求上下文由上游填充并原样转发，QualityGuardrails 仅在修复重试时出现
func (s *ProseService) GenerateProse(ctx context.Context, req models.ProseRequest) (*models.ProseResult, error) {
	prompt := s.buildPrompt(req)

	var output struct {
		Chapters []models.Chapter `json:"chapters"`
	}

	resp, err := s.LLMService.CreateStructuredCompletion(ctx, prompt, proseSystemPrompt, &output)
	if err != nil {
		return nil, errors.NewGenerationError("正文生成失败", err)
	}

	if len(output.Chapters) == 0 {
		return nil, errors.NewGenerationError("生成代理返回了空的章节列表", nil)
	}

	return &models.ProseResult{
		Chapters: output.Chapters,
		Cost:     resp.Cost,
	}, nil
}

// buildPrompt 将请求上下文拼装为生成提示词
func (s *ProseService) buildPrompt(req models.ProseRequest) string {
	var sb strings.Builder

	sb.WriteString("Write a complete mystery story as a sequence of chapters.\n\n")

	writeSection := func(title string, raw []byte) {
		if len(raw) == 0 {
			return
		}
		sb.WriteString("## ")
		sb.WriteString(title)
		sb.WriteString("\n")
		sb.Write(raw)
		sb.WriteString("\n\n")
	}

	writeSection("Case Data (CML)", req.CaseData)
	writeSection("Narrative Outline", req.Outline)
	writeSection("Cast", req.Cast)
	writeSection("Character Profiles", req.CharacterProfiles)
	writeSection("Location Profiles", req.LocationProfiles)
	writeSection("Temporal Context", req.TemporalContext)

	targetLength := req.TargetLength
	if targetLength <= 0 {
		targetLength = config.GetCurrentConfig().DefaultTargetLength
	}
	sb.WriteString(fmt.Sprintf("## Requirements\nTarget length: about %d words.\n", targetLength))
	if req.NarrativeStyle != "" {
		sb.WriteString(fmt.Sprintf("Narrative style: %s.\n", req.NarrativeStyle))
	}

	// 护栏指令是修复重试的核心：逐条列出，要求生成代理严格遵守
	if len(req.QualityGuardrails) > 0 {
		sb.WriteString("\n## Quality Guardrails (mandatory)\n")
		for _, guardrail := range req.QualityGuardrails {
			sb.WriteString("- ")
			sb.WriteString(guardrail)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nOutput schema: {\"chapters\": [{\"title\": string, \"paragraphs\": [string]}]}")

	return sb.String()
}

// SanitizeProseResult 对生成代理的原始输出做结构归一化：
// 去除空白段落与空章节，为缺失的章节标题补充占位标题
func SanitizeProseResult(result *models.ProseResult) *models.Prose {
	chapters := make([]models.Chapter, 0, len(result.Chapters))

	for i, ch := range result.Chapters {
		paragraphs := make([]string, 0, len(ch.Paragraphs))
		for _, para := range ch.Paragraphs {
			trimmed := strings.TrimSpace(para)
			if trimmed != "" {
				paragraphs = append(paragraphs, trimmed)
			}
		}

		if len(paragraphs) == 0 {
			continue
		}

		title := strings.TrimSpace(ch.Title)
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}

		chapters = append(chapters, models.Chapter{
			Title:      title,
			Paragraphs: paragraphs,
		})
	}

	return &models.Prose{Chapters: chapters}
}
