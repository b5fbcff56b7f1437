// internal/models/prose.go
package models

import "strings"

// Chapter 生成正文中的一个章节
type Chapter struct {
	Title      string   `json:"title"`
	Paragraphs []string `json:"paragraphs"`
}

// Prose 生成代理产出的完整正文
// 每次生成（含修复重试）都会产出新的 Prose，运行期间始终只有一份"当前"正文
type Prose struct {
	Chapters []Chapter `json:"chapters"`
}

// Scene 校验引擎消费的场景投影
type Scene struct {
	Number int    `json:"number"` // 从1开始的场景序号
	Title  string `json:"title"`
	Text   string `json:"text"`
}

// Story 提交给校验引擎的故事投影
// 由 Prose 即时构建，不做持久化
type Story struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Scenes    []Scene `json:"scenes"`
}

// BuildStory 从正文构建故事投影：第N章对应第N个场景，
// 场景文本为段落以空行拼接的结果
func (p *Prose) BuildStory(runID, projectID string) *Story {
	if projectID == "" {
		projectID = runID
	}

	scenes := make([]Scene, 0, len(p.Chapters))
	for i, ch := range p.Chapters {
		scenes = append(scenes, Scene{
			Number: i + 1,
			Title:  ch.Title,
			Text:   strings.Join(ch.Paragraphs, "\n\n"),
		})
	}

	return &Story{
		ID:        runID,
		ProjectID: projectID,
		Scenes:    scenes,
	}
}

// WordCount 统计正文的词数（以空白分词）
func (p *Prose) WordCount() int {
	total := 0
	for _, ch := range p.Chapters {
		for _, para := range ch.Paragraphs {
			total += len(strings.Fields(para))
		}
	}
	return total
}
