// internal/models/prose_test.go
package models

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestBuildStory 测试正文到故事投影的构建
func TestBuildStory(t *testing.T) {
	prose := &Prose{
		Chapters: []Chapter{
			{Title: "The Locked Study", Paragraphs: []string{"First paragraph.", "Second paragraph."}},
			{Title: "The Alibi Unravels", Paragraphs: []string{"Only paragraph."}},
		},
	}

	story := prose.BuildStory("run-1", "project-1")

	want := &Story{
		ID:        "run-1",
		ProjectID: "project-1",
		Scenes: []Scene{
			{Number: 1, Title: "The Locked Study", Text: "First paragraph.\n\nSecond paragraph."},
			{Number: 2, Title: "The Alibi Unravels", Text: "Only paragraph."},
		},
	}

	if diff := cmp.Diff(want, story); diff != "" {
		t.Errorf("故事投影不符合预期 (-want +got):\n%s", diff)
	}
}

// TestBuildStoryProjectIDFallback 测试项目ID缺失时回退为运行ID
func TestBuildStoryProjectIDFallback(t *testing.T) {
	prose := &Prose{Chapters: []Chapter{{Title: "Ch", Paragraphs: []string{"p"}}}}

	story := prose.BuildStory("run-7", "")
	if story.ProjectID != "run-7" {
		t.Errorf("项目ID应回退为运行ID，实际为 %q", story.ProjectID)
	}
}

// TestWordCount 测试词数统计
func TestWordCount(t *testing.T) {
	prose := &Prose{
		Chapters: []Chapter{
			{Title: "A", Paragraphs: []string{"one two three", "four"}},
			{Title: "B", Paragraphs: []string{"five six"}},
		},
	}

	if got := prose.WordCount(); got != 6 {
		t.Errorf("词数应为6，实际为 %d", got)
	}
}
