// internal/storage/run_store.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Plotforge/MysteryWeaver/internal/models"
)

// RunStore 负责运行记录的文件持久化
// 每个运行保存为 runs/<id>.json，写入通过临时文件加重命名保证原子性
type RunStore struct {
	BaseDir string

	// 文件级别锁 path -> *sync.RWMutex
	fileLocks sync.Map
}

// NewRunStore 创建运行存储服务
func NewRunStore(baseDir string) (*RunStore, error) {
	runsDir := filepath.Join(baseDir, "runs")
	if err := os.MkdirAll(runsDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	return &RunStore{BaseDir: baseDir}, nil
}

// 获取文件锁
func (s *RunStore) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := s.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

func (s *RunStore) runPath(runID string) string {
	return filepath.Join(s.BaseDir, "runs", runID+".json")
}

// SaveRun 保存运行记录
func (s *RunStore) SaveRun(run *models.PipelineRun) error {
	content, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化运行记录失败: %w", err)
	}

	fullPath := s.runPath(run.ID)
	lock := s.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	// 原子性文件写入
	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("保存运行记录失败: %w", err)
	}

	return nil
}

// LoadRun 读取运行记录
func (s *RunStore) LoadRun(runID string) (*models.PipelineRun, error) {
	fullPath := s.runPath(runID)
	lock := s.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("运行记录不存在: %s", runID)
		}
		return nil, fmt.Errorf("读取运行记录失败: %w", err)
	}

	var run models.PipelineRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("解析运行记录失败: %w", err)
	}

	return &run, nil
}

// ListRunIDs 列出所有已保存的运行ID
func (s *RunStore) ListRunIDs() ([]string, error) {
	runsDir := filepath.Join(s.BaseDir, "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return nil, fmt.Errorf("读取存储目录失败: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	sort.Strings(ids)
	return ids, nil
}
