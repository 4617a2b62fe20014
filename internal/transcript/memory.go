package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/pkg/logger"
)

const (
	memoryCapacity = 512
	// maxTurnLine 以上的日志行在加载时跳过。
	maxTurnLine = 8 << 20
	// 追加写入的行数超过 compactThreshold 后重写日志，只保留内存中的对话。
	compactThreshold = 2 * memoryCapacity
)

// MemoryRepository 在内存中保留最近的对话，可选地以 JSONL 追加写入本地文件。
type MemoryRepository struct {
	mu       sync.RWMutex
	dataFile string
	log      *slog.Logger
	// turns 按时间正序保存，最多 memoryCapacity 条。
	turns []Turn
	lines int
}

// NewMemoryRepository 创建内存仓库。dataDir 为空时不落盘。
// 日志中损坏或过长的行会被跳过，加载后日志会被压缩为保留的对话。
func NewMemoryRepository(dataDir string) (*MemoryRepository, error) {
	repo := &MemoryRepository{log: logger.Named("transcript")}
	if dataDir == "" {
		return repo, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo.dataFile = filepath.Join(dataDir, "transcripts.log")
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 记录一轮对话。
func (m *MemoryRepository) Save(_ context.Context, turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dataFile != "" {
		encoded, err := json.Marshal(turn)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化对话记录失败")
		}
		file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开对话日志失败")
		}
		_, err = file.Write(append(encoded, '\n'))
		file.Close()
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入对话日志失败")
		}
		m.lines++
	}

	m.turns = append(m.turns, turn)
	if len(m.turns) > memoryCapacity {
		m.turns = m.turns[len(m.turns)-memoryCapacity:]
	}

	if m.dataFile != "" && m.lines > compactThreshold {
		if err := m.compactLocked(); err != nil {
			m.log.Warn("压缩对话日志失败", "error", err)
		}
	}
	return nil
}

// ListLatest 返回最近的对话，按时间倒序排列。
func (m *MemoryRepository) ListLatest(_ context.Context, limit int) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.turns) {
		limit = len(m.turns)
	}
	results := make([]Turn, 0, limit)
	for i := len(m.turns) - 1; i >= 0 && len(results) < limit; i-- {
		results = append(results, m.turns[i])
	}
	return results, nil
}

// Close 对内存仓库无需操作。
func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取对话日志失败: %w", err)
	}
	defer file.Close()

	// ring 保存最后 memoryCapacity 条对话。
	ring := make([]Turn, memoryCapacity)
	total, skipped := 0, 0
	reader := bufio.NewReader(file)
	for {
		line, oversized, err := readTurnLine(reader)
		if len(line) > 0 || oversized {
			var turn Turn
			if oversized || json.Unmarshal(line, &turn) != nil {
				skipped++
			} else {
				ring[total%memoryCapacity] = turn
				total++
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("读取对话日志失败: %w", err)
		}
	}

	kept := min(total, memoryCapacity)
	m.turns = make([]Turn, 0, kept)
	for i := total - kept; i < total; i++ {
		m.turns = append(m.turns, ring[i%memoryCapacity])
	}
	m.lines = total + skipped

	if skipped > 0 {
		m.log.Warn("跳过无法解析的对话日志行", "count", skipped)
	}
	if m.lines > kept {
		if err := m.compactLocked(); err != nil {
			m.log.Warn("压缩对话日志失败", "error", err)
		}
	}
	return nil
}

// compactLocked 用内存中的对话重写日志文件，调用方需持有写锁。
func (m *MemoryRepository) compactLocked() error {
	tmp, err := os.CreateTemp(filepath.Dir(m.dataFile), "transcripts-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	writer := bufio.NewWriter(tmp)
	encoder := json.NewEncoder(writer)
	for _, turn := range m.turns {
		if err := encoder.Encode(turn); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := writer.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), m.dataFile); err != nil {
		return err
	}
	m.lines = len(m.turns)
	return nil
}

// readTurnLine 读取一行，超过 maxTurnLine 的部分直接丢弃并标记 oversized。
func readTurnLine(r *bufio.Reader) (line []byte, oversized bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > maxTurnLine {
				oversized, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return trimNewline(line), oversized, err
	}
}

func trimNewline(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

var _ Repository = (*MemoryRepository)(nil)
