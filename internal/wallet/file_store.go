package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/pkg/logger"
)

// FileStore 以每个网络一个 JSON 文件的方式保存钱包记录。
type FileStore struct {
	dir string
	log *slog.Logger
}

// NewFileStore 创建一个写入 dir 目录的 FileStore，dir 为空时使用当前目录。
func NewFileStore(dir string) *FileStore {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return &FileStore{dir: dir, log: logger.Named("wallet")}
}

// FileName 返回网络对应的文件名，网络 ID 中的非字母数字字符统一替换为下划线。
func FileName(networkID string) string {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, networkID)
	return "wallet_data_" + normalized + ".txt"
}

// Path 返回网络记录的完整路径。
func (s *FileStore) Path(networkID string) string {
	return filepath.Join(s.dir, FileName(networkID))
}

// Load 读取记录。文件不存在返回 nil；内容不是合法 JSON 时记录警告并返回 nil。
func (s *FileStore) Load(_ context.Context, networkID string) (*Record, error) {
	path := s.Path(networkID)
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取钱包文件失败")
	}

	var record Record
	if err := json.Unmarshal(content, &record); err != nil {
		s.log.Warn("钱包文件不是合法 JSON，忽略", "path", path, "error", err)
		return nil, nil
	}
	s.log.Debug("已加载钱包记录", "path", path, "address", record.AddressValue())
	return &record, nil
}

// Save 以两个空格缩进写入记录，覆盖已有内容。
func (s *FileStore) Save(_ context.Context, record Record) error {
	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化钱包记录失败")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建钱包目录失败")
	}
	path := s.Path(record.NetworkID)
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("写入钱包文件 %s 失败", path))
	}
	s.log.Info("已保存钱包记录", "path", path, "network_id", record.NetworkID)
	return nil
}
