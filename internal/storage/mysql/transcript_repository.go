package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/internal/transcript"

	driver "github.com/go-sql-driver/mysql"
)

const (
	insertTurnSQL = `INSERT INTO chat_turns
    (id, channel, session_id, message, response, tool_events, error, duration_ms, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	listTurnsSQL = `SELECT id, channel, session_id, message, response, tool_events, error, duration_ms, created_at
    FROM chat_turns ORDER BY created_at DESC, id DESC LIMIT ?`

	mysqlDuplicateEntry = 1062
)

// TranscriptRepository 使用 MySQL 保存对话记录。
type TranscriptRepository struct {
	db *sql.DB
}

// NewTranscriptRepository 创建连接池并执行迁移。
func NewTranscriptRepository(ctx context.Context, cfg Config) (*TranscriptRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 MySQL 失败")
	}
	repo := &TranscriptRepository{db: db}
	if err := repo.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行 MySQL 迁移失败")
	}
	return repo, nil
}

// Save 写入一轮对话。重复的 ID 视为已写入。
func (s *TranscriptRepository) Save(ctx context.Context, turn transcript.Turn) error {
	events := turn.ToolEvents
	if events == nil {
		events = []transcript.ToolEvent{}
	}
	encoded, err := json.Marshal(events)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化工具调用失败")
	}

	_, err = s.db.ExecContext(ctx, insertTurnSQL,
		turn.ID,
		string(turn.Channel),
		turn.SessionID,
		turn.Message,
		turn.Response,
		string(encoded),
		turn.Error,
		turn.DurationMS,
		turn.CreatedAt,
	)
	if err != nil {
		var mysqlErr *driver.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 MySQL 失败")
	}
	return nil
}

// ListLatest 查询最近的若干轮对话。
func (s *TranscriptRepository) ListLatest(ctx context.Context, limit int) ([]transcript.Turn, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, listTurnsSQL, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询对话记录失败")
	}
	defer rows.Close()

	turns := []transcript.Turn{}
	for rows.Next() {
		var (
			turn    transcript.Turn
			channel string
			events  string
		)
		if err := rows.Scan(&turn.ID, &channel, &turn.SessionID, &turn.Message, &turn.Response, &events, &turn.Error, &turn.DurationMS, &turn.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析对话记录失败")
		}
		turn.Channel = transcript.Channel(channel)
		if events != "" {
			if err := json.Unmarshal([]byte(events), &turn.ToolEvents); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("解析对话 %s 的工具调用失败", turn.ID))
			}
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历对话记录失败")
	}
	return turns, nil
}

// Close 关闭底层数据库连接。
func (s *TranscriptRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ transcript.Repository = (*TranscriptRepository)(nil)
