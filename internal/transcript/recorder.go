package transcript

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"AgentKit-Chat/pkg/logger"

	"github.com/google/uuid"
)

// Recorder 保存并投递对话记录。记录失败只写日志，不影响调用方。
type Recorder struct {
	repo      Repository
	publisher Publisher
	log       *slog.Logger
	now       func() time.Time
}

// NewRecorder 创建 Recorder，repo 与 publisher 都可以为 nil。
func NewRecorder(repo Repository, publisher Publisher) *Recorder {
	return &Recorder{repo: repo, publisher: publisher, log: logger.Named("transcript"), now: time.Now}
}

// Record 补全 ID 与时间后保存并投递对话记录。
func (r *Recorder) Record(ctx context.Context, turn Turn) {
	if r == nil {
		return
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt == 0 {
		turn.CreatedAt = r.now().Unix()
	}

	if r.repo != nil {
		if err := r.repo.Save(ctx, turn); err != nil {
			r.log.Warn("保存对话记录失败", "turn_id", turn.ID, "error", err)
		}
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, turn); err != nil {
			r.log.Warn("投递对话记录失败", "turn_id", turn.ID, "error", err)
		}
	}
}

// Latest 返回最近的对话记录；未配置仓库时返回空列表。
func (r *Recorder) Latest(ctx context.Context, limit int) ([]Turn, error) {
	if r == nil || r.repo == nil {
		return []Turn{}, nil
	}
	turns, err := r.repo.ListLatest(ctx, limit)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

// Close 关闭仓库与投递器。
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.publisher != nil {
		errs = append(errs, r.publisher.Close())
	}
	if r.repo != nil {
		errs = append(errs, r.repo.Close())
	}
	return errors.Join(errs...)
}
