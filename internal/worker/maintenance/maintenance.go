// Package maintenance はデータの定期整理ジョブを提供する。
// 失効したストーリーのアーカイブ、期限切れセッションの削除、
// 公開予定時刻を過ぎた予約投稿の公開を周期バッチで実行する。
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StoryArchiver は失効ストーリーのアーカイブに必要なインターフェース。
// repository.StoryRepositoryの部分集合として定義する。
type StoryArchiver interface {
	ArchiveExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionSweeper は期限切れセッションの削除に必要なインターフェース。
type SessionSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ScheduledPublisher は予約投稿の公開に必要なインターフェース。
type ScheduledPublisher interface {
	PublishDueScheduled(ctx context.Context, now time.Time) (int64, error)
}

// Job はデータ整理ジョブ。各処理は冪等であり、対象がない場合でもエラーにならない。
type Job struct {
	stories   StoryArchiver
	sessions  SessionSweeper
	scheduled ScheduledPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewJob は新しいJobを生成する。
func NewJob(stories StoryArchiver, sessions SessionSweeper, scheduled ScheduledPublisher, logger *slog.Logger) *Job {
	return &Job{
		stories:   stories,
		sessions:  sessions,
		scheduled: scheduled,
		logger:    logger,
		now:       time.Now,
	}
}

// Run は整理処理を1回実行する。
// 3つの処理は独立しており、いずれかが失敗しても残りは実行する。
// 失敗があった場合は最初のエラーを返す。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()
	now := j.now()

	var firstErr error

	published, err := j.scheduled.PublishDueScheduled(ctx, now)
	if err != nil {
		j.logger.Error("予約投稿の公開に失敗しました", slog.String("error", err.Error()))
		firstErr = fmt.Errorf("予約投稿の公開に失敗: %w", err)
	}

	archived, err := j.stories.ArchiveExpired(ctx, now)
	if err != nil {
		j.logger.Error("失効ストーリーのアーカイブに失敗しました", slog.String("error", err.Error()))
		if firstErr == nil {
			firstErr = fmt.Errorf("失効ストーリーのアーカイブに失敗: %w", err)
		}
	}

	deleted, err := j.sessions.DeleteExpired(ctx, now)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました", slog.String("error", err.Error()))
		if firstErr == nil {
			firstErr = fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
		}
	}

	j.logger.Info("データ整理ジョブが完了しました",
		slog.Int64("published_scheduled", published),
		slog.Int64("archived_stories", archived),
		slog.Int64("deleted_sessions", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return firstErr
}

// RunPeriodic は指定間隔で整理処理を繰り返し実行する。
// 起動直後に1回実行し、以降はinterval間隔で実行する。
// ctxのキャンセルで停止する。
func (j *Job) RunPeriodic(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("データ整理ジョブがエラーで終了しました", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("データ整理ジョブがエラーで終了しました", slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			j.logger.Info("データ整理ジョブを停止します")
			return
		}
	}
}
