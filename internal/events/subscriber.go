package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// handleTimeout はイベント1件あたりの処理タイムアウト。
const handleTimeout = 30 * time.Second

// FollowerLister はフォロワーID一覧の取得インターフェース。
// repository.UserRepositoryの部分集合として定義する。
type FollowerLister interface {
	ListFollowerIDs(ctx context.Context, userID string) ([]string, error)
}

// FeedInvalidator はフィードキャッシュの一括無効化インターフェース。
type FeedInvalidator interface {
	InvalidateViewers(ctx context.Context, viewerIDs []string) error
}

// Subscriber はpost.createdイベントを購読し、
// 投稿者のフォロワーのフィードキャッシュを無効化するワーカー。
type Subscriber struct {
	nc        *nats.Conn
	followers FollowerLister
	cache     FeedInvalidator
	logger    *slog.Logger
}

// NewSubscriber はSubscriberを生成する。
func NewSubscriber(nc *nats.Conn, followers FollowerLister, cache FeedInvalidator, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		nc:        nc,
		followers: followers,
		cache:     cache,
		logger:    logger,
	}
}

// Start はpost.createdサブジェクトの購読を開始し、ctxがキャンセルされるまでブロックする。
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.nc.Subscribe(SubjectPostCreated, s.handlePostCreated)
	if err != nil {
		return fmt.Errorf("イベントの購読開始に失敗しました: %w", err)
	}

	s.logger.Info("post event subscriber started",
		slog.String("subject", SubjectPostCreated),
	)

	<-ctx.Done()

	if err := sub.Unsubscribe(); err != nil {
		s.logger.Warn("failed to unsubscribe",
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("post event subscriber stopped")
	return nil
}

// HandlePostCreated はイベント1件を処理する。
// 投稿者自身とそのフォロワーのキャッシュ済みフィードを無効化する。
func (s *Subscriber) HandlePostCreated(ctx context.Context, event PostCreatedEvent) error {
	followerIDs, err := s.followers.ListFollowerIDs(ctx, event.AuthorID)
	if err != nil {
		return fmt.Errorf("フォロワー一覧の取得に失敗しました: %w", err)
	}

	// 投稿者自身のフィードにも自分の投稿が現れうるため一緒に無効化する
	viewerIDs := append(followerIDs, event.AuthorID)
	if err := s.cache.InvalidateViewers(ctx, viewerIDs); err != nil {
		return fmt.Errorf("フィードキャッシュの無効化に失敗しました: %w", err)
	}

	s.logger.Info("feed caches invalidated",
		slog.String("post_id", event.PostID),
		slog.String("author_id", event.AuthorID),
		slog.Int("viewer_count", len(viewerIDs)),
	)
	return nil
}

// handlePostCreated はNATSメッセージをデコードしてHandlePostCreatedへ委譲する。
func (s *Subscriber) handlePostCreated(msg *nats.Msg) {
	var event PostCreatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.Error("invalid post event payload",
			slog.String("error", err.Error()),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if err := s.HandlePostCreated(ctx, event); err != nil {
		s.logger.Error("post event handling failed",
			slog.String("post_id", event.PostID),
			slog.String("error", err.Error()),
		)
	}
}
