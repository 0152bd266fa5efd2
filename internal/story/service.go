// Package story はストーリー（24時間で失効する短命コンテンツ)のビジネスロジックを提供する。
package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tsunagu/internal/model"
	"github.com/hitoshi/tsunagu/internal/repository"
	"github.com/hitoshi/tsunagu/internal/security"
)

// CreateInput はストーリー作成の入力を表す。
type CreateInput struct {
	MediaURL  string
	MediaType string
}

// MetricsRecorder はストーリー作成メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordStoryCreated()
}

// Service はストーリーのビジネスロジックを提供する。
type Service struct {
	storyRepo repository.StoryRepository
	userRepo  repository.UserRepository
	guard     security.MediaURLGuardService
	metrics   MetricsRecorder // nilの場合は記録しない
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// ttlは作成時点からの有効期間（通常24時間）。metricsはnilを許容する。
func NewService(
	storyRepo repository.StoryRepository,
	userRepo repository.UserRepository,
	guard security.MediaURLGuardService,
	metrics MetricsRecorder,
	ttl time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		storyRepo: storyRepo,
		userRepo:  userRepo,
		guard:     guard,
		metrics:   metrics,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// Create は新規ストーリーを作成する。失効時刻は作成時刻 + TTL。
func (s *Service) Create(ctx context.Context, authorID string, input CreateInput) (*model.Story, error) {
	author, err := s.userRepo.FindByID(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("投稿者の取得に失敗しました: %w", err)
	}
	if author == nil {
		return nil, model.NewUserNotFoundError()
	}

	mediaType := model.MediaType(input.MediaType)
	if mediaType != model.MediaTypeImage && mediaType != model.MediaTypeVideo {
		return nil, model.NewInvalidMediaURLError(fmt.Sprintf("未対応のメディア種別です: %s", input.MediaType))
	}

	if err := s.guard.ValidateMediaURL(ctx, input.MediaURL); err != nil {
		if errors.Is(err, security.ErrBlockedURL) {
			s.logger.Warn("story media URL blocked",
				slog.String("author_id", authorID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewMediaURLBlockedError()
		}
		return nil, model.NewInvalidMediaURLError(err.Error())
	}

	now := s.now()
	story := &model.Story{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		MediaURL:  input.MediaURL,
		MediaType: mediaType,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	if err := s.storyRepo.Create(ctx, story); err != nil {
		return nil, fmt.Errorf("ストーリーの作成に失敗しました: %w", err)
	}

	s.logger.Info("story created",
		slog.String("story_id", story.ID),
		slog.String("author_id", authorID),
		slog.Time("expires_at", story.ExpiresAt),
	)

	if s.metrics != nil {
		s.metrics.RecordStoryCreated()
	}
	return story, nil
}

// ListActive は指定ユーザー集合の有効なストーリーを新しい順で返す。
func (s *Service) ListActive(ctx context.Context, authorIDs []string) ([]*model.Story, error) {
	stories, err := s.storyRepo.ListActiveByAuthors(ctx, authorIDs, s.now())
	if err != nil {
		return nil, fmt.Errorf("ストーリー一覧の取得に失敗しました: %w", err)
	}
	return stories, nil
}

// ListForViewer は閲覧者自身とフォロー中ユーザーの有効なストーリーを返す。
// フォロワー（フォローバックしていない相手）のストーリーは含めない。
func (s *Service) ListForViewer(ctx context.Context, viewerID string) ([]*model.Story, error) {
	graph, err := s.userRepo.FindSocialGraph(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("フォロー関係の取得に失敗しました: %w", err)
	}

	authorIDs := append([]string{viewerID}, graph.Following...)
	return s.ListActive(ctx, authorIDs)
}
