// Package post は投稿の作成・取得・更新・削除のビジネスロジックを提供する。
package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tsunagu/internal/events"
	"github.com/hitoshi/tsunagu/internal/geo"
	"github.com/hitoshi/tsunagu/internal/model"
	"github.com/hitoshi/tsunagu/internal/repository"
	"github.com/hitoshi/tsunagu/internal/security"
)

// CreateInput は投稿作成の入力を表す。
type CreateInput struct {
	ContentType   string
	Caption       string
	Description   string
	Media         []model.Media
	Tags          []string
	Customization model.Customization
	// LocationName は場所の名称。座標が未指定の場合、ジオコーダーで座標に解決する。
	LocationName string
	// Draft がtrueの場合、下書きとして保存しフィードには掲載しない。
	Draft bool
	// ScheduledAt が指定された場合、予約投稿としてその時刻に公開する。
	ScheduledAt *time.Time
}

// UpdateInput は投稿更新の入力を表す。
// nilのフィールドは変更しない。
type UpdateInput struct {
	Caption     *string
	Description *string
	Tags        []string
}

// 一覧系エンドポイントのデフォルト値。フィード集約側の既定値と揃えている。
const (
	defaultListLimit      = 20
	defaultTrendingWindow = 24 * time.Hour
	defaultNearbyRadiusKM = 20.0
)

// MetricsRecorder は投稿作成メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordPostCreated(contentType model.ContentType)
}

// Service は投稿のビジネスロジックを提供する。
type Service struct {
	postRepo  repository.PostRepository
	userRepo  repository.UserRepository
	sanitizer security.ContentSanitizerService
	guard     security.MediaURLGuardService
	geocoder  geo.GeocoderService
	publisher events.PostEventPublisher // nilの場合はイベント発行しない
	metrics   MetricsRecorder           // nilの場合は記録しない
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// publisherとmetricsはnilを許容する。
func NewService(
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	sanitizer security.ContentSanitizerService,
	guard security.MediaURLGuardService,
	geocoder geo.GeocoderService,
	publisher events.PostEventPublisher,
	metrics MetricsRecorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		postRepo:  postRepo,
		userRepo:  userRepo,
		sanitizer: sanitizer,
		guard:     guard,
		geocoder:  geocoder,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Create は新規投稿を作成する。
// 検証の順序: コンテンツ種別 → メディアURL → 位置情報の座標解決。
// 公開済み投稿の作成時はpost.createdイベントを発行する（発行失敗は作成を失敗させない）。
func (s *Service) Create(ctx context.Context, authorID string, input CreateInput) (*model.Post, error) {
	contentType := model.ContentType(input.ContentType)
	if !contentType.Valid() {
		return nil, model.NewInvalidContentTypeError(input.ContentType)
	}

	author, err := s.userRepo.FindByID(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("投稿者の取得に失敗しました: %w", err)
	}
	if author == nil {
		return nil, model.NewUserNotFoundError()
	}

	for _, media := range input.Media {
		if err := s.guard.ValidateMediaURL(ctx, media.URL); err != nil {
			if errors.Is(err, security.ErrBlockedURL) {
				s.logger.Warn("media URL blocked",
					slog.String("author_id", authorID),
					slog.String("error", err.Error()),
				)
				return nil, model.NewMediaURLBlockedError()
			}
			return nil, model.NewInvalidMediaURLError(err.Error())
		}
	}

	customization := input.Customization
	if err := s.resolveLocation(ctx, contentType, &customization, input.LocationName); err != nil {
		return nil, err
	}

	now := s.now()
	post := &model.Post{
		ID:            uuid.NewString(),
		AuthorID:      authorID,
		ContentType:   contentType,
		Caption:       s.sanitizer.SanitizeText(input.Caption),
		Description:   s.sanitizer.SanitizeText(input.Description),
		Media:         input.Media,
		Tags:          sanitizeTags(s.sanitizer, input.Tags),
		Customization: customization,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	switch {
	case input.Draft:
		post.Status = model.PostStatusDraft
	case input.ScheduledAt != nil:
		if !input.ScheduledAt.After(now) {
			return nil, model.NewInvalidScheduleError()
		}
		post.Status = model.PostStatusScheduled
		post.ScheduledAt = input.ScheduledAt
	default:
		post.Status = model.PostStatusPublished
		publishedAt := now
		post.PublishedAt = &publishedAt
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}

	s.logger.Info("post created",
		slog.String("post_id", post.ID),
		slog.String("author_id", authorID),
		slog.String("content_type", string(contentType)),
		slog.String("status", string(post.Status)),
	)

	if s.metrics != nil {
		s.metrics.RecordPostCreated(contentType)
	}

	if post.Status == model.PostStatusPublished {
		s.publishCreatedEvent(ctx, post)
	}

	return post, nil
}

// Get は指定IDの投稿を取得する。
func (s *Service) Get(ctx context.Context, postID string) (*model.Post, error) {
	post, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	return post, nil
}

// Update は投稿を更新する。投稿者本人のみが更新できる。
func (s *Service) Update(ctx context.Context, userID, postID string, input UpdateInput) (*model.Post, error) {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != userID {
		return nil, model.NewNotPostOwnerError()
	}

	if input.Caption != nil {
		post.Caption = s.sanitizer.SanitizeText(*input.Caption)
	}
	if input.Description != nil {
		post.Description = s.sanitizer.SanitizeText(*input.Description)
	}
	if input.Tags != nil {
		post.Tags = sanitizeTags(s.sanitizer, input.Tags)
	}
	post.UpdatedAt = s.now()

	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}
	return post, nil
}

// Delete は投稿を削除する。投稿者本人のみが削除できる。
func (s *Service) Delete(ctx context.Context, userID, postID string) error {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != userID {
		return model.NewNotPostOwnerError()
	}

	if err := s.postRepo.Delete(ctx, postID); err != nil {
		return fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}

	s.logger.Info("post deleted",
		slog.String("post_id", postID),
		slog.String("author_id", userID),
	)
	return nil
}

// PublishDraft は下書き投稿を公開状態に遷移させる。
// 既に公開済みの場合は何もせずそのまま返す（冪等）。
func (s *Service) PublishDraft(ctx context.Context, userID, postID string) (*model.Post, error) {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != userID {
		return nil, model.NewNotPostOwnerError()
	}
	if post.Status == model.PostStatusPublished {
		return post, nil
	}

	now := s.now()
	post.Status = model.PostStatusPublished
	post.PublishedAt = &now
	post.ScheduledAt = nil
	post.UpdatedAt = now

	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("投稿の公開に失敗しました: %w", err)
	}

	s.publishCreatedEvent(ctx, post)
	return post, nil
}

// ListByAuthor は指定ユーザーの公開済み投稿を新しい順で返す。
func (s *Service) ListByAuthor(ctx context.Context, authorID string, limit int) ([]*model.Post, error) {
	posts, err := s.postRepo.ListByAuthors(ctx, []string{authorID}, limit)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// ListTrending は直近windowに作成された人気投稿をエンゲージメント順で返す。
// windowまたはlimitが0以下の場合はデフォルト値を適用する。
func (s *Service) ListTrending(ctx context.Context, window time.Duration, limit int) ([]*model.Post, error) {
	if window <= 0 {
		window = defaultTrendingWindow
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	posts, err := s.postRepo.ListTrending(ctx, s.now().Add(-window), limit)
	if err != nil {
		return nil, fmt.Errorf("人気投稿の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// ListNearby は指定座標から半径radiusKM km以内の投稿を返す。
// radiusKMまたはlimitが0以下の場合はデフォルト値を適用する。
func (s *Service) ListNearby(ctx context.Context, center model.GeoPoint, radiusKM float64, limit int) ([]*model.Post, error) {
	if radiusKM <= 0 {
		radiusKM = defaultNearbyRadiusKM
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	posts, err := s.postRepo.ListNearby(ctx, center, radiusKM, limit)
	if err != nil {
		return nil, fmt.Errorf("近隣投稿の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// resolveLocation は位置情報の名称を座標に解決し、カスタマイズ構造に設定する。
// 座標が既に指定されている場合、または名称が空の場合は何もしない。
func (s *Service) resolveLocation(ctx context.Context, contentType model.ContentType, customization *model.Customization, locationName string) error {
	if locationName == "" || customization.Location() != nil {
		return nil
	}

	point, err := s.geocoder.Resolve(ctx, locationName)
	if err != nil {
		return fmt.Errorf("位置情報の座標解決に失敗しました: %w", err)
	}
	if point == nil {
		return model.NewLocationNotResolvedError(locationName)
	}

	switch contentType {
	case model.ContentTypeNormal:
		if customization.Normal == nil {
			customization.Normal = &model.NormalDetails{}
		}
		customization.Normal.Location = point
	case model.ContentTypeService:
		if customization.Service == nil {
			customization.Service = &model.ServiceDetails{}
		}
		customization.Service.Location = point
	case model.ContentTypeProduct:
		if customization.Product == nil {
			customization.Product = &model.ProductDetails{}
		}
		customization.Product.Location = point
	case model.ContentTypeBusiness:
		if customization.Business == nil {
			customization.Business = &model.BusinessDetails{}
		}
		customization.Business.Location = point
	}
	return nil
}

// publishCreatedEvent は投稿作成イベントを発行する。
// イベント配信はベストエフォートであり、失敗してもエラーは返さない。
func (s *Service) publishCreatedEvent(ctx context.Context, post *model.Post) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPostCreated(ctx, post); err != nil {
		s.logger.Warn("failed to publish post.created event",
			slog.String("post_id", post.ID),
			slog.String("error", err.Error()),
		)
	}
}

// sanitizeTags はタグをサニタイズし、空になったタグを除去する。
func sanitizeTags(sanitizer security.ContentSanitizerService, tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if t := sanitizer.SanitizeText(tag); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return cleaned
}
