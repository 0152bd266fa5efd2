// Package user はユーザープロフィールとフォロー関係のビジネスロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/tsunagu/internal/model"
	"github.com/hitoshi/tsunagu/internal/repository"
	"github.com/hitoshi/tsunagu/internal/security"
)

// ProfileUpdateInput はプロフィール更新の入力を表す。
// nilのフィールドは変更しない。
type ProfileUpdateInput struct {
	FullName  *string
	Bio       *string
	AvatarURL *string
	Location  *model.GeoPoint
}

// Profile はフォロー数を付与したプロフィール応答を表す。
type Profile struct {
	User           *model.User
	FollowingCount int
	FollowerCount  int
}

// Service はユーザーのビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer security.ContentSanitizerService
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer security.ContentSanitizerService, logger *slog.Logger) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// GetProfile は指定ユーザーのプロフィールをフォロー数付きで取得する。
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	graph, err := s.userRepo.FindSocialGraph(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("フォロー関係の取得に失敗しました: %w", err)
	}

	return &Profile{
		User:           user,
		FollowingCount: len(graph.Following),
		FollowerCount:  len(graph.Followers),
	}, nil
}

// UpdateProfile はユーザーのプロフィールを更新する。
// 自由入力フィールド（表示名・自己紹介）はサニタイズして保存する。
func (s *Service) UpdateProfile(ctx context.Context, userID string, input ProfileUpdateInput) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if input.FullName != nil {
		user.FullName = s.sanitizer.SanitizeText(*input.FullName)
	}
	if input.Bio != nil {
		user.Bio = s.sanitizer.SanitizeText(*input.Bio)
	}
	if input.AvatarURL != nil {
		user.AvatarURL = *input.AvatarURL
	}
	if input.Location != nil {
		user.Location = input.Location
	}
	user.UpdatedAt = s.now()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	s.logger.Info("profile updated", slog.String("user_id", userID))
	return user, nil
}

// Follow はfollowerIDのユーザーがfolloweeIDのユーザーをフォローする。
// 既にフォロー済みの場合は何もしない（冪等）。
func (s *Service) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return model.NewSelfFollowError()
	}

	followee, err := s.userRepo.FindByID(ctx, followeeID)
	if err != nil {
		return fmt.Errorf("フォロー対象ユーザーの取得に失敗しました: %w", err)
	}
	if followee == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.userRepo.Follow(ctx, followerID, followeeID); err != nil {
		return fmt.Errorf("フォロー関係の作成に失敗しました: %w", err)
	}

	s.logger.Info("user followed",
		slog.String("follower_id", followerID),
		slog.String("followee_id", followeeID),
	)
	return nil
}

// Unfollow はフォロー関係を解除する。フォローしていない場合は何もしない（冪等）。
func (s *Service) Unfollow(ctx context.Context, followerID, followeeID string) error {
	if err := s.userRepo.Unfollow(ctx, followerID, followeeID); err != nil {
		return fmt.Errorf("フォロー関係の解除に失敗しました: %w", err)
	}

	s.logger.Info("user unfollowed",
		slog.String("follower_id", followerID),
		slog.String("followee_id", followeeID),
	)
	return nil
}

// ListFollowers は指定ユーザーをフォローしているユーザーの一覧を返す。
func (s *Service) ListFollowers(ctx context.Context, userID string) ([]*model.User, error) {
	graph, err := s.GetSocialGraph(ctx, userID)
	if err != nil {
		return nil, err
	}

	users, err := s.userRepo.ListByIDs(ctx, graph.Followers)
	if err != nil {
		return nil, fmt.Errorf("フォロワー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// ListFollowing は指定ユーザーがフォローしているユーザーの一覧を返す。
func (s *Service) ListFollowing(ctx context.Context, userID string) ([]*model.User, error) {
	graph, err := s.GetSocialGraph(ctx, userID)
	if err != nil {
		return nil, err
	}

	users, err := s.userRepo.ListByIDs(ctx, graph.Following)
	if err != nil {
		return nil, fmt.Errorf("フォロー中ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// GetSocialGraph は指定ユーザーのフォロー関係を取得する。
func (s *Service) GetSocialGraph(ctx context.Context, userID string) (*model.SocialGraph, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	graph, err := s.userRepo.FindSocialGraph(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("フォロー関係の取得に失敗しました: %w", err)
	}
	return graph, nil
}
