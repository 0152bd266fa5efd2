// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/tsunagu/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindSocialGraph は指定ユーザーのフォロー関係（following/followers）を取得する。
	// ユーザーが存在してもフォロー関係がない場合は空のSocialGraphを返す。
	FindSocialGraph(ctx context.Context, userID string) (*model.SocialGraph, error)

	// ListFollowerIDs は指定ユーザーをフォローしているユーザーIDの一覧を返す。
	ListFollowerIDs(ctx context.Context, userID string) ([]string, error)

	// ListByIDs は指定したID集合のユーザーをusername昇順で返す。
	// ID集合が空の場合は空スライスを返す。
	ListByIDs(ctx context.Context, ids []string) ([]*model.User, error)

	// UpdateProfile はユーザーのプロフィール情報を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// Follow はフォロー関係を作成する。既にフォロー済みの場合は何もしない（冪等）。
	Follow(ctx context.Context, followerID, followeeID string) error

	// Unfollow はフォロー関係を削除する。フォローしていない場合は何もしない（冪等）。
	Unfollow(ctx context.Context, followerID, followeeID string) error
}

// SessionRepository はセッションデータの参照インターフェース。
// セッションの発行は外部の認証基盤が行うため、本アプリケーションでは作成APIを持たない。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れまたは未存在の場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PostRepository は投稿データの永続化インターフェース。
// 一覧系メソッドはすべて公開済み（status='published'）かつ
// フィード掲載可能なコンテンツ種別の投稿のみを返し、投稿者情報をJOINして付与する。
type PostRepository interface {
	// Create は新規投稿を作成する。
	Create(ctx context.Context, post *model.Post) error

	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// Update は既存投稿を上書き更新する。
	Update(ctx context.Context, post *model.Post) error

	// Delete は指定IDの投稿を削除する。
	Delete(ctx context.Context, id string) error

	// ListByAuthors は指定した投稿者集合の投稿をcreated_at降順で返す。
	// 投稿者集合が空の場合は空スライスを返す。
	ListByAuthors(ctx context.Context, authorIDs []string, limit int) ([]*model.Post, error)

	// ListTrending はsince以降に作成された投稿を
	// likes、comments、shares、views、created_atの各降順（辞書式）で返す。
	ListTrending(ctx context.Context, since time.Time, limit int) ([]*model.Post, error)

	// ListNearby は位置情報がcenterから半径radiusKM km以内（大円距離）の投稿を返す。
	ListNearby(ctx context.Context, center model.GeoPoint, radiusKM float64, limit int) ([]*model.Post, error)

	// ListExcludingAuthors は指定した投稿者集合「以外」の投稿をcreated_at降順で返す。
	ListExcludingAuthors(ctx context.Context, excludedAuthorIDs []string, limit int) ([]*model.Post, error)

	// PublishDueScheduled は公開予定時刻を過ぎた予約投稿を公開状態に遷移させ、件数を返す。
	PublishDueScheduled(ctx context.Context, now time.Time) (int64, error)
}

// StoryRepository はストーリーデータの永続化インターフェース。
type StoryRepository interface {
	// Create は新規ストーリーを作成する。
	Create(ctx context.Context, story *model.Story) error

	// ListActiveByAuthors は指定した投稿者集合の有効なストーリーをcreated_at降順で返す。
	// 有効 = is_archived=false かつ expires_at > now。投稿者情報をJOINして付与する。
	ListActiveByAuthors(ctx context.Context, authorIDs []string, now time.Time) ([]*model.Story, error)

	// ArchiveExpired は失効したストーリーをアーカイブ状態に遷移させ、件数を返す。
	ArchiveExpired(ctx context.Context, now time.Time) (int64, error)
}
