package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/tsunagu/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	var longitude, latitude sql.NullFloat64

	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, full_name, bio, avatar_url, is_business_profile,
		        longitude, latitude, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName, &user.Bio,
		&user.AvatarURL, &user.IsBusinessProfile,
		&longitude, &latitude, &user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	// 位置情報はペア制約によりどちらか一方のみのNULLはない
	if longitude.Valid && latitude.Valid {
		user.Location = &model.GeoPoint{
			Longitude: longitude.Float64,
			Latitude:  latitude.Float64,
		}
	}

	return user, nil
}

// FindSocialGraph は指定ユーザーのフォロー関係を取得する。
func (r *PostgresUserRepo) FindSocialGraph(ctx context.Context, userID string) (*model.SocialGraph, error) {
	graph := &model.SocialGraph{}

	rows, err := r.db.QueryContext(ctx,
		`SELECT followee_id FROM follows WHERE follower_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("フォロー中ユーザーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("フォロー中ユーザー行の読み取りに失敗しました: %w", err)
		}
		graph.Following = append(graph.Following, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フォロー中ユーザーの走査に失敗しました: %w", err)
	}

	graph.Followers, err = r.ListFollowerIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	return graph, nil
}

// ListFollowerIDs は指定ユーザーをフォローしているユーザーIDの一覧を返す。
func (r *PostgresUserRepo) ListFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT follower_id FROM follows WHERE followee_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("フォロワーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("フォロワー行の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フォロワーの走査に失敗しました: %w", err)
	}

	return ids, nil
}

// ListByIDs は指定したID集合のユーザーをusername昇順で返す。
func (r *PostgresUserRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	users := []*model.User{}
	if len(ids) == 0 {
		return users, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, full_name, bio, avatar_url, is_business_profile, created_at
		 FROM users WHERE id = ANY($1)
		 ORDER BY username ASC`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(
			&user.ID, &user.Username, &user.FullName, &user.Bio,
			&user.AvatarURL, &user.IsBusinessProfile, &user.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗しました: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の走査に失敗しました: %w", err)
	}

	return users, nil
}

// UpdateProfile はユーザーのプロフィール情報を更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	var longitude, latitude sql.NullFloat64
	if user.Location != nil {
		longitude = sql.NullFloat64{Float64: user.Location.Longitude, Valid: true}
		latitude = sql.NullFloat64{Float64: user.Location.Latitude, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET
		    full_name = $2, bio = $3, avatar_url = $4, is_business_profile = $5,
		    longitude = $6, latitude = $7, updated_at = $8
		 WHERE id = $1`,
		user.ID, user.FullName, user.Bio, user.AvatarURL, user.IsBusinessProfile,
		longitude, latitude, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return model.NewUserNotFoundError()
	}

	return nil
}

// Follow はフォロー関係を作成する。既にフォロー済みの場合は何もしない（冪等）。
func (r *PostgresUserRepo) Follow(ctx context.Context, followerID, followeeID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO follows (follower_id, followee_id)
		 VALUES ($1, $2)
		 ON CONFLICT (follower_id, followee_id) DO NOTHING`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("フォローの作成に失敗しました: %w", err)
	}
	return nil
}

// Unfollow はフォロー関係を削除する。フォローしていない場合は何もしない（冪等）。
func (r *PostgresUserRepo) Unfollow(ctx context.Context, followerID, followeeID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("フォロー解除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
