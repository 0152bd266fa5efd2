package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/tsunagu/internal/model"
)

// PostgresStoryRepo はPostgreSQLを使用したストーリーリポジトリ。
type PostgresStoryRepo struct {
	db *sql.DB
}

// NewPostgresStoryRepo はPostgresStoryRepoを生成する。
func NewPostgresStoryRepo(db *sql.DB) *PostgresStoryRepo {
	return &PostgresStoryRepo{db: db}
}

// Create は新規ストーリーを作成する。
func (r *PostgresStoryRepo) Create(ctx context.Context, story *model.Story) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stories (id, author_id, media_url, media_type, is_archived, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		story.ID, story.AuthorID, story.MediaURL, story.MediaType,
		story.IsArchived, story.ExpiresAt, story.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ストーリーの作成に失敗しました: %w", err)
	}
	return nil
}

// ListActiveByAuthors は指定した投稿者集合の有効なストーリーをcreated_at降順で返す。
func (r *PostgresStoryRepo) ListActiveByAuthors(ctx context.Context, authorIDs []string, now time.Time) ([]*model.Story, error) {
	if len(authorIDs) == 0 {
		return []*model.Story{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.author_id, u.username, u.avatar_url,
		        s.media_url, s.media_type, s.is_archived, s.expires_at, s.created_at
		 FROM stories s
		 JOIN users u ON u.id = s.author_id
		 WHERE s.author_id = ANY($1)
		   AND s.is_archived = false
		   AND s.expires_at > $2
		 ORDER BY s.created_at DESC`,
		pq.Array(authorIDs), now,
	)
	if err != nil {
		return nil, fmt.Errorf("ストーリーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var stories []*model.Story
	for rows.Next() {
		story := &model.Story{Author: &model.AuthorRef{}}
		if err := rows.Scan(
			&story.ID, &story.AuthorID, &story.Author.Username, &story.Author.AvatarURL,
			&story.MediaURL, &story.MediaType, &story.IsArchived, &story.ExpiresAt, &story.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ストーリー行の読み取りに失敗しました: %w", err)
		}
		story.Author.ID = story.AuthorID
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ストーリー一覧の走査に失敗しました: %w", err)
	}

	return stories, nil
}

// ArchiveExpired は失効したストーリーをアーカイブ状態に遷移させ、件数を返す。
// 冪等: 対象がない場合でもエラーにならない。
func (r *PostgresStoryRepo) ArchiveExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE stories SET is_archived = true
		 WHERE is_archived = false AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("失効ストーリーのアーカイブに失敗しました: %w", err)
	}

	archived, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("アーカイブ件数の取得に失敗しました: %w", err)
	}
	return archived, nil
}

// compile-time interface check
var _ StoryRepository = (*PostgresStoryRepo)(nil)
