package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/tsunagu/internal/model"
)

// feedVisibleCondition はフィードに掲載可能な投稿の条件。
// すべてのソースクエリ（social/trending/nearby/discovery）で共通に適用される。
const feedVisibleCondition = `p.status = 'published'
	   AND p.content_type IN ('normal', 'service', 'product', 'business')`

// postSelectColumns は投稿一覧クエリで取得するカラム。投稿者情報をJOINして含む。
const postSelectColumns = `p.id, p.author_id, u.username, u.avatar_url,
	       p.content_type, p.caption, p.description, p.media, p.tags, p.customization,
	       p.likes, p.comments, p.shares, p.views,
	       p.status, p.scheduled_at, p.published_at, p.created_at, p.updated_at`

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// Create は新規投稿を作成する。
// customization内の位置情報は地理検索用にlongitude/latitudeカラムへ非正規化して保存する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	mediaJSON, err := json.Marshal(post.Media)
	if err != nil {
		return fmt.Errorf("メディア情報のエンコードに失敗しました: %w", err)
	}
	customizationJSON, err := json.Marshal(post.Customization)
	if err != nil {
		return fmt.Errorf("カスタマイズ情報のエンコードに失敗しました: %w", err)
	}

	var longitude, latitude sql.NullFloat64
	if loc := post.Customization.Location(); loc != nil {
		longitude = sql.NullFloat64{Float64: loc.Longitude, Valid: true}
		latitude = sql.NullFloat64{Float64: loc.Latitude, Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, content_type, caption, description,
		                    media, tags, customization, longitude, latitude,
		                    likes, comments, shares, views,
		                    status, scheduled_at, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		         $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		post.ID, post.AuthorID, post.ContentType, post.Caption, post.Description,
		mediaJSON, pq.Array(post.Tags), customizationJSON, longitude, latitude,
		post.Engagement.Likes, post.Engagement.Comments, post.Engagement.Shares, post.Engagement.Views,
		post.Status, post.ScheduledAt, post.PublishedAt, post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postSelectColumns+`
		 FROM posts p
		 JOIN users u ON u.id = p.author_id
		 WHERE p.id = $1`,
		id,
	)

	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	return post, nil
}

// Update は既存投稿を上書き更新する。エンゲージメントカウンタは更新対象に含めない。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post) error {
	mediaJSON, err := json.Marshal(post.Media)
	if err != nil {
		return fmt.Errorf("メディア情報のエンコードに失敗しました: %w", err)
	}
	customizationJSON, err := json.Marshal(post.Customization)
	if err != nil {
		return fmt.Errorf("カスタマイズ情報のエンコードに失敗しました: %w", err)
	}

	var longitude, latitude sql.NullFloat64
	if loc := post.Customization.Location(); loc != nil {
		longitude = sql.NullFloat64{Float64: loc.Longitude, Valid: true}
		latitude = sql.NullFloat64{Float64: loc.Latitude, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET
		    caption = $2, description = $3, media = $4, tags = $5, customization = $6,
		    longitude = $7, latitude = $8, status = $9, scheduled_at = $10,
		    published_at = $11, updated_at = $12
		 WHERE id = $1`,
		post.ID, post.Caption, post.Description, mediaJSON, pq.Array(post.Tags),
		customizationJSON, longitude, latitude, post.Status, post.ScheduledAt,
		post.PublishedAt, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return model.NewPostNotFoundError(post.ID)
	}
	return nil
}

// Delete は指定IDの投稿を削除する。
func (r *PostgresPostRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return model.NewPostNotFoundError(id)
	}
	return nil
}

// ListByAuthors は指定した投稿者集合の投稿をcreated_at降順で返す。
func (r *PostgresPostRepo) ListByAuthors(ctx context.Context, authorIDs []string, limit int) ([]*model.Post, error) {
	// 投稿者集合が空の場合はDBへ問い合わせない
	if len(authorIDs) == 0 {
		return []*model.Post{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postSelectColumns+`
		 FROM posts p
		 JOIN users u ON u.id = p.author_id
		 WHERE `+feedVisibleCondition+`
		   AND p.author_id = ANY($1)
		 ORDER BY p.created_at DESC
		 LIMIT $2`,
		pq.Array(authorIDs), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ソーシャル投稿の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// ListTrending はsince以降に作成された投稿をエンゲージメントの辞書式降順で返す。
// タイブレークの順序: likes → comments → shares → views → created_at。
func (r *PostgresPostRepo) ListTrending(ctx context.Context, since time.Time, limit int) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postSelectColumns+`
		 FROM posts p
		 JOIN users u ON u.id = p.author_id
		 WHERE `+feedVisibleCondition+`
		   AND p.created_at >= $1
		 ORDER BY p.likes DESC, p.comments DESC, p.shares DESC, p.views DESC, p.created_at DESC
		 LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("トレンド投稿の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// ListNearby は位置情報がcenterから半径radiusKM km以内の投稿を返す。
// 距離はハーバーサイン式による大円距離で計算する。
// acosの定義域誤差を避けるため内積をLEAST/GREATESTでクランプする。
func (r *PostgresPostRepo) ListNearby(ctx context.Context, center model.GeoPoint, radiusKM float64, limit int) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postSelectColumns+`
		 FROM posts p
		 JOIN users u ON u.id = p.author_id
		 WHERE `+feedVisibleCondition+`
		   AND p.longitude IS NOT NULL
		   AND 6371 * acos(LEAST(1.0, GREATEST(-1.0,
		         cos(radians($1)) * cos(radians(p.latitude)) * cos(radians(p.longitude) - radians($2))
		       + sin(radians($1)) * sin(radians(p.latitude))
		     ))) <= $3
		 LIMIT $4`,
		center.Latitude, center.Longitude, radiusKM, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("近隣投稿の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// ListExcludingAuthors は指定した投稿者集合「以外」の投稿をcreated_at降順で返す。
func (r *PostgresPostRepo) ListExcludingAuthors(ctx context.Context, excludedAuthorIDs []string, limit int) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postSelectColumns+`
		 FROM posts p
		 JOIN users u ON u.id = p.author_id
		 WHERE `+feedVisibleCondition+`
		   AND NOT (p.author_id = ANY($1))
		 ORDER BY p.created_at DESC
		 LIMIT $2`,
		pq.Array(excludedAuthorIDs), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ディスカバリー投稿の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// PublishDueScheduled は公開予定時刻を過ぎた予約投稿を公開状態に遷移させ、件数を返す。
// 冪等: 対象がない場合でもエラーにならない。
func (r *PostgresPostRepo) PublishDueScheduled(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET status = 'published', published_at = $1, updated_at = $1
		 WHERE status = 'scheduled' AND scheduled_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("予約投稿の公開に失敗しました: %w", err)
	}

	published, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("公開件数の取得に失敗しました: %w", err)
	}
	return published, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPost は投稿1件分のカラムをスキャンしてmodel.Postを構築する。
func scanPost(row rowScanner) (*model.Post, error) {
	post := &model.Post{Author: &model.AuthorRef{}}
	var mediaJSON, customizationJSON []byte
	var tags pq.StringArray
	var scheduledAt, publishedAt sql.NullTime

	err := row.Scan(
		&post.ID, &post.AuthorID, &post.Author.Username, &post.Author.AvatarURL,
		&post.ContentType, &post.Caption, &post.Description,
		&mediaJSON, &tags, &customizationJSON,
		&post.Engagement.Likes, &post.Engagement.Comments,
		&post.Engagement.Shares, &post.Engagement.Views,
		&post.Status, &scheduledAt, &publishedAt, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	post.Author.ID = post.AuthorID
	post.Tags = tags
	if scheduledAt.Valid {
		post.ScheduledAt = &scheduledAt.Time
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}

	if err := json.Unmarshal(mediaJSON, &post.Media); err != nil {
		return nil, fmt.Errorf("メディア情報のデコードに失敗しました: %w", err)
	}
	if err := json.Unmarshal(customizationJSON, &post.Customization); err != nil {
		return nil, fmt.Errorf("カスタマイズ情報のデコードに失敗しました: %w", err)
	}

	return post, nil
}

// scanPosts は複数行の投稿をスキャンする。
func scanPosts(rows *sql.Rows) ([]*model.Post, error) {
	var posts []*model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("投稿行の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿一覧の走査に失敗しました: %w", err)
	}
	return posts, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
