// Package events は投稿イベントのNATS経由の配信と購読を提供する。
//
// 投稿作成時に post.created イベントを発行し、ワーカーがそれを購読して
// 投稿者のフォロワーのフィードキャッシュを無効化する。
// イベント配信はベストエフォートであり、発行失敗は投稿作成を失敗させない。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hitoshi/tsunagu/internal/model"
)

// SubjectPostCreated は投稿作成イベントのNATSサブジェクト。
const SubjectPostCreated = "post.created"

// PostCreatedEvent は投稿作成イベントのペイロード。
// 発行側と購読側の暗黙の契約となるため、フィールドの削除・改名は互換性を壊す。
type PostCreatedEvent struct {
	PostID      string    `json:"post_id"`
	AuthorID    string    `json:"author_id"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// PostEventPublisher は投稿イベント発行のインターフェース。
type PostEventPublisher interface {
	// PublishPostCreated は投稿作成イベントを発行する。
	PublishPostCreated(ctx context.Context, post *model.Post) error
}

// NATSPublisher はNATSを使用した投稿イベントの発行実装。
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher はNATSPublisherを生成する。
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// PublishPostCreated は投稿作成イベントをpost.createdサブジェクトへ発行する。
func (p *NATSPublisher) PublishPostCreated(_ context.Context, post *model.Post) error {
	event := PostCreatedEvent{
		PostID:      post.ID,
		AuthorID:    post.AuthorID,
		ContentType: string(post.ContentType),
		CreatedAt:   post.CreatedAt,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("イベントのエンコードに失敗しました: %w", err)
	}

	if err := p.nc.Publish(SubjectPostCreated, data); err != nil {
		return fmt.Errorf("イベントの発行に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PostEventPublisher = (*NATSPublisher)(nil)
