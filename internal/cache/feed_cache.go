// Package cache はRedisを使用したランキング済みフィードのキャッシュを提供する。
//
// ページ適用前のランキング済みフィードを閲覧者ごとに短いTTLで保持し、
// 連続したページ要求でのソースクエリの再実行を避ける。
// 投稿イベント（post.created）を受けたワーカーが投稿者のフォロワー分を
// まとめて無効化する。
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/tsunagu/internal/model"
)

// invalidateBatchSize は一括無効化の1パイプラインあたりのキー数。
// フォロワー数が大きいユーザーの投稿でRedisへの巨大な単発コマンドを避ける。
const invalidateBatchSize = 1000

// FeedCache はRedisバックエンドのランキング済みフィードキャッシュ。
type FeedCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFeedCache はFeedCacheを生成する。
func NewFeedCache(client *redis.Client, ttl time.Duration) *FeedCache {
	return &FeedCache{
		client: client,
		ttl:    ttl,
	}
}

// rankedKey は閲覧者のキャッシュキーを返す。
func rankedKey(viewerID string) string {
	return "feed:ranked:" + viewerID
}

// GetRanked は閲覧者のランキング済みフィードを取得する。
// キーが存在しない場合は(nil, false, nil)を返す。
func (c *FeedCache) GetRanked(ctx context.Context, viewerID string) ([]model.ScoredPost, bool, error) {
	data, err := c.client.Get(ctx, rankedKey(viewerID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("フィードキャッシュの取得に失敗しました: %w", err)
	}

	var ranked []model.ScoredPost
	if err := json.Unmarshal(data, &ranked); err != nil {
		// 壊れたエントリはミスとして扱い、次のSetRankedで上書きされる
		return nil, false, fmt.Errorf("フィードキャッシュのデコードに失敗しました: %w", err)
	}

	return ranked, true, nil
}

// SetRanked は閲覧者のランキング済みフィードをTTL付きで保存する。
func (c *FeedCache) SetRanked(ctx context.Context, viewerID string, ranked []model.ScoredPost) error {
	data, err := json.Marshal(ranked)
	if err != nil {
		return fmt.Errorf("フィードキャッシュのエンコードに失敗しました: %w", err)
	}

	if err := c.client.Set(ctx, rankedKey(viewerID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("フィードキャッシュの保存に失敗しました: %w", err)
	}
	return nil
}

// InvalidateViewers は複数の閲覧者のキャッシュをバッチで無効化する。
// フォロワー数の大きい投稿者に備えてパイプラインをチャンク実行する。
// 存在しないキーの削除は無視される（冪等）。
func (c *FeedCache) InvalidateViewers(ctx context.Context, viewerIDs []string) error {
	for i := 0; i < len(viewerIDs); i += invalidateBatchSize {
		end := i + invalidateBatchSize
		if end > len(viewerIDs) {
			end = len(viewerIDs)
		}

		pipe := c.client.Pipeline()
		for _, id := range viewerIDs[i:end] {
			pipe.Del(ctx, rankedKey(id))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("フィードキャッシュの無効化に失敗しました: %w", err)
		}
	}
	return nil
}
