// Package feed はホームフィードの集約・ランキングロジックを提供する。
//
// 閲覧者のソーシャルグラフを起点に4つの独立したソース
// （social/nearby/trending/discovery）から投稿を収集し、
// スコア付け・重複排除・ソート・ページネーションを行ったうえで、
// 有効なストーリー一覧とともに1つの応答に組み立てる。
// 集約は純粋な読み取り計算であり、状態を一切変更しない。
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/tsunagu/internal/model"
	"github.com/hitoshi/tsunagu/internal/repository"
)

// Config はフィード集約の調整パラメータ。
type Config struct {
	SourceLimit      int           // 各ソースクエリの取得上限
	DefaultPage      int           // ページ番号のデフォルト値
	DefaultLimit     int           // 1ページあたりのデフォルト件数
	NearbyDistanceKM float64       // 近隣ソースの検索半径（km）
	TrendingWindow   time.Duration // トレンドソースの対象期間
}

// DefaultConfig はフィード集約のデフォルト設定を返す。
func DefaultConfig() Config {
	return Config{
		SourceLimit:      100,
		DefaultPage:      1,
		DefaultLimit:     20,
		NearbyDistanceKM: 20,
		TrendingWindow:   24 * time.Hour,
	}
}

// RankedFeedCache はランキング済みフィード（ページ適用前）のキャッシュインターフェース。
// キャッシュは任意の高速化レイヤーであり、取得失敗はミスとして扱われ
// フィード生成を失敗させない。
type RankedFeedCache interface {
	// GetRanked は閲覧者のランキング済みフィードを取得する。
	// キャッシュミスの場合は(nil, false, nil)を返す。
	GetRanked(ctx context.Context, viewerID string) ([]model.ScoredPost, bool, error)

	// SetRanked は閲覧者のランキング済みフィードを保存する。
	SetRanked(ctx context.Context, viewerID string, ranked []model.ScoredPost) error
}

// MetricsRecorder はフィード集約のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordFeedRequest(duration time.Duration)
	RecordSourcePosts(source model.FeedSource, count int)
	RecordCacheHit()
	RecordCacheMiss()
}

// Service はホームフィード集約のサービス層。
// 依存する3つのストア（ユーザー・投稿・ストーリー）はすべて読み取り専用で使用する。
type Service struct {
	userRepo  repository.UserRepository
	postRepo  repository.PostRepository
	storyRepo repository.StoryRepository
	cache     RankedFeedCache // nilの場合はキャッシュ無効
	metrics   MetricsRecorder // nilの場合は記録しない
	config    Config
	logger    *slog.Logger

	// now はテストで時刻を固定するために差し替え可能にしている。
	now func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// cacheとmetricsはnilを許容する。
func NewService(
	userRepo repository.UserRepository,
	postRepo repository.PostRepository,
	storyRepo repository.StoryRepository,
	cache RankedFeedCache,
	metrics MetricsRecorder,
	config Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		userRepo:  userRepo,
		postRepo:  postRepo,
		storyRepo: storyRepo,
		cache:     cache,
		metrics:   metrics,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// ProduceFeed は閲覧者のホームフィードを生成する。
//
// 4つのソースクエリとストーリークエリはerrgroupで並行実行され、
// すべて成功した場合のみ応答を組み立てる（部分的な結果は返さない）。
// 例外として、閲覧者に位置情報がない場合のみnearbyソースは
// 設計どおりスキップされる（失敗によるスキップではない）。
//
// pageとlimitは正でない場合デフォルト値（1/20）に補正される。
func (s *Service) ProduceFeed(ctx context.Context, viewerID string, page, limit int) (*model.FeedPage, error) {
	start := s.now()

	if page < 1 {
		page = s.config.DefaultPage
	}
	if limit < 1 {
		limit = s.config.DefaultLimit
	}

	// 1. 閲覧者とソーシャルグラフの解決
	viewer, err := s.userRepo.FindByID(ctx, viewerID)
	if err != nil {
		return nil, s.feedFailed(viewerID, fmt.Errorf("閲覧者の取得に失敗しました: %w", err))
	}
	if viewer == nil {
		return nil, model.NewUserNotFoundError()
	}

	graph, err := s.userRepo.FindSocialGraph(ctx, viewerID)
	if err != nil {
		return nil, s.feedFailed(viewerID, fmt.Errorf("ソーシャルグラフの取得に失敗しました: %w", err))
	}
	feedUserIDs := graph.FeedUserIDs()

	// 2. ランキング済みフィードのキャッシュ確認
	now := s.now()
	ranked, fromCache := s.lookupCache(ctx, viewerID)

	// 3. ソースクエリとストーリークエリの並行ファンアウト
	// どれか1つでも失敗したら全体を失敗させる（all-or-nothing）。
	g, gctx := errgroup.WithContext(ctx)

	var socialPosts, nearbyPosts, trendingPosts, discoveryPosts []*model.Post
	if !fromCache {
		g.Go(func() error {
			var err error
			socialPosts, err = s.postRepo.ListByAuthors(gctx, feedUserIDs, s.config.SourceLimit)
			if err != nil {
				return fmt.Errorf("socialソースの取得に失敗しました: %w", err)
			}
			return nil
		})

		// nearbyは閲覧者に位置情報がある場合のみ発行する
		if viewer.Location != nil {
			center := *viewer.Location
			g.Go(func() error {
				var err error
				nearbyPosts, err = s.postRepo.ListNearby(gctx, center, s.config.NearbyDistanceKM, s.config.SourceLimit)
				if err != nil {
					return fmt.Errorf("nearbyソースの取得に失敗しました: %w", err)
				}
				return nil
			})
		}

		g.Go(func() error {
			var err error
			trendingPosts, err = s.postRepo.ListTrending(gctx, now.Add(-s.config.TrendingWindow), s.config.SourceLimit)
			if err != nil {
				return fmt.Errorf("trendingソースの取得に失敗しました: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			// 閲覧者自身の投稿もディスカバリーから除外する
			excluded := append(append([]string{}, feedUserIDs...), viewerID)
			var err error
			discoveryPosts, err = s.postRepo.ListExcludingAuthors(gctx, excluded, s.config.SourceLimit)
			if err != nil {
				return fmt.Errorf("discoveryソースの取得に失敗しました: %w", err)
			}
			return nil
		})
	}

	// ストーリーは閲覧者自身とフォロー中ユーザーのみ対象。
	// フォローバックしていないフォロワーのストーリーは含めない。
	var stories []*model.Story
	g.Go(func() error {
		storyUserIDs := append([]string{viewerID}, graph.Following...)
		var err error
		stories, err = s.storyRepo.ListActiveByAuthors(gctx, storyUserIDs, now)
		if err != nil {
			return fmt.Errorf("ストーリーの取得に失敗しました: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, s.feedFailed(viewerID, err)
	}

	// 4. スコア付け・重複排除・ソート
	if !fromCache {
		s.recordSources(socialPosts, nearbyPosts, trendingPosts, discoveryPosts)
		ranked = Rank(socialPosts, nearbyPosts, trendingPosts, discoveryPosts)
		s.storeCache(ctx, viewerID, ranked)
	}

	// 5. ページネーション
	pagePosts, pagination := paginate(ranked, page, limit)

	if s.metrics != nil {
		s.metrics.RecordFeedRequest(s.now().Sub(start))
	}

	return &model.FeedPage{
		Posts:      pagePosts,
		Stories:    stories,
		Pagination: pagination,
	}, nil
}

// Rank は4ソースの投稿をスコア付け・重複排除し、スコア降順にソートして返す。
//
// 重複排除は連結順（Social→Nearby→Trending→Discovery）の先勝ちで行う。
// この連結順はベーススコアの降順と一致させてあるため、複数ソースに現れた
// 投稿は実質的に最高スコアのコピーが保持される。ソースの追加や並び替えで
// 連結順とスコア順が乖離するとこの性質は壊れるので、変更時は両方を揃えること。
func Rank(social, nearby, trending, discovery []*model.Post) []model.ScoredPost {
	sources := []struct {
		source model.FeedSource
		posts  []*model.Post
	}{
		{model.FeedSourceSocial, social},
		{model.FeedSourceNearby, nearby},
		{model.FeedSourceTrending, trending},
		{model.FeedSourceDiscovery, discovery},
	}

	// リクエストスコープの重複排除セット。集約呼び出しの終了とともに破棄される。
	seen := make(map[string]struct{})
	var ranked []model.ScoredPost
	for _, src := range sources {
		for _, post := range src.posts {
			if _, ok := seen[post.ID]; ok {
				continue
			}
			seen[post.ID] = struct{}{}
			ranked = append(ranked, model.ScoredPost{
				Post:   post,
				Score:  Score(src.source, post.ContentType),
				Source: src.source,
			})
		}
	}

	// スコア降順、同点はcreated_at降順
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Post.CreatedAt.After(ranked[j].Post.CreatedAt)
	})

	return ranked
}

// paginate はランキング済みフィードにオフセットページネーションを適用する。
// 範囲外のページを要求された場合はエラーにせず空スライスを返す。
// totalはスライス前の全件数から計算する。
func paginate(ranked []model.ScoredPost, page, limit int) ([]model.ScoredPost, model.Pagination) {
	total := len(ranked)
	totalPages := (total + limit - 1) / limit

	skip := (page - 1) * limit
	end := skip + limit
	if skip > total {
		skip = total
	}
	if end > total {
		end = total
	}

	return ranked[skip:end], model.Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// lookupCache はキャッシュからランキング済みフィードを取得する。
// キャッシュ無効・ミス・取得エラーのいずれもミスとして扱う。
func (s *Service) lookupCache(ctx context.Context, viewerID string) ([]model.ScoredPost, bool) {
	if s.cache == nil {
		return nil, false
	}

	ranked, ok, err := s.cache.GetRanked(ctx, viewerID)
	if err != nil {
		s.logger.Warn("feed cache lookup failed",
			slog.String("viewer_id", viewerID),
			slog.String("error", err.Error()),
		)
		s.recordCacheMiss()
		return nil, false
	}
	if !ok {
		s.recordCacheMiss()
		return nil, false
	}

	if s.metrics != nil {
		s.metrics.RecordCacheHit()
	}
	return ranked, true
}

// storeCache はランキング済みフィードをキャッシュへ保存する。
// 保存失敗はフィード生成を失敗させず、警告ログのみ残す。
func (s *Service) storeCache(ctx context.Context, viewerID string, ranked []model.ScoredPost) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetRanked(ctx, viewerID, ranked); err != nil {
		s.logger.Warn("feed cache store failed",
			slog.String("viewer_id", viewerID),
			slog.String("error", err.Error()),
		)
	}
}

// feedFailed は内部エラーをログに残し、固定のフィード生成失敗エラーに差し替える。
// どのソースが落ちたかをクライアントへ漏らさない。
func (s *Service) feedFailed(viewerID string, err error) error {
	s.logger.Error("feed generation failed",
		slog.String("viewer_id", viewerID),
		slog.String("error", err.Error()),
	)
	return model.NewFeedFailedError()
}

func (s *Service) recordCacheMiss() {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss()
	}
}

func (s *Service) recordSources(social, nearby, trending, discovery []*model.Post) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordSourcePosts(model.FeedSourceSocial, len(social))
	s.metrics.RecordSourcePosts(model.FeedSourceNearby, len(nearby))
	s.metrics.RecordSourcePosts(model.FeedSourceTrending, len(trending))
	s.metrics.RecordSourcePosts(model.FeedSourceDiscovery, len(discovery))
}
