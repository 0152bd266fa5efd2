package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/tsunagu/internal/model"
)

type mockUserRepository struct {
	findByIDFunc        func(ctx context.Context, id string) (*model.User, error)
	findSocialGraphFunc func(ctx context.Context, userID string) (*model.SocialGraph, error)
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockUserRepository) FindSocialGraph(ctx context.Context, userID string) (*model.SocialGraph, error) {
	if m.findSocialGraphFunc == nil {
		return &model.SocialGraph{}, nil
	}
	return m.findSocialGraphFunc(ctx, userID)
}

func (m *mockUserRepository) ListFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

func (m *mockUserRepository) ListByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	return nil, nil
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, user *model.User) error {
	return nil
}

func (m *mockUserRepository) Follow(ctx context.Context, followerID, followeeID string) error {
	return nil
}

func (m *mockUserRepository) Unfollow(ctx context.Context, followerID, followeeID string) error {
	return nil
}

type mockPostRepository struct {
	listByAuthorsFunc  func(ctx context.Context, authorIDs []string, limit int) ([]*model.Post, error)
	listTrendingFunc   func(ctx context.Context, since time.Time, limit int) ([]*model.Post, error)
	listNearbyFunc     func(ctx context.Context, center model.GeoPoint, radiusKM float64, limit int) ([]*model.Post, error)
	listExcludingFunc  func(ctx context.Context, excludedAuthorIDs []string, limit int) ([]*model.Post, error)
	nearbyCalls        atomic.Int32
	listByAuthorsCalls atomic.Int32
}

func (m *mockPostRepository) Create(ctx context.Context, post *model.Post) error { return nil }

func (m *mockPostRepository) FindByID(ctx context.Context, id string) (*model.Post, error) {
	return nil, nil
}

func (m *mockPostRepository) Update(ctx context.Context, post *model.Post) error { return nil }

func (m *mockPostRepository) Delete(ctx context.Context, id string) error { return nil }

func (m *mockPostRepository) ListByAuthors(ctx context.Context, authorIDs []string, limit int) ([]*model.Post, error) {
	m.listByAuthorsCalls.Add(1)
	if m.listByAuthorsFunc == nil {
		return nil, nil
	}
	return m.listByAuthorsFunc(ctx, authorIDs, limit)
}

func (m *mockPostRepository) ListTrending(ctx context.Context, since time.Time, limit int) ([]*model.Post, error) {
	if m.listTrendingFunc == nil {
		return nil, nil
	}
	return m.listTrendingFunc(ctx, since, limit)
}

func (m *mockPostRepository) ListNearby(ctx context.Context, center model.GeoPoint, radiusKM float64, limit int) ([]*model.Post, error) {
	m.nearbyCalls.Add(1)
	if m.listNearbyFunc == nil {
		return nil, nil
	}
	return m.listNearbyFunc(ctx, center, radiusKM, limit)
}

func (m *mockPostRepository) ListExcludingAuthors(ctx context.Context, excludedAuthorIDs []string, limit int) ([]*model.Post, error) {
	if m.listExcludingFunc == nil {
		return nil, nil
	}
	return m.listExcludingFunc(ctx, excludedAuthorIDs, limit)
}

func (m *mockPostRepository) PublishDueScheduled(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type mockStoryRepository struct {
	listActiveFunc func(ctx context.Context, authorIDs []string, now time.Time) ([]*model.Story, error)
}

func (m *mockStoryRepository) Create(ctx context.Context, story *model.Story) error { return nil }

func (m *mockStoryRepository) ListActiveByAuthors(ctx context.Context, authorIDs []string, now time.Time) ([]*model.Story, error) {
	if m.listActiveFunc == nil {
		return nil, nil
	}
	return m.listActiveFunc(ctx, authorIDs, now)
}

func (m *mockStoryRepository) ArchiveExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type mockRankedCache struct {
	getFunc func(ctx context.Context, viewerID string) ([]model.ScoredPost, bool, error)
	setFunc func(ctx context.Context, viewerID string, ranked []model.ScoredPost) error
	stored  []model.ScoredPost
}

func (m *mockRankedCache) GetRanked(ctx context.Context, viewerID string) ([]model.ScoredPost, bool, error) {
	if m.getFunc == nil {
		return nil, false, nil
	}
	return m.getFunc(ctx, viewerID)
}

func (m *mockRankedCache) SetRanked(ctx context.Context, viewerID string, ranked []model.ScoredPost) error {
	if m.setFunc != nil {
		return m.setFunc(ctx, viewerID, ranked)
	}
	m.stored = ranked
	return nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newPost(id string, contentType model.ContentType, createdAt time.Time) *model.Post {
	return &model.Post{
		ID:          id,
		AuthorID:    "author-" + id,
		ContentType: contentType,
		CreatedAt:   createdAt,
	}
}

func newTestService(userRepo *mockUserRepository, postRepo *mockPostRepository, storyRepo *mockStoryRepository, cache RankedFeedCache) *Service {
	s := NewService(userRepo, postRepo, storyRepo, cache, nil, DefaultConfig(), newTestLogger())
	s.now = func() time.Time { return testNow }
	return s
}

func defaultViewerRepo() *mockUserRepository {
	return &mockUserRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Username: "viewer"}, nil
		},
	}
}

func TestRank_RemovesDuplicatesFirstSeenWins(t *testing.T) {
	shared := newPost("p1", model.ContentTypeNormal, testNow)
	social := []*model.Post{shared}
	trending := []*model.Post{shared, newPost("p2", model.ContentTypeNormal, testNow)}

	ranked := Rank(social, nil, trending, nil)

	if len(ranked) != 2 {
		t.Fatalf("len(ranked) = %d, want 2", len(ranked))
	}

	seen := make(map[string]int)
	for _, sp := range ranked {
		seen[sp.Post.ID]++
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("post %s appears %d times, want 1", id, count)
		}
	}

	// 複数ソースに現れた投稿は最初に現れたソース（=最高スコア）のコピーを保持する
	for _, sp := range ranked {
		if sp.Post.ID == "p1" {
			if sp.Source != model.FeedSourceSocial {
				t.Errorf("p1 source = %s, want social", sp.Source)
			}
			if sp.Score != 4.1 {
				t.Errorf("p1 score = %v, want 4.1", sp.Score)
			}
		}
	}
}

func TestRank_SortsByScoreDescending(t *testing.T) {
	social := []*model.Post{
		newPost("normal", model.ContentTypeNormal, testNow),
		newPost("product", model.ContentTypeProduct, testNow),
	}
	trending := []*model.Post{
		newPost("trending-business", model.ContentTypeBusiness, testNow),
	}

	ranked := Rank(social, nil, trending, nil)

	for i := 1; i < len(ranked); i++ {
		if ranked[i-1].Score < ranked[i].Score {
			t.Errorf("ranked[%d].Score = %v < ranked[%d].Score = %v, want descending",
				i-1, ranked[i-1].Score, i, ranked[i].Score)
		}
	}

	if ranked[0].Post.ID != "product" {
		t.Errorf("ranked[0] = %s, want product", ranked[0].Post.ID)
	}
}

func TestRank_TieBreaksByCreatedAtDescending(t *testing.T) {
	older := newPost("older", model.ContentTypeNormal, testNow.Add(-2*time.Hour))
	newer := newPost("newer", model.ContentTypeNormal, testNow.Add(-1*time.Hour))
	social := []*model.Post{older, newer}

	ranked := Rank(social, nil, nil, nil)

	if ranked[0].Post.ID != "newer" || ranked[1].Post.ID != "older" {
		t.Errorf("tie-break order = [%s, %s], want [newer, older]",
			ranked[0].Post.ID, ranked[1].Post.ID)
	}
}

// TestRank_WorkedExample は代表的な4投稿の合成スコアと並び順を検証する。
func TestRank_WorkedExample(t *testing.T) {
	social := []*model.Post{
		newPost("a-normal", model.ContentTypeNormal, testNow.Add(-3*time.Hour)),
		newPost("a-product", model.ContentTypeProduct, testNow.Add(-2*time.Hour)),
		newPost("b-service", model.ContentTypeService, testNow.Add(-1*time.Hour)),
	}
	trending := []*model.Post{
		newPost("c-business", model.ContentTypeBusiness, testNow),
	}

	ranked := Rank(social, nil, trending, nil)

	wantOrder := []string{"a-product", "b-service", "a-normal", "c-business"}
	wantScores := []float64{4.5, 4.4, 4.1, 2.3}

	if len(ranked) != len(wantOrder) {
		t.Fatalf("len(ranked) = %d, want %d", len(ranked), len(wantOrder))
	}
	for i, want := range wantOrder {
		if ranked[i].Post.ID != want {
			t.Errorf("ranked[%d] = %s, want %s", i, ranked[i].Post.ID, want)
		}
		if ranked[i].Score != wantScores[i] {
			t.Errorf("ranked[%d].Score = %v, want %v", i, ranked[i].Score, wantScores[i])
		}
	}
}

func TestPaginate(t *testing.T) {
	ranked := make([]model.ScoredPost, 45)
	for i := range ranked {
		ranked[i] = model.ScoredPost{Post: newPost("p", model.ContentTypeNormal, testNow)}
	}

	tests := []struct {
		name           string
		page, limit    int
		wantLen        int
		wantTotalPages int
	}{
		{"1ページ目", 1, 20, 20, 3},
		{"最終ページは端数", 3, 20, 5, 3},
		{"範囲外ページは空", 4, 20, 0, 3},
		{"大きく範囲外でも空", 100, 20, 0, 3},
		{"件数ちょうどで割り切れる", 3, 15, 15, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts, pagination := paginate(ranked, tt.page, tt.limit)
			if len(posts) != tt.wantLen {
				t.Errorf("len(posts) = %d, want %d", len(posts), tt.wantLen)
			}
			if pagination.Total != 45 {
				t.Errorf("Total = %d, want 45", pagination.Total)
			}
			if pagination.TotalPages != tt.wantTotalPages {
				t.Errorf("TotalPages = %d, want %d", pagination.TotalPages, tt.wantTotalPages)
			}
			if pagination.Page != tt.page || pagination.Limit != tt.limit {
				t.Errorf("Pagination = %d/%d, want %d/%d",
					pagination.Page, pagination.Limit, tt.page, tt.limit)
			}
		})
	}
}

func TestProduceFeed_MergesSourcesAndPaginates(t *testing.T) {
	postRepo := &mockPostRepository{
		listByAuthorsFunc: func(ctx context.Context, authorIDs []string, limit int) ([]*model.Post, error) {
			return []*model.Post{
				newPost("a-product", model.ContentTypeProduct, testNow.Add(-2*time.Hour)),
				newPost("b-service", model.ContentTypeService, testNow.Add(-1*time.Hour)),
				newPost("a-normal", model.ContentTypeNormal, testNow.Add(-3*time.Hour)),
			}, nil
		},
		listTrendingFunc: func(ctx context.Context, since time.Time, limit int) ([]*model.Post, error) {
			return []*model.Post{
				newPost("c-business", model.ContentTypeBusiness, testNow),
			}, nil
		},
	}
	service := newTestService(defaultViewerRepo(), postRepo, &mockStoryRepository{}, nil)

	page, err := service.ProduceFeed(context.Background(), "viewer-1", 1, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(page.Posts) != 2 {
		t.Fatalf("len(Posts) = %d, want 2", len(page.Posts))
	}
	if page.Posts[0].Post.ID != "a-product" || page.Posts[1].Post.ID != "b-service" {
		t.Errorf("page 1 = [%s, %s], want [a-product, b-service]",
			page.Posts[0].Post.ID, page.Posts[1].Post.ID)
	}
	if page.Pagination.Total != 4 {
		t.Errorf("Total = %d, want 4", page.Pagination.Total)
	}
	if page.Pagination.TotalPages != 2 {
		t.Errorf("TotalPages = %d, want 2", page.Pagination.TotalPages)
	}
}

func TestProduceFeed_DefaultsNonPositivePagination(t *testing.T) {
	postRepo := &mockPostRepository{}
	service := newTestService(defaultViewerRepo(), postRepo, &mockStoryRepository{}, nil)

	page, err := service.ProduceFeed(context.Background(), "viewer-1", 0, -5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if page.Pagination.Page != 1 {
		t.Errorf("Page = %d, want default 1", page.Pagination.Page)
	}
	if page.Pagination.Limit != 20 {
		t.Errorf("Limit = %d, want default 20", page.Pagination.Limit)
	}
}

func TestProduceFeed_SkipsNearbyWithoutViewerLocation(t *testing.T) {
	userRepo := defaultViewerRepo()
	postRepo := &mockPostRepository{}
	service := newTestService(userRepo, postRepo, &mockStoryRepository{}, nil)

	_, err := service.ProduceFeed(context.Background(), "viewer-1", 1, 20)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := postRepo.nearbyCalls.Load(); got != 0 {
		t.Errorf("ListNearby called %d times, want 0", got)
	}
}

func TestProduceFeed_QueriesNearbyWithViewerLocation(t *testing.T) {
	shibuya := model.GeoPoint{Longitude: 139.7005, Latitude: 35.6595}
	userRepo := &mockUserRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Location: &shibuya}, nil
		},
	}

	var gotCenter model.GeoPoint
	var gotRadius float64
	postRepo := &mockPostRepository{
		listNearbyFunc: func(ctx context.Context, center model.GeoPoint, radiusKM float64, limit int) ([]*model.Post, error) {
			gotCenter = center
			gotRadius = radiusKM
			return []*model.Post{newPost("nearby-1", model.ContentTypeNormal, testNow)}, nil
		},
	}
	service := newTestService(userRepo, postRepo, &mockStoryRepository{}, nil)

	page, err := service.ProduceFeed(context.Background(), "viewer-1", 1, 20)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotCenter != shibuya {
		t.Errorf("center = %+v, want %+v", gotCenter, shibuya)
	}
	if gotRadius != 20 {
		t.Errorf("radiusKM = %v, want 20", gotRadius)
	}
	if len(page.Posts) != 1 || page.Posts[0].Post.ID != "nearby-1" {
		t.Errorf("Posts = %+v, want [nearby-1]", page.Posts)
	}
}

func TestProduceFeed_StoriesFromViewerAndFollowingOnly(t *testing.T) {
	userRepo := defaultViewerRepo()
	userRepo.findSocialGraphFunc = func(ctx context.Context, userID string) (*model.SocialGraph, error) {
		return &model.SocialGraph{
			Following: []string{"followee-1", "followee-2"},
			Followers: []string{"pure-follower"},
		}, nil
	}

	var gotStoryAuthors []string
	storyRepo := &mockStoryRepository{
		listActiveFunc: func(ctx context.Context, authorIDs []string, now time.Time) ([]*model.Story, error) {
			gotStoryAuthors = authorIDs
			return nil, nil
		},
	}
	service := newTestService(userRepo, &mockPostRepository{}, storyRepo, nil)

	_, err := service.ProduceFeed(context.Background(), "viewer-1", 1, 20)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []string{"viewer-1", "followee-1", "followee-2"}
	if len(gotStoryAuthors) != len(want) {
		t.Fatalf("story authors = %v, want %v", gotStoryAuthors, want)
	}
	for i, id := range want {
		if gotStoryAuthors[i] != id {
			t.Errorf("story authors[%d] = %s, want %s", i, gotStoryAuthors[i], id)
		}
	}
}

func TestProduceFeed_DiscoveryExcludesGraphAndViewer(t *testing.T) {
	userRepo := defaultViewerRepo()
	userRepo.findSocialGraphFunc = func(ctx context.Context, userID string) (*model.SocialGraph, error) {
		return &model.SocialGraph{
			Following: []string{"followee-1"},
			Followers: []string{"follower-1"},
		}, nil
	}

	var gotExcluded []string
	postRepo := &mockPostRepository{
		listExcludingFunc: func(ctx context.Context, excludedAuthorIDs []string, limit int) ([]*model.Post, error) {
			gotExcluded = excludedAuthorIDs
			return nil, nil
		},
	}
	service := newTestService(userRepo, postRepo, &mockStoryRepository{}, nil)

	_, err := service.ProduceFeed(context.Background(), "viewer-1", 1, 20)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := map[string]bool{"followee-1": true, "follower-1": true, "viewer-1": true}
	if len(gotExcluded) != len(want) {
		t.Fatalf("excluded = %v, want ids %v", gotExcluded, want)
	}
	for _, id := range gotExcluded {
		if !want[id] {
			t.Errorf("unexpected excluded id %s", id)
		}
	}
}

func TestProduceFeed_SourceFailureFailsWhole(t *testing.T) {
	postRepo := &mockPostRepository{
		listTrendingFunc: func(ctx context.Context, since time.Time, limit int) ([]*model.Post, error) {
			return nil, errors.New("db connection lost")
		},
	}
	service := newTestService(defaultViewerRepo(), postRepo, &mockStoryRepository{}, nil)

	_, err := service.ProduceFeed(context.Background(), "viewer-1", 1, 20)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != model.ErrCodeFeedFailed {
		t.Errorf("Code = %s, want %s", apiErr.Code, model.ErrCodeFeedFailed)
	}
}

func TestProduceFeed_ViewerNotFound(t *testing.T) {
	userRepo := &mockUserRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	service := newTestService(userRepo, &mockPostRepository{}, &mockStoryRepository{}, nil)

	_, err := service.ProduceFeed(context.Background(), "ghost", 1, 20)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("Code = %s, want %s", apiErr.Code, model.ErrCodeUserNotFound)
	}
}

func TestProduceFeed_CacheHitSkipsSourceQueries(t *testing.T) {
	cached := []model.ScoredPost{
		{Post: newPost("cached-1", model.ContentTypeProduct, testNow), Score: 4.5, Source: model.FeedSourceSocial},
	}
	cache := &mockRankedCache{
		getFunc: func(ctx context.Context, viewerID string) ([]model.ScoredPost, bool, error) {
			return cached, true, nil
		},
	}
	postRepo := &mockPostRepository{}
	service := newTestService(defaultViewerRepo(), postRepo, &mockStoryRepository{}, cache)

	page, err := service.ProduceFeed(context.Background(), "viewer-1", 1, 20)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := postRepo.listByAuthorsCalls.Load(); got != 0 {
		t.Errorf("ListByAuthors called %d times on cache hit, want 0", got)
	}
	if len(page.Posts) != 1 || page.Posts[0].Post.ID != "cached-1" {
		t.Errorf("Posts = %+v, want cached post", page.Posts)
	}
}

func TestProduceFeed_CacheMissStoresRanked(t *testing.T) {
	cache := &mockRankedCache{}
	postRepo := &mockPostRepository{
		listByAuthorsFunc: func(ctx context.Context, authorIDs []string, limit int) ([]*model.Post, error) {
			return []*model.Post{newPost("p1", model.ContentTypeNormal, testNow)}, nil
		},
	}
	service := newTestService(defaultViewerRepo(), postRepo, &mockStoryRepository{}, cache)

	_, err := service.ProduceFeed(context.Background(), "viewer-1", 1, 20)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(cache.stored) != 1 || cache.stored[0].Post.ID != "p1" {
		t.Errorf("cache stored = %+v, want ranked feed with p1", cache.stored)
	}
}

func TestProduceFeed_CacheErrorTreatedAsMiss(t *testing.T) {
	cache := &mockRankedCache{
		getFunc: func(ctx context.Context, viewerID string) ([]model.ScoredPost, bool, error) {
			return nil, false, errors.New("redis unavailable")
		},
	}
	postRepo := &mockPostRepository{
		listByAuthorsFunc: func(ctx context.Context, authorIDs []string, limit int) ([]*model.Post, error) {
			return []*model.Post{newPost("p1", model.ContentTypeNormal, testNow)}, nil
		},
	}
	service := newTestService(defaultViewerRepo(), postRepo, &mockStoryRepository{}, cache)

	page, err := service.ProduceFeed(context.Background(), "viewer-1", 1, 20)
	if err != nil {
		t.Fatalf("cache error should not fail feed, got %v", err)
	}
	if len(page.Posts) != 1 {
		t.Errorf("len(Posts) = %d, want 1 from source queries", len(page.Posts))
	}
}

func TestProduceFeed_OnlyAllowedContentTypes(t *testing.T) {
	postRepo := &mockPostRepository{
		listByAuthorsFunc: func(ctx context.Context, authorIDs []string, limit int) ([]*model.Post, error) {
			return []*model.Post{
				newPost("p1", model.ContentTypeNormal, testNow),
				newPost("p2", model.ContentTypeProduct, testNow),
			}, nil
		},
	}
	service := newTestService(defaultViewerRepo(), postRepo, &mockStoryRepository{}, nil)

	page, err := service.ProduceFeed(context.Background(), "viewer-1", 1, 20)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	for _, sp := range page.Posts {
		if !sp.Post.ContentType.Valid() {
			t.Errorf("post %s has content type %s outside the allowed set", sp.Post.ID, sp.Post.ContentType)
		}
	}
}
