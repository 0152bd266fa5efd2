package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/tsunagu/internal/model"
)

// FeedServiceInterface はフィードハンドラーが必要とするサービスインターフェース。
type FeedServiceInterface interface {
	// ProduceFeed はホームフィードを集約し、ページ分割して返す。
	ProduceFeed(ctx context.Context, viewerID string, page, limit int) (*model.FeedPage, error)
}

// FeedHandler はホームフィードのHTTPハンドラー。
type FeedHandler struct {
	service FeedServiceInterface
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(service FeedServiceInterface) *FeedHandler {
	return &FeedHandler{service: service}
}

// feedEnvelope はホームフィード応答のデータ部。
type feedEnvelope struct {
	Stories    []storyResponse    `json:"stories"`
	Feed       []postResponse     `json:"feed"`
	Pagination paginationResponse `json:"pagination"`
}

// GetFeed はホームフィードを取得する。
// GET /api/feed?page=N&limit=M
// page/limitは省略可能。パース失敗や0以下の値は拒否せず、デフォルト値に落とす。
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	page := parsePositiveInt(r.URL.Query().Get("page"))
	limit := parsePositiveInt(r.URL.Query().Get("limit"))

	feedPage, err := h.service.ProduceFeed(r.Context(), viewerID, page, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, toFeedEnvelope(feedPage), "ホームフィードを取得しました。")
}

// parsePositiveInt は文字列を正の整数としてパースする。
// 空文字・パース失敗・0以下の値はすべて0を返し、デフォルト値の適用はサービス層に委ねる。
func parsePositiveInt(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// toFeedEnvelope はフィードページを応答フォーマットに変換する。
// ScoredPostのスコアと取得元ソースはここで落とす。
func toFeedEnvelope(page *model.FeedPage) feedEnvelope {
	stories := make([]storyResponse, 0, len(page.Stories))
	for _, story := range page.Stories {
		stories = append(stories, toStoryResponse(story))
	}

	posts := make([]postResponse, 0, len(page.Posts))
	for _, scored := range page.Posts {
		posts = append(posts, toPostResponse(scored.Post))
	}

	return feedEnvelope{
		Stories: stories,
		Feed:    posts,
		Pagination: paginationResponse{
			Page:       page.Pagination.Page,
			Limit:      page.Pagination.Limit,
			Total:      page.Pagination.Total,
			TotalPages: page.Pagination.TotalPages,
		},
	}
}
