package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tsunagu/internal/model"
	"github.com/hitoshi/tsunagu/internal/post"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	Create(ctx context.Context, authorID string, input post.CreateInput) (*model.Post, error)
	Get(ctx context.Context, postID string) (*model.Post, error)
	Update(ctx context.Context, userID, postID string, input post.UpdateInput) (*model.Post, error)
	Delete(ctx context.Context, userID, postID string) error
	PublishDraft(ctx context.Context, userID, postID string) (*model.Post, error)
	ListByAuthor(ctx context.Context, authorID string, limit int) ([]*model.Post, error)
	ListTrending(ctx context.Context, window time.Duration, limit int) ([]*model.Post, error)
	ListNearby(ctx context.Context, center model.GeoPoint, radiusKM float64, limit int) ([]*model.Post, error)
}

// PostHandler は投稿管理のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

// createPostRequest は投稿作成リクエストのボディ。
type createPostRequest struct {
	ContentType   string              `json:"contentType"`
	Caption       string              `json:"caption"`
	Description   string              `json:"description"`
	Media         []mediaRequest      `json:"media"`
	Tags          []string            `json:"tags"`
	Customization model.Customization `json:"customization"`
	LocationName  string              `json:"locationName"`
	Draft         bool                `json:"draft"`
	ScheduledAt   *time.Time          `json:"scheduledAt"`
}

// mediaRequest はメディア添付のリクエスト表現。
type mediaRequest struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// updatePostRequest は投稿更新リクエストのボディ。nilのフィールドは変更しない。
type updatePostRequest struct {
	Caption     *string  `json:"caption"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

// CreatePost は投稿作成を処理する。
// POST /api/posts
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	media := make([]model.Media, 0, len(req.Media))
	for _, m := range req.Media {
		media = append(media, model.Media{URL: m.URL, Type: model.MediaType(m.Type)})
	}

	created, err := h.service.Create(r.Context(), userID, post.CreateInput{
		ContentType:   req.ContentType,
		Caption:       req.Caption,
		Description:   req.Description,
		Media:         media,
		Tags:          req.Tags,
		Customization: req.Customization,
		LocationName:  req.LocationName,
		Draft:         req.Draft,
		ScheduledAt:   req.ScheduledAt,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusCreated, toPostResponse(created), "投稿を作成しました。")
}

// GetPost は投稿詳細を取得する。
// GET /api/posts/:id
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")

	found, err := h.service.Get(r.Context(), postID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, toPostResponse(found), "投稿を取得しました。")
}

// UpdatePost は投稿更新を処理する。
// PATCH /api/posts/:id
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	postID := chi.URLParam(r, "id")

	var req updatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	updated, err := h.service.Update(r.Context(), userID, postID, post.UpdateInput{
		Caption:     req.Caption,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, toPostResponse(updated), "投稿を更新しました。")
}

// DeletePost は投稿削除を処理する。
// DELETE /api/posts/:id
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	postID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), userID, postID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, nil, "投稿を削除しました。")
}

// PublishPost は下書き投稿の公開を処理する。
// POST /api/posts/:id/publish
func (h *PostHandler) PublishPost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	postID := chi.URLParam(r, "id")

	published, err := h.service.PublishDraft(r.Context(), userID, postID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, toPostResponse(published), "投稿を公開しました。")
}

// ListUserPosts は指定ユーザーの公開済み投稿一覧を取得する。
// GET /api/users/:id/posts
func (h *PostHandler) ListUserPosts(w http.ResponseWriter, r *http.Request) {
	authorID := chi.URLParam(r, "id")
	limit := parsePositiveInt(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}

	posts, err := h.service.ListByAuthor(r.Context(), authorID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, toPostResponses(posts), "投稿一覧を取得しました。")
}

// ListTrendingPosts は人気投稿一覧を取得する。
// GET /api/posts/trending?limit=N
func (h *PostHandler) ListTrendingPosts(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveInt(r.URL.Query().Get("limit"))

	posts, err := h.service.ListTrending(r.Context(), 0, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, toPostResponses(posts), "人気投稿を取得しました。")
}

// ListNearbyPosts は指定座標の近隣投稿一覧を取得する。
// GET /api/posts/nearby?longitude=X&latitude=Y&radius=R&limit=N
// 座標は必須。radius/limitは省略時にデフォルト値を適用する。
func (h *PostHandler) ListNearbyPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	longitude, lonErr := strconv.ParseFloat(query.Get("longitude"), 64)
	latitude, latErr := strconv.ParseFloat(query.Get("latitude"), 64)
	if lonErr != nil || latErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidCoordinatesError())
		return
	}

	radiusKM, _ := strconv.ParseFloat(query.Get("radius"), 64)
	limit := parsePositiveInt(query.Get("limit"))

	posts, err := h.service.ListNearby(r.Context(),
		model.GeoPoint{Longitude: longitude, Latitude: latitude}, radiusKM, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, toPostResponses(posts), "近隣の投稿を取得しました。")
}

// toPostResponses は投稿一覧を応答フォーマットに変換する。
func toPostResponses(posts []*model.Post) []postResponse {
	responses := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		responses = append(responses, toPostResponse(p))
	}
	return responses
}

// invalidCoordinatesError は座標パラメータの不正エラーを生成する。
func invalidCoordinatesError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_COORDINATES",
		Message:  "座標パラメータの解析に失敗しました。",
		Category: "validation",
		Action:   "longitudeとlatitudeを数値で指定してください。",
	}
}

// invalidRequestBodyError はリクエストボディの解析失敗エラーを生成する。
func invalidRequestBodyError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}
