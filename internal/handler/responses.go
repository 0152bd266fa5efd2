// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/tsunagu/internal/middleware"
	"github.com/hitoshi/tsunagu/internal/model"
)

// successResponse は成功レスポンスの統一エンベロープ。
type successResponse struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
}

// apiErrorResponse は失敗レスポンスの統一エンベロープ。
type apiErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Category   string `json:"category"`
	Action     string `json:"action"`
}

// authorResponse は投稿者情報のAPIレスポンス。
type authorResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// postResponse は投稿のAPIレスポンス。
// フィードのスコアと取得元ソースは内部情報であり、応答には含めない。
type postResponse struct {
	ID            string              `json:"id"`
	Author        *authorResponse     `json:"author,omitempty"`
	ContentType   string              `json:"contentType"`
	Caption       string              `json:"caption"`
	Description   string              `json:"description,omitempty"`
	Media         []mediaResponse     `json:"media"`
	Tags          []string            `json:"tags,omitempty"`
	Customization model.Customization `json:"customization"`
	Likes         int                 `json:"likes"`
	Comments      int                 `json:"comments"`
	Shares        int                 `json:"shares"`
	Views         int                 `json:"views"`
	Status        string              `json:"status"`
	ScheduledAt   *time.Time          `json:"scheduledAt,omitempty"`
	PublishedAt   *time.Time          `json:"publishedAt,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// mediaResponse はメディア添付のAPIレスポンス。
type mediaResponse struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// storyResponse はストーリーのAPIレスポンス。
type storyResponse struct {
	ID        string          `json:"id"`
	Author    *authorResponse `json:"author,omitempty"`
	MediaURL  string          `json:"mediaUrl"`
	MediaType string          `json:"mediaType"`
	ExpiresAt time.Time       `json:"expiresAt"`
	CreatedAt time.Time       `json:"createdAt"`
}

// paginationResponse はページネーションメタデータのAPIレスポンス。
type paginationResponse struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// --- 変換ヘルパー ---

func toAuthorResponse(author *model.AuthorRef) *authorResponse {
	if author == nil {
		return nil
	}
	return &authorResponse{
		ID:        author.ID,
		Username:  author.Username,
		AvatarURL: author.AvatarURL,
	}
}

func toPostResponse(post *model.Post) postResponse {
	media := make([]mediaResponse, 0, len(post.Media))
	for _, m := range post.Media {
		media = append(media, mediaResponse{URL: m.URL, Type: string(m.Type)})
	}
	return postResponse{
		ID:            post.ID,
		Author:        toAuthorResponse(post.Author),
		ContentType:   string(post.ContentType),
		Caption:       post.Caption,
		Description:   post.Description,
		Media:         media,
		Tags:          post.Tags,
		Customization: post.Customization,
		Likes:         post.Engagement.Likes,
		Comments:      post.Engagement.Comments,
		Shares:        post.Engagement.Shares,
		Views:         post.Engagement.Views,
		Status:        string(post.Status),
		ScheduledAt:   post.ScheduledAt,
		PublishedAt:   post.PublishedAt,
		CreatedAt:     post.CreatedAt,
	}
}

func toStoryResponse(story *model.Story) storyResponse {
	return storyResponse{
		ID:        story.ID,
		Author:    toAuthorResponse(story.Author),
		MediaURL:  story.MediaURL,
		MediaType: string(story.MediaType),
		ExpiresAt: story.ExpiresAt,
		CreatedAt: story.CreatedAt,
	}
}

// writeSuccessResponse は統一エンベロープで成功レスポンスを書き込む。
func writeSuccessResponse(w http.ResponseWriter, statusCode int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(successResponse{
		StatusCode: statusCode,
		Data:       data,
		Message:    message,
	})
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		StatusCode: statusCode,
		Code:       apiErr.Code,
		Message:    apiErr.Message,
		Category:   apiErr.Category,
		Action:     apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeUserNotFound, model.ErrCodePostNotFound, model.ErrCodeStoryNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidContentType, model.ErrCodeInvalidMediaURL,
		model.ErrCodeLocationNotResolved, model.ErrCodeSelfFollow, model.ErrCodeInvalidSchedule:
		return http.StatusBadRequest
	case model.ErrCodeMediaURLBlocked:
		return http.StatusForbidden
	case model.ErrCodeNotPostOwner:
		return http.StatusForbidden
	case model.ErrCodeFeedFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// requireUserID はリクエストコンテキストから認証済みユーザーIDを取得する。
// 取得できない場合は401を書き込み、falseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}
