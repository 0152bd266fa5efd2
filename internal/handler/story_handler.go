package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/tsunagu/internal/model"
	"github.com/hitoshi/tsunagu/internal/story"
)

// StoryServiceInterface はストーリーハンドラーが必要とするサービスインターフェース。
type StoryServiceInterface interface {
	Create(ctx context.Context, authorID string, input story.CreateInput) (*model.Story, error)
	ListForViewer(ctx context.Context, viewerID string) ([]*model.Story, error)
}

// StoryHandler はストーリー管理のHTTPハンドラー。
type StoryHandler struct {
	service StoryServiceInterface
}

// NewStoryHandler はStoryHandlerを生成する。
func NewStoryHandler(service StoryServiceInterface) *StoryHandler {
	return &StoryHandler{service: service}
}

// createStoryRequest はストーリー作成リクエストのボディ。
type createStoryRequest struct {
	MediaURL  string `json:"mediaUrl"`
	MediaType string `json:"mediaType"`
}

// CreateStory はストーリー作成を処理する。
// POST /api/stories
func (h *StoryHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	created, err := h.service.Create(r.Context(), userID, story.CreateInput{
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusCreated, toStoryResponse(created), "ストーリーを作成しました。")
}

// ListStories は閲覧者自身とフォロー中ユーザーの有効なストーリー一覧を取得する。
// GET /api/stories
func (h *StoryHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	stories, err := h.service.ListForViewer(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]storyResponse, 0, len(stories))
	for _, s := range stories {
		responses = append(responses, toStoryResponse(s))
	}
	writeSuccessResponse(w, http.StatusOK, responses, "ストーリー一覧を取得しました。")
}
