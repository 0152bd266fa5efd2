package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tsunagu/internal/model"
	"github.com/hitoshi/tsunagu/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*user.Profile, error)
	UpdateProfile(ctx context.Context, userID string, input user.ProfileUpdateInput) (*model.User, error)
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	ListFollowers(ctx context.Context, userID string) ([]*model.User, error)
	ListFollowing(ctx context.Context, userID string) ([]*model.User, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// profileResponse はプロフィールのAPIレスポンス。
type profileResponse struct {
	ID                string          `json:"id"`
	Username          string          `json:"username"`
	FullName          string          `json:"fullName"`
	Bio               string          `json:"bio"`
	AvatarURL         string          `json:"avatarUrl"`
	IsBusinessProfile bool            `json:"isBusinessProfile"`
	Location          *model.GeoPoint `json:"location,omitempty"`
	FollowingCount    int             `json:"followingCount"`
	FollowerCount     int             `json:"followerCount"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// updateProfileRequest はプロフィール更新リクエストのボディ。nilのフィールドは変更しない。
type updateProfileRequest struct {
	FullName  *string         `json:"fullName"`
	Bio       *string         `json:"bio"`
	AvatarURL *string         `json:"avatarUrl"`
	Location  *model.GeoPoint `json:"location"`
}

// GetProfile はユーザープロフィールを取得する。
// GET /api/users/:id
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, toProfileResponse(profile), "プロフィールを取得しました。")
}

// UpdateProfile は自分のプロフィールを更新する。
// PATCH /api/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), userID, user.ProfileUpdateInput{
		FullName:  req.FullName,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
		Location:  req.Location,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, toProfileResponse(&user.Profile{User: updated}), "プロフィールを更新しました。")
}

// Follow は指定ユーザーのフォローを処理する。
// POST /api/users/:id/follow
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	followeeID := chi.URLParam(r, "id")

	if err := h.service.Follow(r.Context(), userID, followeeID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, nil, "フォローしました。")
}

// Unfollow は指定ユーザーのフォロー解除を処理する。
// DELETE /api/users/:id/follow
func (h *UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	followeeID := chi.URLParam(r, "id")

	if err := h.service.Unfollow(r.Context(), userID, followeeID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, nil, "フォローを解除しました。")
}

// userSummaryResponse はフォロー関係一覧でのユーザー要約表現。
type userSummaryResponse struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	FullName          string `json:"fullName"`
	AvatarURL         string `json:"avatarUrl"`
	IsBusinessProfile bool   `json:"isBusinessProfile"`
}

// ListFollowers は指定ユーザーのフォロワー一覧を取得する。
// GET /api/users/:id/followers
func (h *UserHandler) ListFollowers(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	users, err := h.service.ListFollowers(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, toUserSummaries(users), "フォロワー一覧を取得しました。")
}

// ListFollowing は指定ユーザーのフォロー中ユーザー一覧を取得する。
// GET /api/users/:id/following
func (h *UserHandler) ListFollowing(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	users, err := h.service.ListFollowing(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, toUserSummaries(users), "フォロー中ユーザー一覧を取得しました。")
}

// toUserSummaries はユーザー一覧を要約応答フォーマットに変換する。
func toUserSummaries(users []*model.User) []userSummaryResponse {
	summaries := make([]userSummaryResponse, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, userSummaryResponse{
			ID:                u.ID,
			Username:          u.Username,
			FullName:          u.FullName,
			AvatarURL:         u.AvatarURL,
			IsBusinessProfile: u.IsBusinessProfile,
		})
	}
	return summaries
}

// toProfileResponse はプロフィールを応答フォーマットに変換する。
// メールアドレスは本人確認用の内部情報であり、応答には含めない。
func toProfileResponse(profile *user.Profile) profileResponse {
	u := profile.User
	return profileResponse{
		ID:                u.ID,
		Username:          u.Username,
		FullName:          u.FullName,
		Bio:               u.Bio,
		AvatarURL:         u.AvatarURL,
		IsBusinessProfile: u.IsBusinessProfile,
		Location:          u.Location,
		FollowingCount:    profile.FollowingCount,
		FollowerCount:     profile.FollowerCount,
		CreatedAt:         u.CreatedAt,
	}
}
