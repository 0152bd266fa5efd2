package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, post, feed, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodePostNotFound        = "POST_NOT_FOUND"
	ErrCodeStoryNotFound       = "STORY_NOT_FOUND"
	ErrCodeInvalidContentType  = "INVALID_CONTENT_TYPE"
	ErrCodeInvalidMediaURL     = "INVALID_MEDIA_URL"
	ErrCodeMediaURLBlocked     = "MEDIA_URL_BLOCKED"
	ErrCodeLocationNotResolved = "LOCATION_NOT_RESOLVED"
	ErrCodeInvalidSchedule     = "INVALID_SCHEDULE"
	ErrCodeNotPostOwner        = "NOT_POST_OWNER"
	ErrCodeSelfFollow          = "SELF_FOLLOW"
	ErrCodeFeedFailed          = "FEED_GENERATION_FAILED"
)

// NewUnauthorizedError は未認証リクエストに対するエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証されていません。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewPostNotFoundError は投稿未検出エラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
		Category: "post",
		Action:   "投稿IDを確認してください。",
	}
}

// NewInvalidContentTypeError は無効なコンテンツ種別エラーを生成する。
func NewInvalidContentTypeError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidContentType,
		Message:  fmt.Sprintf("無効なコンテンツ種別です: %s", contentType),
		Category: "validation",
		Action:   "コンテンツ種別には normal、service、product、business のいずれかを指定してください。",
	}
}

// NewInvalidMediaURLError は無効なメディアURLエラーを生成する。
func NewInvalidMediaURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMediaURL,
		Message:  fmt.Sprintf("無効なメディアURLです: %s", reason),
		Category: "validation",
		Action:   "https:// で始まる公開URLを指定してください。",
	}
}

// NewMediaURLBlockedError はセキュリティポリシーによるメディアURL拒否エラーを生成する。
func NewMediaURLBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeMediaURLBlocked,
		Message:  "セキュリティポリシーにより、指定されたメディアURLは受け付けられません。",
		Category: "validation",
		Action:   "公開されているメディアのURLを指定してください。ローカルネットワークやプライベートIPのURLは許可されていません。",
	}
}

// NewLocationNotResolvedError は位置情報の座標解決失敗エラーを生成する。
func NewLocationNotResolvedError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeLocationNotResolved,
		Message:  fmt.Sprintf("位置情報の座標を解決できませんでした: %s", name),
		Category: "validation",
		Action:   "場所の名称を確認するか、座標を直接指定してください。",
	}
}

// NewInvalidScheduleError は予約投稿の公開予定時刻が不正な場合のエラーを生成する。
func NewInvalidScheduleError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSchedule,
		Message:  "予約投稿の公開予定時刻が不正です。",
		Category: "validation",
		Action:   "現在時刻より後の公開予定時刻を指定してください。",
	}
}

// NewNotPostOwnerError は他ユーザーの投稿を操作しようとした場合のエラーを生成する。
func NewNotPostOwnerError() *APIError {
	return &APIError{
		Code:     ErrCodeNotPostOwner,
		Message:  "この投稿を操作する権限がありません。",
		Category: "post",
		Action:   "自分の投稿のみ編集・削除できます。",
	}
}

// NewSelfFollowError は自分自身をフォローしようとした場合のエラーを生成する。
func NewSelfFollowError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfFollow,
		Message:  "自分自身をフォローすることはできません。",
		Category: "validation",
		Action:   "他のユーザーを指定してください。",
	}
}

// NewFeedFailedError はフィード生成失敗エラーを生成する。
// どのソースクエリが失敗したかは応答に含めず、固定メッセージでマスクする。
func NewFeedFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeFeedFailed,
		Message:  "ホームフィードの生成に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
