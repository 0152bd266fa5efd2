// Package model はドメインモデルを定義する。
package model

import "time"

// User はアプリケーションのユーザーを表す。
// フォロー関係（following/followers）はSocialGraphとして別途取得する。
type User struct {
	ID                string
	Username          string
	Email             string
	FullName          string
	Bio               string
	AvatarURL         string
	IsBusinessProfile bool
	Location          *GeoPoint // 任意。未設定の場合はnil
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AuthorRef は投稿・ストーリーに付与する投稿者の最小プロジェクション。
type AuthorRef struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// SocialGraph はユーザーのフォロー関係を表す。
// Followingは自分がフォローしているユーザーID、Followersは自分をフォローしているユーザーID。
type SocialGraph struct {
	Following []string
	Followers []string
}

// FeedUserIDs はfollowingとfollowersを重複なしで結合したID集合を返す。
// ソーシャルソースのクエリとディスカバリーソースの除外フィルタの両方に使用される。
func (g *SocialGraph) FeedUserIDs() []string {
	seen := make(map[string]struct{}, len(g.Following)+len(g.Followers))
	ids := make([]string, 0, len(g.Following)+len(g.Followers))
	for _, id := range g.Following {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, id := range g.Followers {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Session は認証済みセッションを表す。
// セッションの発行は外部の認証基盤が行い、本アプリケーションは参照のみを行う。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// GeoPoint は経度・緯度の地理座標を表す。
// GeoJSONと同様に経度を先に持つ。
type GeoPoint struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}
