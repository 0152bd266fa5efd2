package model

// FeedSource はフィード投稿の取得元ソースを表す。
// ソースはベーススコアの帯域を決定し、応答には含まれない。
type FeedSource string

const (
	// FeedSourceSocial はフォロー/フォロワーの投稿ソース。
	FeedSourceSocial FeedSource = "social"
	// FeedSourceNearby は近隣の投稿ソース。
	FeedSourceNearby FeedSource = "nearby"
	// FeedSourceTrending は直近24時間のトレンド投稿ソース。
	FeedSourceTrending FeedSource = "trending"
	// FeedSourceDiscovery は未接続ユーザーの投稿ソース。
	FeedSourceDiscovery FeedSource = "discovery"
)

// ScoredPost はスコア付けされた投稿。1回のフィード集約の間だけ存在する
// 計算上の中間生成物であり、永続化されない。
type ScoredPost struct {
	Post   *Post
	Score  float64
	Source FeedSource
}

// Pagination はオフセットページネーションのメタデータ。
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// FeedPage はホームフィード応答の内部表現。
// Postsはランキング済み・重複排除済み・ページ適用済みの投稿列。
// Storiesは閲覧者とフォロー中ユーザーの有効なストーリー一覧（ページネーションなし）。
type FeedPage struct {
	Posts      []ScoredPost
	Stories    []*Story
	Pagination Pagination
}
