package feed

import "github.com/hitoshi/tsunagu/internal/model"

// ソースごとのベーススコア。
// ソースの区別がランキングを支配し、コンテンツ種別の重みは同一ソース帯域内の
// 小数タイブレークとして働く。フォロー中ユーザーの投稿（Social）は
// トレンド入りしているだけの投稿より常に上位になる。
const (
	baseScoreSocial    = 4.0
	baseScoreNearby    = 3.0
	baseScoreTrending  = 2.0
	baseScoreDiscovery = 1.0
)

// contentTypeWeights はコンテンツ種別からスコア加算値への全域写像。
// 収益化可能な種別（product/service/business）を同一帯域内で優遇する。
// 新しいコンテンツ種別を追加する場合はここで意図的に分類すること。
var contentTypeWeights = map[model.ContentType]float64{
	model.ContentTypeProduct:  0.5,
	model.ContentTypeService:  0.4,
	model.ContentTypeBusiness: 0.3,
	model.ContentTypeNormal:   0.1,
}

// ContentTypeWeight はコンテンツ種別のスコア加算値を返す。
// 未分類の種別は0として扱う。
func ContentTypeWeight(contentType model.ContentType) float64 {
	return contentTypeWeights[contentType]
}

// SourceBaseScore はフィードソースのベーススコアを返す。
func SourceBaseScore(source model.FeedSource) float64 {
	switch source {
	case model.FeedSourceSocial:
		return baseScoreSocial
	case model.FeedSourceNearby:
		return baseScoreNearby
	case model.FeedSourceTrending:
		return baseScoreTrending
	case model.FeedSourceDiscovery:
		return baseScoreDiscovery
	}
	return 0
}

// Score は投稿の合成スコアを計算する。
func Score(source model.FeedSource, contentType model.ContentType) float64 {
	return SourceBaseScore(source) + ContentTypeWeight(contentType)
}
