package model

import "time"

// ContentType は投稿のコンテンツ種別を表す。
type ContentType string

const (
	// ContentTypeNormal は通常投稿。
	ContentTypeNormal ContentType = "normal"
	// ContentTypeService はサービス紹介投稿。
	ContentTypeService ContentType = "service"
	// ContentTypeProduct は商品紹介投稿。
	ContentTypeProduct ContentType = "product"
	// ContentTypeBusiness はビジネスプロフィール投稿。
	ContentTypeBusiness ContentType = "business"
)

// AllowedContentTypes はフィードに掲載可能なコンテンツ種別の閉じた集合。
// ソースクエリはすべてこの集合でフィルタされる。
var AllowedContentTypes = []ContentType{
	ContentTypeNormal,
	ContentTypeService,
	ContentTypeProduct,
	ContentTypeBusiness,
}

// Valid はコンテンツ種別が定義済みのいずれかであるかを返す。
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeNormal, ContentTypeService, ContentTypeProduct, ContentTypeBusiness:
		return true
	}
	return false
}

// PostStatus は投稿の公開状態を表す。
type PostStatus string

const (
	// PostStatusDraft は下書き状態。フィードには掲載されない。
	PostStatusDraft PostStatus = "draft"
	// PostStatusScheduled は予約投稿状態。公開時刻までフィードには掲載されない。
	PostStatusScheduled PostStatus = "scheduled"
	// PostStatusPublished は公開済み状態。
	PostStatusPublished PostStatus = "published"
)

// MediaType はメディア添付の種別を表す。
type MediaType string

const (
	// MediaTypeImage は画像メディア。
	MediaTypeImage MediaType = "image"
	// MediaTypeVideo は動画メディア。
	MediaTypeVideo MediaType = "video"
)

// Media は投稿に添付されるメディアを表す。
// アップロード処理は外部パイプラインが行い、本アプリケーションはURLのみを保持する。
type Media struct {
	URL  string    `json:"url"`
	Type MediaType `json:"type"`
}

// Engagement は投稿のエンゲージメントカウンタを表す。
type Engagement struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
	Shares   int `json:"shares"`
	Views    int `json:"views"`
}

// ProductDetails は商品投稿のカスタマイズ情報。
type ProductDetails struct {
	Name     string    `json:"name,omitempty"`
	Price    float64   `json:"price,omitempty"`
	Currency string    `json:"currency,omitempty"`
	Location *GeoPoint `json:"location,omitempty"`
}

// ServiceDetails はサービス投稿のカスタマイズ情報。
type ServiceDetails struct {
	Name     string    `json:"name,omitempty"`
	Category string    `json:"category,omitempty"`
	Location *GeoPoint `json:"location,omitempty"`
}

// BusinessDetails はビジネス投稿のカスタマイズ情報。
type BusinessDetails struct {
	BusinessName string    `json:"business_name,omitempty"`
	Category     string    `json:"category,omitempty"`
	Website      string    `json:"website,omitempty"`
	Location     *GeoPoint `json:"location,omitempty"`
}

// NormalDetails は通常投稿のカスタマイズ情報。
type NormalDetails struct {
	Mood     string    `json:"mood,omitempty"`
	Activity string    `json:"activity,omitempty"`
	Location *GeoPoint `json:"location,omitempty"`
}

// Customization はコンテンツ種別ごとのカスタマイズ構造。
// 投稿のContentTypeに対応するフィールドのみが設定される。
type Customization struct {
	Normal   *NormalDetails   `json:"normal,omitempty"`
	Service  *ServiceDetails  `json:"service,omitempty"`
	Product  *ProductDetails  `json:"product,omitempty"`
	Business *BusinessDetails `json:"business,omitempty"`
}

// Location は種別ごとのカスタマイズに含まれる位置情報を返す。
// どの種別にも位置情報がない場合はnilを返す。
func (c *Customization) Location() *GeoPoint {
	if c == nil {
		return nil
	}
	switch {
	case c.Normal != nil && c.Normal.Location != nil:
		return c.Normal.Location
	case c.Service != nil && c.Service.Location != nil:
		return c.Service.Location
	case c.Product != nil && c.Product.Location != nil:
		return c.Product.Location
	case c.Business != nil && c.Business.Location != nil:
		return c.Business.Location
	}
	return nil
}

// Post はユーザーの投稿を表す。
// フィード集約の観点では読み取り専用として扱われる。
type Post struct {
	ID            string
	AuthorID      string
	Author        *AuthorRef // 一覧応答用に非正規化された投稿者情報
	ContentType   ContentType
	Caption       string
	Description   string
	Media         []Media
	Tags          []string
	Customization Customization
	Engagement    Engagement
	Status        PostStatus
	ScheduledAt   *time.Time
	PublishedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
