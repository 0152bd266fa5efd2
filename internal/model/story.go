package model

import "time"

// Story は24時間で失効する短命コンテンツを表す。
type Story struct {
	ID         string
	AuthorID   string
	Author     *AuthorRef
	MediaURL   string
	MediaType  MediaType
	IsArchived bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// IsActive はストーリーが現在有効であるかを返す。
// 有効の定義: アーカイブされておらず、かつ失効時刻を過ぎていないこと。
func (s *Story) IsActive(now time.Time) bool {
	return !s.IsArchived && s.ExpiresAt.After(now)
}
