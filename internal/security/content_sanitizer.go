// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は投稿のキャプション・説明文やプロフィールの
// 自己紹介文など、ユーザー入力テキストからHTMLを除去し、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はユーザー入力テキストのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// SanitizeText はテキストからすべてのHTMLタグを除去したプレーンテキストを返す。
	// キャプション・説明文・自己紹介文は装飾を許可しないため、
	// タグを許可リストに残さない厳格ポリシーを適用する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// bluemondayのStrictPolicy（全タグ除去）を使用する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はテキストからすべてのHTMLタグを除去したプレーンテキストを返す。
// bluemondayはタグ除去後にエンティティをエスケープ済みの形で返すため、
// プレーンテキストとして保持できるようアンエスケープしてから余分な空白を整える。
func (s *contentSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}

	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
