package security

import (
	"strings"
	"testing"
)

// TestSanitizeText_StripsAllTags は厳格ポリシーが全HTMLタグを除去することを検証する。
func TestSanitizeText_StripsAllTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "今日は渋谷でランチ",
			want:  "今日は渋谷でランチ",
		},
		{
			name:  "pタグを除去する",
			input: "<p>テスト段落</p>",
			want:  "テスト段落",
		},
		{
			name:  "scriptタグと中身を除去する",
			input: `テキスト<script>alert("xss")</script>続き`,
			want:  "テキスト続き",
		},
		{
			name:  "aタグを除去してテキストのみ残す",
			input: `<a href="https://example.com">リンク</a>`,
			want:  "リンク",
		},
		{
			name:  "イベントハンドラ付きタグを除去する",
			input: `<img src=x onerror="alert(1)">画像の説明`,
			want:  "画像の説明",
		},
		{
			name:  "空文字列は空文字列",
			input: "",
			want:  "",
		},
		{
			name:  "前後の空白を整える",
			input: "  <b>太字</b>  ",
			want:  "太字",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeText_PreservesPlainSymbols はエンティティがプレーンテキストへ戻ることを検証する。
func TestSanitizeText_PreservesPlainSymbols(t *testing.T) {
	sanitizer := NewContentSanitizer()

	got := sanitizer.SanitizeText("A & B")
	if got != "A & B" {
		t.Errorf("SanitizeText(A & B) = %q, want %q", got, "A & B")
	}
}

// TestSanitizeText_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestSanitizeText_Idempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	input := `<div>自己紹介<script>steal()</script>です</div>`
	first := sanitizer.SanitizeText(input)
	second := sanitizer.SanitizeText(first)
	if first != second {
		t.Errorf("sanitize is not idempotent: first = %q, second = %q", first, second)
	}
}

// TestSanitizeText_NoTagsRemain はどの入力でもタグ構造が残らないことを検証する。
func TestSanitizeText_NoTagsRemain(t *testing.T) {
	sanitizer := NewContentSanitizer()

	inputs := []string{
		"<p><b><i>ネスト</i></b></p>",
		`<iframe src="https://evil.example"></iframe>安全なテキスト`,
		"<style>body{display:none}</style>表示テキスト",
	}

	for _, input := range inputs {
		got := sanitizer.SanitizeText(input)
		if strings.ContainsAny(got, "<>") {
			t.Errorf("SanitizeText(%q) = %q, should not contain tag delimiters", input, got)
		}
	}
}
