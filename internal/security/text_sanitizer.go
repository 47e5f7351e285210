// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は利用者が入力した自由記述（所有者名、違反種別など）から
// HTMLを除去してから保存する。タグを一切許可しないbluemondayのStrictPolicyを使う。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxTextLength は自由記述フィールドの最大文字数。
const maxTextLength = 200

// TextSanitizer はプレーンテキスト化のインターフェース。
type TextSanitizer interface {
	// SanitizeText は全てのHTMLタグを除去し、前後の空白を取り除いたテキストを返す。
	// 実体参照は元の文字に戻す。上限を超える部分は切り捨てる。
	SanitizeText(raw string) string
	// SanitizeURL はhttp/httpsの絶対URLのみを返す。それ以外は空文字列を返す。
	SanitizeURL(raw string) string
}

// textSanitizer はTextSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はHTMLを除去したプレーンテキストを返す。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) > maxTextLength {
		text = strings.TrimSpace(string(runes[:maxTextLength]))
	}
	return text
}

// SanitizeURL は写真URLなどの外部リンクを検証する。
func (s *textSanitizer) SanitizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
