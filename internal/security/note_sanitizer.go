// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NoteSanitizer は管理者メモや審査コメントから全てのHTMLを除去する。
// コメントはフロントエンドとメールの両方に表示されるため、プレーンテキストとして保存する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNoteLength はメモ・コメントの最大文字数。超過分は切り捨てる。
const MaxNoteLength = 2000

// NoteSanitizer はプレーンテキストのメモを無害化するインターフェース。
type NoteSanitizer interface {
	// Sanitize は全てのタグを除去し、HTMLエンティティを復元し、前後の空白を除いた文字列を返す。
	// script, styleタグは内容ごと除去する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(note string) string
}

// noteSanitizer はNoteSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type noteSanitizer struct {
	policy *bluemonday.Policy
}

// NewNoteSanitizer はNoteSanitizerを生成する。
func NewNoteSanitizer() NoteSanitizer {
	return &noteSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はNoteSanitizerを実装する。
func (s *noteSanitizer) Sanitize(note string) string {
	if note == "" {
		return ""
	}
	// StrictPolicyはテキストをエスケープして返すため、保存前に元の文字へ戻す
	clean := html.UnescapeString(s.policy.Sanitize(note))
	clean = strings.TrimSpace(clean)

	if utf8.RuneCountInString(clean) > MaxNoteLength {
		clean = string([]rune(clean)[:MaxNoteLength])
	}
	return clean
}
