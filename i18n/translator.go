package i18n

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Translator retrieves localized messages for Issue codes.
// data provides optional metadata to embed in the message (for example,
// "expected" or "field").
type Translator interface {
	Message(code string, data map[string]string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

func (t dictTranslator) Message(code string, data map[string]string) string {
	var msg string
	switch t.lang {
	case "ja":
		switch code {
		case "invalid_type":
			msg = "型が不正です"
		case "required":
			msg = "必須フィールドが不足しています"
		case "too_small":
			msg = "小さすぎます"
		case "too_big":
			msg = "大きすぎます"
		case "too_short":
			msg = "短すぎます"
		case "too_long":
			msg = "長すぎます"
		case "pattern":
			msg = "パターンに一致しません"
		case "invalid_enum":
			msg = "列挙値に含まれていません"
		case "invalid_tag":
			msg = "タグが一致しません"
		case "parse_error":
			msg = "解析エラー"
		}
	default: // "en"
		switch code {
		case "invalid_type":
			msg = "invalid type"
		case "required":
			msg = "required field missing"
		case "too_small":
			msg = "value too small"
		case "too_big":
			msg = "value too big"
		case "too_short":
			msg = "too short"
		case "too_long":
			msg = "too long"
		case "pattern":
			msg = "does not match pattern"
		case "invalid_enum":
			msg = "value not in enumeration"
		case "invalid_tag":
			msg = "tag mismatch"
		case "parse_error":
			msg = "parse error"
		}
	}
	if msg == "" {
		msg = code
	}
	return withData(msg, data)
}

// withData appends data as "(k=v, ...)" in key order.
func withData(msg string, data map[string]string) string {
	if len(data) == 0 {
		return msg
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, data[k])
	}
	return msg + " (" + strings.Join(parts, ", ") + ")"
}

type holder struct{ tr Translator }

var current atomic.Pointer[holder]

func init() { current.Store(&holder{tr: dictTranslator{lang: "en"}}) }

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if lang != "ja" {
		lang = "en"
	}
	current.Store(&holder{tr: dictTranslator{lang: lang}})
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	if tr == nil {
		tr = dictTranslator{lang: "en"}
	}
	current.Store(&holder{tr: tr})
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string { return current.Load().tr.Message(code, data) }
