package classifier

import (
	"strings"

	"mailtriage/internal/model"
)

const (
	phraseInterested    = "interested"
	phraseNotInterested = "not interested"
)

// Rule 一条分类规则。规则按顺序匹配，第一条命中的决定标签
type Rule struct {
	Name  string
	Label model.Label
	Match func(text string) bool
}

// DefaultRules 默认规则，区分大小写的子串匹配。
// "interested" 也是 "not interested" 的子串，所以第一条规则排除否定短语。
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  "interested",
			Label: model.LabelInterested,
			Match: func(text string) bool {
				return strings.Contains(text, phraseInterested) && !strings.Contains(text, phraseNotInterested)
			},
		},
		{
			Name:  "not_interested",
			Label: model.LabelNotInterested,
			Match: func(text string) bool {
				return strings.Contains(text, phraseNotInterested)
			},
		},
	}
}

// Decide 返回第一条命中规则的标签，都不命中时返回 fallback
func Decide(rules []Rule, fallback model.Label, text string) (model.Label, string) {
	for _, r := range rules {
		if r.Match(text) {
			return r.Label, r.Name
		}
	}
	return fallback, "fallback"
}
