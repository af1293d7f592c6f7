package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mailtriage/internal/model"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		text string
		want model.Label
	}{
		{"I am very interested in this offer", model.LabelInterested},
		{"interested", model.LabelInterested},
		{"Thanks, but not interested right now", model.LabelNotInterested},
		{"not interested, though a colleague is interested", model.LabelNotInterested},
		{"Could you send more details?", model.LabelMoreInformation},
		// 区分大小写
		{"Interested!", model.LabelMoreInformation},
		{"NOT INTERESTED", model.LabelMoreInformation},
		{"", model.LabelMoreInformation},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, _ := Decide(DefaultRules(), model.LabelMoreInformation, tc.text)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecideReportsRule(t *testing.T) {
	_, rule := Decide(DefaultRules(), model.LabelMoreInformation, "not interested")
	assert.Equal(t, "not_interested", rule)

	_, rule = Decide(DefaultRules(), model.LabelMoreInformation, "maybe")
	assert.Equal(t, "fallback", rule)
}

func TestDecideFirstMatchWins(t *testing.T) {
	rules := []Rule{
		{Name: "a", Label: model.LabelNotInterested, Match: func(string) bool { return true }},
		{Name: "b", Label: model.LabelInterested, Match: func(string) bool { return true }},
	}
	got, rule := Decide(rules, model.LabelMoreInformation, "x")
	assert.Equal(t, model.LabelNotInterested, got)
	assert.Equal(t, "a", rule)
}
