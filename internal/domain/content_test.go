package domain_test

import (
	"strings"
	"testing"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
)

func TestScoreQuality_VerbatimCopyPenalized(t *testing.T) {
	source := strings.Repeat("the city council approved the new transit budget today ", 20)

	verbatim := domain.ScoreQuality(source, source, nil)
	rewritten := domain.ScoreQuality(source,
		strings.Repeat("council members signed off on fresh funding for public transport this afternoon ", 8), nil)

	if verbatim >= rewritten {
		t.Errorf("verbatim score %.2f should be below rewritten score %.2f", verbatim, rewritten)
	}
}

func TestScoreQuality_KeywordCoverage(t *testing.T) {
	source := "original article body about municipal elections and voter turnout in the region"
	generated := strings.Repeat("Elections officials reported strong turnout across every district. ", 10)

	withKeywords := domain.ScoreQuality(source, generated, []string{"turnout", "elections"})
	missingKeywords := domain.ScoreQuality(source, generated, []string{"cryptocurrency", "weather"})

	if withKeywords <= missingKeywords {
		t.Errorf("keyword hits %.2f should outscore misses %.2f", withKeywords, missingKeywords)
	}
}

func TestScoreQuality_Bounds(t *testing.T) {
	testCases := []struct {
		name      string
		generated string
	}{
		{name: "empty output", generated: ""},
		{name: "short output", generated: "tiny"},
		{name: "long original output", generated: strings.Repeat("completely different phrasing here ", 30)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			score := domain.ScoreQuality("some source text for comparison purposes", tc.generated, []string{"source"})
			if score < 0 || score > 1 {
				t.Errorf("score %.2f out of [0,1]", score)
			}
		})
	}
}

func TestEngagement_Rate(t *testing.T) {
	e := domain.Engagement{Likes: 30, Comments: 10, Shares: 10, Reach: 1000}
	if got := e.Rate(); got != 0.05 {
		t.Errorf("Rate() = %v, want 0.05", got)
	}

	zero := domain.Engagement{Likes: 5}
	if got := zero.Rate(); got != 0 {
		t.Errorf("Rate() with zero reach = %v, want 0", got)
	}
}
