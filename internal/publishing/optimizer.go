// Package publishing holds the platform-facing content workflow: the pure
// copy optimizer used before every publish call.
package publishing

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	shortTextThreshold = 100
	maxTextLength      = 400
	truncationSuffix   = "..."
	maxEmojis          = 3
	maxHashtags        = 5
)

// OptimizedContent is the platform-ready rendition of a generated text.
type OptimizedContent struct {
	Text                string   `json:"text"`
	Emojis              []string `json:"emojis"`
	Hashtags            []string `json:"hashtags"`
	PredictedEngagement float64  `json:"predicted_engagement"`
}

// categoryEmojis maps content categories to candidate emojis.
var categoryEmojis = map[string][]string{
	"sports":        {"⚽", "🏆", "🔥"},
	"politics":      {"🗳️", "📢", "🏛️"},
	"business":      {"📈", "💼", "💰"},
	"technology":    {"💻", "🚀", "🤖"},
	"entertainment": {"🎬", "🎤", "✨"},
	"health":        {"🏥", "💊", "🩺"},
	"crime":         {"🚨", "👮", "⚖️"},
	"weather":       {"🌦️", "🌡️", "⛈️"},
}

var defaultEmojis = []string{"📰", "🗞️"}

// categoryHashtags maps content categories to base hashtags.
var categoryHashtags = map[string][]string{
	"sports":        {"#Deportes", "#Futbol"},
	"politics":      {"#Politica", "#Noticias"},
	"business":      {"#Economia", "#Negocios"},
	"technology":    {"#Tecnologia", "#Innovacion"},
	"entertainment": {"#Entretenimiento", "#Espectaculos"},
	"health":        {"#Salud", "#Bienestar"},
	"crime":         {"#Seguridad", "#Justicia"},
	"weather":       {"#Clima", "#Alerta"},
}

// trendingHashtags are appended when capacity remains after category and
// content-derived tags.
var trendingHashtags = []string{"#UltimaHora", "#Noticias", "#Pachuca"}

var callToActions = []string{
	"¿Qué opinas?",
	"Cuéntanos en los comentarios.",
	"Lee la nota completa.",
}

// Optimize produces the platform-ready copy for a generated text: length
// clamp, category-matched emojis, deduplicated hashtag union and a heuristic
// engagement score. Pure function.
func Optimize(content, category string, keywords []string) OptimizedContent {
	text := strings.TrimSpace(content)
	category = strings.ToLower(category)

	// Length clamp: short copy gets a call to action, long copy is truncated
	// at a word boundary.
	if len(text) < shortTextThreshold && text != "" {
		text = text + " " + callToActions[len(text)%len(callToActions)]
	}
	if len(text) > maxTextLength {
		limit := maxTextLength - len(truncationSuffix)
		// Back up to a rune boundary so a multibyte character is never split.
		for limit > 0 && !utf8.RuneStart(text[limit]) {
			limit--
		}
		cut := text[:limit]
		if idx := strings.LastIndex(cut, " "); idx > 0 {
			cut = cut[:idx]
		}
		text = cut + truncationSuffix
	}

	emojis := pickEmojis(category)
	hashtags := pickHashtags(category, keywords)

	return OptimizedContent{
		Text:                text,
		Emojis:              emojis,
		Hashtags:            hashtags,
		PredictedEngagement: predictEngagement(text, emojis, hashtags),
	}
}

func pickEmojis(category string) []string {
	candidates, ok := categoryEmojis[category]
	if !ok {
		candidates = defaultEmojis
	}
	if len(candidates) > maxEmojis {
		candidates = candidates[:maxEmojis]
	}
	out := make([]string, len(candidates))
	copy(out, candidates)
	return out
}

func pickHashtags(category string, keywords []string) []string {
	seen := make(map[string]struct{})
	var tags []string

	add := func(tag string) {
		if len(tags) >= maxHashtags {
			return
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
	}

	for _, tag := range categoryHashtags[category] {
		add(tag)
	}
	// Dynamic tags derived from content keywords
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if len(kw) < 4 || strings.ContainsAny(kw, " \t") {
			continue
		}
		add("#" + capitalize(kw))
	}
	for _, tag := range trendingHashtags {
		add(tag)
	}
	return tags
}

func capitalize(word string) string {
	word = strings.ToLower(word)
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError && size <= 1 {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}

// predictEngagement scores the post on a 0..1 scale: moderate length, 1-3
// emojis, 3-5 hashtags and a question all raise the score.
func predictEngagement(text string, emojis, hashtags []string) float64 {
	var score float64

	n := len(text)
	switch {
	case n >= 80 && n <= 280:
		score += 0.4
	case n > 0:
		score += 0.2
	}
	if len(emojis) >= 1 && len(emojis) <= maxEmojis {
		score += 0.2
	}
	if len(hashtags) >= 3 && len(hashtags) <= maxHashtags {
		score += 0.2
	}
	if strings.ContainsAny(text, "?¿") {
		score += 0.2
	}
	return score
}
