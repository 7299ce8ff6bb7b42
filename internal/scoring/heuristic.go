package scoring

import (
	"hash/fnv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	coldHints = []string{"寒い", "冷たい", "氷", "雪", "冬", "凍", "クール", "涼しい", "アイス", "cold", "ice", "snow", "freez"}
	hotHints  = []string{"暑い", "熱い", "火", "燃え", "夏", "ホット", "灼熱", "溶け", "太陽", "hot", "fire", "sun", "melt"}
)

// Heuristic is the local dependency-free judge. The same text always gets
// the same evaluation.
type Heuristic struct{}

// Judge scores text from its thermal words, its repeated sounds and its
// script mix.
func (Heuristic) Judge(text string) Evaluation {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	temp := 0.0
	for _, w := range coldHints {
		if strings.Contains(lower, w) {
			temp -= 3
		}
	}
	for _, w := range hotHints {
		if strings.Contains(lower, w) {
			temp += 3
		}
	}
	temp += jitter(text, 2)

	rep := repetition(lower)
	sound := soundScore(text)
	quality := 2 + rep*1.5 + sound*0.3
	if n := utf8.RuneCountInString(text); n < 4 {
		quality -= 2
	} else if n > 40 {
		quality -= 1
	}
	creativity := 1 + jitter(text+"#", 2) + 2 + rep

	e := Evaluation{
		Temperature: temp,
		Quality:     quality,
		Creativity:  creativity,
		Sound:       sound,
		Source:      SourceHeuristic,
	}.Normalize()
	e.Comment = comment(e.Quality)
	return e
}

// jitter maps text to a stable value in [-spread, spread].
func jitter(text string, spread float64) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return (float64(h.Sum32()%1001)/1000)*2*spread - spread
}

// repetition counts distinct two-rune sequences that occur more than once,
// the usual shape of a pun.
func repetition(text string) float64 {
	runes := make([]rune, 0, len(text))
	for _, r := range text {
		if unicode.IsLetter(r) {
			runes = append(runes, r)
		}
	}
	seen := make(map[string]int)
	for i := 0; i+1 < len(runes); i++ {
		seen[string(runes[i:i+2])]++
	}
	n := 0
	for _, c := range seen {
		if c > 1 {
			n++
		}
	}
	return float64(n)
}

func soundScore(text string) float64 {
	score := 0.0
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Hiragana):
			score += 0.3
		case unicode.In(r, unicode.Katakana):
			score += 0.5
		case unicode.In(r, unicode.Han):
			score += 0.2
		}
	}
	return score
}

func comment(quality float64) string {
	switch {
	case quality >= 8:
		return "会場が燃え上がる最高のダジャレ！"
	case quality >= 6:
		return "素晴らしいダジャレ！観客も大興奮！"
	case quality >= 4:
		return "良いダジャレ！温かい拍手が！"
	case quality >= 2:
		return "ほんのり温かい。あと一息！"
	default:
		return "観客も震えています。"
	}
}
