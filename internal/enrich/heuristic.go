package enrich

import (
	"context"
	"math"
	"strings"

	"newsroom/api/internal/feed"
)

// HeuristicModel is the default in-process scorer. Priority follows
// engagement counters, quality follows text features, sentiment and topics
// come from keyword tables. Deterministic for identical inputs.
type HeuristicModel struct{}

var positiveWords = []string{
	"breakthrough", "success", "win", "launch", "growth", "record",
	"milestone", "achievement", "improve", "approved", "celebrate",
}

var negativeWords = []string{
	"crash", "failure", "scandal", "breach", "lawsuit", "outage",
	"collapse", "decline", "layoff", "recall", "fraud", "warning",
}

var topicKeywords = map[string][]string{
	"ai":       {"ai", "artificial intelligence", "machine learning", "llm", "neural"},
	"security": {"breach", "hack", "vulnerability", "exploit", "ransomware"},
	"markets":  {"stock", "market", "shares", "ipo", "earnings", "inflation"},
	"science":  {"research", "study", "discovery", "experiment", "physics"},
	"policy":   {"regulation", "law", "policy", "court", "ruling", "senate"},
	"health":   {"health", "vaccine", "disease", "hospital", "clinical"},
}

func (HeuristicModel) Score(_ context.Context, item feed.RawItem) (Signals, error) {
	text := strings.ToLower(item.Title + " " + item.Body)

	return Signals{
		Priority:  engagementScore(item),
		Quality:   qualityScore(item),
		Sentiment: sentimentOf(text),
		Topics:    topicsOf(text),
	}, nil
}

// engagementScore maps score+comments onto [0,1] with log damping so a
// handful of viral posts do not saturate the scale.
func engagementScore(item feed.RawItem) float64 {
	engagement := float64(item.Score) + 2*float64(item.CommentCount)
	if engagement <= 0 {
		return 0.1
	}
	scaled := math.Log10(1+engagement) / 5 // ~100k engagement -> 1.0
	if scaled > 1 {
		scaled = 1
	}
	return scaled
}

func qualityScore(item feed.RawItem) float64 {
	score := 0.3
	titleLen := len(strings.Fields(item.Title))
	if titleLen >= 5 && titleLen <= 20 {
		score += 0.2
	}
	bodyLen := len(strings.Fields(item.Body))
	if bodyLen >= 40 {
		score += 0.3
	} else if bodyLen >= 10 {
		score += 0.15
	}
	if !item.NSFW && !item.Stickied {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

func sentimentOf(text string) feed.Sentiment {
	pos, neg := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(text, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(text, w) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return feed.SentimentPositive
	case neg > pos:
		return feed.SentimentNegative
	default:
		return feed.SentimentNeutral
	}
}

func topicsOf(text string) []string {
	var topics []string
	for _, topic := range []string{"ai", "security", "markets", "science", "policy", "health"} {
		for _, kw := range topicKeywords[topic] {
			if strings.Contains(text, kw) {
				topics = append(topics, topic)
				break
			}
		}
	}
	return topics
}
