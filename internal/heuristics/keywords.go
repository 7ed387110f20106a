// Package heuristics is the Heuristics Engine (C6): three stateless pure
// analyzers (complexity, department inference, keyword extraction) and one
// stateful detector (session pattern), grounded on the teacher's preference
// for small pure functions in internal/application/service/chat_pipline
// rather than a monolithic "analyze everything" object.
package heuristics

import (
	"strings"

	"github.com/yanyiwu/gojieba"
)

// Tokenizer wraps gojieba for Chinese-aware keyword extraction, feeding both
// the elasticsearch/full-text lane and the department inference analyzer.
// Grounded on the teacher's go.mod carrying yanyiwu/gojieba for CJK text
// segmentation, which has no idiomatic stdlib substitute (Go's strings
// package only splits on runes/whitespace, not word boundaries in
// unsegmented scripts).
type Tokenizer struct {
	jieba *gojieba.Jieba
}

func NewTokenizer() *Tokenizer {
	return &Tokenizer{jieba: gojieba.NewJieba()}
}

func (t *Tokenizer) Close() { t.jieba.Free() }

// Keywords extracts the topK highest-weighted keywords from text via TF-IDF,
// falling back to simple whitespace tokenization for non-CJK runs where
// jieba returns nothing useful.
func (t *Tokenizer) Keywords(text string, topK int) []string {
	words := t.jieba.ExtractWithWeight(text, topK)
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, w.Word)
	}
	if len(out) == 0 {
		return fallbackTokens(text, topK)
	}
	return out
}

func fallbackTokens(text string, topK int) []string {
	fields := strings.Fields(strings.ToLower(text))
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, topK)
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]")
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) >= topK {
			break
		}
	}
	return out
}
