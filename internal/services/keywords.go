package services

import (
	"sort"
	"strings"
	"unicode"

	"simple-bot/internal/models"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"
)

// contentTagWeights lists the POS tags that can carry a keyword. Tokens with
// any other tag are ignored.
var contentTagWeights = map[string]float64{
	"NNP":  1.6,
	"NNPS": 1.6,
	"NN":   1.0,
	"NNS":  1.0,
	"FW":   0.8,
	"JJ":   0.5,
	"VBG":  0.4,
}

// entityBoost is added for every named-entity mention of a word
const entityBoost = 1.0

// documentStopWords are frequent in PDFs but say nothing about the content
var documentStopWords = []string{
	"page", "pages", "section", "chapter", "figure", "fig", "table", "appendix",
	"document", "copyright", "rights", "reserved", "example", "note", "total",
	"etc", "ie", "eg", "vs", "per", "also", "other", "such", "same", "various",
	"number", "part", "use", "way", "thing", "lot", "kind",
}

// KeywordExtractor ranks the content words of chunk text. Per-chunk keywords
// go into chunk metadata; the summed ranking becomes the document's keywords.
type KeywordExtractor struct {
	stopWords map[string]struct{}
	minRunes  int
}

// NewKeywordExtractor creates an extractor with the document stop-word list
func NewKeywordExtractor() *KeywordExtractor {
	stop := make(map[string]struct{}, len(documentStopWords))
	for _, w := range documentStopWords {
		stop[w] = struct{}{}
	}
	return &KeywordExtractor{stopWords: stop, minRunes: 3}
}

// KeywordResult is one ranked keyword of a text
type KeywordResult struct {
	Word     string  `json:"word"`
	Mentions int     `json:"mentions"`
	Score    float64 `json:"score"`
	Tag      string  `json:"tag"`
}

// ExtractKeywords ranks the keywords of text, highest score first
func (ke *KeywordExtractor) ExtractKeywords(text string) ([]KeywordResult, error) {
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, err
	}

	ranked := make(map[string]*KeywordResult)
	add := func(word, tag string, weight float64) {
		r, ok := ranked[word]
		if !ok {
			r = &KeywordResult{Word: word, Tag: tag}
			ranked[word] = r
		}
		r.Mentions++
		r.Score += weight
	}

	for _, tok := range doc.Tokens() {
		weight, ok := contentTagWeights[tok.Tag]
		if !ok {
			continue
		}
		if word, keep := ke.normalize(tok.Text); keep {
			add(word, tok.Tag, weight)
		}
	}

	for _, ent := range doc.Entities() {
		if word, keep := ke.normalize(ent.Text); keep {
			add(word, "ENT_"+ent.Label, entityBoost)
		}
	}

	return sortKeywords(ranked), nil
}

// normalize lower-cases a token and reports whether it can be a keyword
func (ke *KeywordExtractor) normalize(token string) (string, bool) {
	word := strings.ToLower(strings.TrimFunc(token, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	}))
	if len([]rune(word)) < ke.minRunes {
		return "", false
	}
	if _, stop := ke.stopWords[word]; stop {
		return "", false
	}
	hasLetter := false
	for _, r := range word {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	return word, hasLetter
}

func sortKeywords(ranked map[string]*KeywordResult) []KeywordResult {
	out := make([]KeywordResult, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Word < out[j].Word
	})
	return out
}

// ExtractKeywordStrings returns the top limit keywords of text; limit <= 0 means all
func (ke *KeywordExtractor) ExtractKeywordStrings(text string, limit int) ([]string, error) {
	keywords, err := ke.ExtractKeywords(text)
	if err != nil {
		return nil, err
	}
	return topWords(keywords, limit), nil
}

func topWords(keywords []KeywordResult, limit int) []string {
	if limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	words := make([]string, len(keywords))
	for i, kw := range keywords {
		words[i] = kw.Word
	}
	return words
}

// Enrich stores the top perChunk keywords of every chunk under the
// "keywords" metadata key and returns the top perDocument keywords of the
// whole document. A chunk that fails extraction is logged and skipped.
func (ke *KeywordExtractor) Enrich(chunks []models.Chunk, perChunk, perDocument int, logger *zap.SugaredLogger) []string {
	document := make(map[string]*KeywordResult)

	for i := range chunks {
		keywords, err := ke.ExtractKeywords(chunks[i].Text)
		if err != nil {
			logger.Warnf("Keyword extraction failed for chunk %s: %v", chunks[i].ID, err)
			continue
		}
		if len(keywords) == 0 {
			continue
		}

		if chunks[i].Metadata == nil {
			chunks[i].Metadata = map[string]interface{}{}
		}
		chunks[i].Metadata["keywords"] = topWords(keywords, perChunk)

		for _, kw := range keywords {
			d, ok := document[kw.Word]
			if !ok {
				d = &KeywordResult{Word: kw.Word, Tag: kw.Tag}
				document[kw.Word] = d
			}
			d.Mentions += kw.Mentions
			d.Score += kw.Score
		}
	}

	return topWords(sortKeywords(document), perDocument)
}
