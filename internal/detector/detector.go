// Package detector implements PII detection over a single page's text:
// a fixed registry of regex recognizers, a named-entity model, and
// context-sensitive confidence scoring, per spec.md §4.3.
package detector

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

const (
	// ContextWindow is the number of tokens either side of a span searched
	// for role/context keywords.
	ContextWindow = 6
	// CtxBoost multiplies confidence by (1+CtxBoost) when a context word is found.
	CtxBoost = 0.35
	// CtxPenalty multiplies confidence by (1-CtxPenalty) when a negating word is found.
	CtxPenalty = 0.5
	// ContextMax is the default context_snippet size in bytes.
	ContextMax = 80
	// SnippetHardCap bounds context_snippet regardless of ContextMax.
	SnippetHardCap = 256
	// minHalfWindow is the minimum half-window used to build a snippet.
	minHalfWindow = 8
)

// Finding is one detected PII instance, scoped to a single page's text —
// BatchManager attaches page_number and persists it as a store.Finding.
type Finding struct {
	PIIType        string
	Confidence     float64
	CharOffset     int
	CharLength     int
	ContextSnippet string
}

// severityByType mirrors the static pii_categories reference table (the
// same seed data the Store migration inserts) so overlap resolution can
// tie-break by severity without the detector importing the store package.
var severityByType = map[string]int{
	"PERSON": 4, "EMAIL_ADDRESS": 3, "PHONE_NUMBER": 3, "US_SSN": 5,
	"US_DRIVER_LICENSE": 5, "US_PASSPORT": 5, "CREDIT_CARD": 5,
	"US_BANK_NUMBER": 5, "US_ITIN": 5, "IP_ADDRESS": 2, "DATE_TIME": 1,
	"LOCATION": 3, "MEDICAL_RECORD": 5, "URL": 1, "CASE_NUMBER": 3,
	"LEGAL_ROLE_NAME": 5, "ROUTING_NUMBER": 4, "MAC_ADDRESS": 2, "DEVICE_ID": 2,
}

var legalRoleKeywords = regexp.MustCompile(`(?i)\b(?:judge|justice|attorney|counsel|lawyer|defendant|plaintiff|victim|witness|minor|juvenile|suspect|respondent|petitioner|complainant|informant)\b`)

var negationWords = []string{"example", "sample", "redacted", "dummy", "placeholder", "fake", "xxx-xx-xxxx"}

// contextWords lists, per pii_type, words whose presence within
// ContextWindow tokens boosts confidence — grounded on the keyword lists
// used by the Python original's proximity-gated recognizers (routing
// numbers, bank accounts, medical records, device IDs, SSNs, passports).
var contextWords = map[string][]string{
	"ROUTING_NUMBER":    {"routing", "aba", "transit", "bank", "wire", "ach"},
	"US_BANK_NUMBER":    {"account", "acct", "bank", "checking", "savings", "deposit"},
	"MEDICAL_RECORD":    {"mrn", "patient", "medical", "health", "record"},
	"DEVICE_ID":         {"imei", "serial", "device", "meid", "esn"},
	"US_SSN":            {"ssn", "social", "security"},
	"US_PASSPORT":       {"passport"},
	"US_DRIVER_LICENSE": {"license", "dl", "driver"},
	"CREDIT_CARD":       {"card", "visa", "mastercard", "amex", "discover"},
	"CASE_NUMBER":       {"case", "docket", "cause", "court"},
}

// Detector composes the fixed recognizer registry plus an NER model.
type Detector struct {
	recognizers []Recognizer
	ner         NERModel
	contextMax  int
}

// Option configures a Detector at construction time.
type Option func(*Detector)

// WithContextMax overrides the default context_snippet target size
// (ContextMax) used to build ContextSnippet. SnippetHardCap still applies
// as an absolute ceiling regardless of this value.
func WithContextMax(n int) Option { return func(d *Detector) { d.contextMax = n } }

// New builds a Detector with the default structural recognizer set and the
// built-in heuristic NER model.
func New(opts ...Option) *Detector {
	d := &Detector{
		recognizers: structuralRecognizers(),
		ner:         newHeuristicNER(),
		contextMax:  ContextMax,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewWithNER builds a Detector using a caller-supplied NER model, allowing a
// higher-fidelity implementation to be swapped in without touching the rest
// of the registry.
func NewWithNER(ner NERModel, opts ...Option) *Detector {
	d := &Detector{recognizers: structuralRecognizers(), ner: ner, contextMax: ContextMax}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect runs the full registry over text and returns findings whose final
// confidence is at or above threshold, deduplicated and overlap-resolved.
// A recognizer that panics is logged (without page content) and skipped —
// the detector never fails a document.
func (d *Detector) Detect(text string, threshold float64) []Finding {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var spans []SpanMatch
	for _, r := range d.recognizers {
		spans = append(spans, d.safeAnalyze(r, text)...)
	}

	personSpans := d.ner.FindEntities(text)
	promoted := make(map[int]bool) // index into personSpans suppressed by a LEGAL_ROLE_NAME promotion

	var roleSpans []SpanMatch
	for i, p := range personSpans {
		if p.PIIType != "PERSON" {
			continue
		}
		if promoteToLegalRole(text, p) {
			roleSpans = append(roleSpans, SpanMatch{PIIType: "LEGAL_ROLE_NAME", Start: p.Start, End: p.End, Confidence: 0.75})
			promoted[i] = true
		}
	}
	for i, p := range personSpans {
		if promoted[i] {
			continue // suppress the bare PERSON when promoted to LEGAL_ROLE_NAME for the same span
		}
		spans = append(spans, p)
	}
	spans = append(spans, roleSpans...)

	tokens := tokenize(text)

	// Negating words are looked up with every candidate span blanked out, so
	// text that belongs to another match (such as the "example" in an email
	// domain) cannot penalize a neighbouring span.
	masked := []byte(text)
	for _, sp := range spans {
		for i := sp.Start; i < sp.End; i++ {
			masked[i] = ' '
		}
	}
	negText := string(masked)

	findings := make([]Finding, 0, len(spans))
	for _, sp := range spans {
		conf := applyContext(text, negText, tokens, sp)
		if conf < threshold {
			continue
		}
		findings = append(findings, Finding{
			PIIType:        sp.PIIType,
			Confidence:     conf,
			CharOffset:     sp.Start,
			CharLength:     sp.End - sp.Start,
			ContextSnippet: buildSnippet(text, sp.Start, sp.End-sp.Start, d.contextMax),
		})
	}

	return resolveOverlaps(findings)
}

func (d *Detector) safeAnalyze(r Recognizer, text string) (spans []SpanMatch) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("recognizer panicked", "recognizer", r.Name(), "recover", rec)
			spans = nil
		}
	}()
	return r.Analyze(text)
}

// promoteToLegalRole reports whether a PERSON span at p falls within
// ContextWindow tokens of a legal role keyword.
func promoteToLegalRole(text string, p SpanMatch) bool {
	for _, kw := range legalRoleKeywords.FindAllStringIndex(text, -1) {
		if tokenDistance(text, p.Start, p.End, kw[0], kw[1]) <= ContextWindow {
			return true
		}
	}
	return false
}

type token struct{ start, end int }

func tokenize(text string) []token {
	var toks []token
	inWord := false
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		isWord := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if isWord && !inWord {
			start = i
			inWord = true
		} else if !isWord && inWord {
			toks = append(toks, token{start, i})
			inWord = false
		}
	}
	if inWord {
		toks = append(toks, token{start, len(text)})
	}
	return toks
}

// tokenIndexNear returns the index of the token containing pos, or of the
// nearest token before pos when pos falls between tokens (0 if none).
func tokenIndexNear(tokens []token, pos int) int {
	lo, hi := 0, len(tokens)-1
	best := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if tokens[mid].start <= pos {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

func tokenDistance(text string, aStart, aEnd, bStart, bEnd int) int {
	tokens := tokenize(text)
	ai := tokenIndexNear(tokens, aStart)
	bi := tokenIndexNear(tokens, bStart)
	_ = aEnd
	_ = bEnd
	d := ai - bi
	if d < 0 {
		d = -d
	}
	return d
}

// applyContext boosts then penalizes a span's base confidence based on
// nearby context/negation words, in that deterministic order, capping the
// boosted value at 1.0. Negation words are searched in negText, which is
// text with every candidate span blanked.
func applyContext(text, negText string, tokens []token, sp SpanMatch) float64 {
	conf := sp.Confidence

	words := contextWords[sp.PIIType]
	if len(words) > 0 && hasNearbyWord(text, tokens, sp.Start, sp.End, words) {
		conf *= 1 + CtxBoost
		if conf > 1.0 {
			conf = 1.0
		}
	}

	if hasNearbyWord(negText, tokens, sp.Start, sp.End, negationWords) {
		conf *= 1 - CtxPenalty
	}

	return conf
}

// hasNearbyWord searches up to ContextWindow tokens strictly before start
// and strictly after end — the matched span's own text is excluded so a
// recognizer's own match text (e.g. an email address containing the word
// "example") cannot self-trigger a negation or boost.
func hasNearbyWord(text string, tokens []token, start, end int, words []string) bool {
	// Tokens entirely before the match.
	before := 0
	for before < len(tokens) && tokens[before].end <= start {
		before++
	}
	loIdx := before - ContextWindow
	if loIdx < 0 {
		loIdx = 0
	}
	if before > 0 {
		windowStart := tokens[loIdx].start
		windowEnd := tokens[before-1].end
		if containsAny(text, windowStart, windowEnd, words) {
			return true
		}
	}

	// Tokens entirely after the match.
	after := len(tokens) - 1
	for after >= 0 && tokens[after].start >= end {
		after--
	}
	after++ // first token index at/after end
	hiIdx := after + ContextWindow - 1
	if hiIdx >= len(tokens) {
		hiIdx = len(tokens) - 1
	}
	if after < len(tokens) && after <= hiIdx {
		windowStart := tokens[after].start
		windowEnd := tokens[hiIdx].end
		if containsAny(text, windowStart, windowEnd, words) {
			return true
		}
	}

	return false
}

func containsAny(text string, start, end int, words []string) bool {
	if start < 0 || end > len(text) || start >= end {
		return false
	}
	window := strings.ToLower(text[start:end])
	for _, w := range words {
		if strings.Contains(window, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// buildSnippet builds a contextMax-bounded, CR/LF-collapsed context snippet
// centered on [offset, offset+length). SnippetHardCap always applies as an
// absolute ceiling regardless of contextMax.
func buildSnippet(text string, offset, length, contextMax int) string {
	half := (contextMax - length) / 2
	if half < minHalfWindow {
		half = minHalfWindow
	}
	start := offset - half
	if start < 0 {
		start = 0
	}
	end := offset + length + half
	if end > len(text) {
		end = len(text)
	}
	snippet := text[start:end]
	snippet = strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, snippet)
	if len(snippet) > SnippetHardCap {
		snippet = snippet[:SnippetHardCap]
	}
	return snippet
}

// resolveOverlaps groups findings by overlapping [offset, offset+length)
// intervals; for full overlaps of different pii_type it keeps the one with
// higher severity, tie-broken by confidence then by lexicographic pii_type.
// Partial overlaps are retained as separate findings.
func resolveOverlaps(findings []Finding) []Finding {
	if len(findings) <= 1 {
		return findings
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].CharOffset < findings[j].CharOffset })

	kept := make([]bool, len(findings))
	for i := range findings {
		kept[i] = true
	}

	for i := 0; i < len(findings); i++ {
		if !kept[i] {
			continue
		}
		iStart, iEnd := findings[i].CharOffset, findings[i].CharOffset+findings[i].CharLength
		for j := i + 1; j < len(findings); j++ {
			if !kept[j] {
				continue
			}
			jStart, jEnd := findings[j].CharOffset, findings[j].CharOffset+findings[j].CharLength
			if jStart >= iEnd {
				break // findings sorted by offset; no further candidate can overlap i
			}
			if !(jStart == iStart && jEnd == iEnd) {
				continue // partial overlap: keep both
			}
			winner := betterFinding(findings[i], findings[j])
			if winner == 0 {
				kept[j] = false
			} else {
				kept[i] = false
				break
			}
		}
	}

	out := make([]Finding, 0, len(findings))
	for i, f := range findings {
		if kept[i] {
			out = append(out, f)
		}
	}
	return out
}

// betterFinding returns which of a, b (by index within the pair: 0 for
// first arg, 1 for second) wins full-overlap resolution.
func betterFinding(a, b Finding) int {
	sa, sb := severityByType[a.PIIType], severityByType[b.PIIType]
	if sa != sb {
		if sa > sb {
			return 0
		}
		return 1
	}
	if a.Confidence != b.Confidence {
		if a.Confidence > b.Confidence {
			return 0
		}
		return 1
	}
	if a.PIIType <= b.PIIType {
		return 0
	}
	return 1
}
