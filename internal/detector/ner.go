package detector

import "regexp"

// NERModel yields named-entity spans (PERSON, LOCATION). A real statistical
// model is an external, downloaded asset and out of scope for this core
// (spec.md §1); heuristicNER is the built-in default so the registry is
// always fully populated at startup.
type NERModel interface {
	FindEntities(text string) []SpanMatch
}

var capWordRe = regexp.MustCompile(`^[A-Z][a-z]+$`)

var locCapRe = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?,\s*[A-Z]{2}\b)`)

// leadWords never start a person name even when Title Case: common sentence
// openers, salutations, and honorifics that precede a real name.
var leadWords = map[string]bool{
	"Contact": true, "Dear": true, "From": true, "Subject": true, "Re": true,
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"There": true, "It": true, "He": true, "She": true, "They": true,
	"We": true, "You": true, "Mr": true, "Mrs": true, "Ms": true, "Dr": true,
	"Witness": true, "Attorney": true, "Judge": true, "Plaintiff": true,
	"Defendant": true, "Victim": true,
}

// heuristicNER is a capitalization-run heuristic: a maximal run of
// consecutive Title Case words, after stripping any leading word that is a
// known salutation/sentence-opener, becomes a PERSON candidate when at
// least two words remain. A Title Case phrase followed by a two-letter
// state abbreviation is a LOCATION candidate.
type heuristicNER struct{}

func newHeuristicNER() *heuristicNER { return &heuristicNER{} }

func (h *heuristicNER) FindEntities(text string) []SpanMatch {
	var out []SpanMatch
	tokens := tokenize(text)

	i := 0
	for i < len(tokens) {
		word := text[tokens[i].start:tokens[i].end]
		if !capWordRe.MatchString(word) {
			i++
			continue
		}
		j := i + 1
		for j < len(tokens) {
			w := text[tokens[j].start:tokens[j].end]
			if !capWordRe.MatchString(w) || !adjacent(text, tokens[j-1], tokens[j]) {
				break
			}
			j++
		}
		// [i, j) is a maximal run of adjacent Title Case words.
		start := i
		for start < j && leadWords[text[tokens[start].start:tokens[start].end]] {
			start++
		}
		if j-start >= 2 {
			span := SpanMatch{
				PIIType:    "PERSON",
				Start:      tokens[start].start,
				End:        tokens[j-1].end,
				Confidence: 0.85,
			}
			out = append(out, span)
		}
		i = j
	}

	for _, loc := range locCapRe.FindAllStringIndex(text, -1) {
		out = append(out, SpanMatch{PIIType: "LOCATION", Start: loc[0], End: loc[1], Confidence: 0.7})
	}

	return out
}

// adjacent reports whether tokens a and b are separated by exactly one space
// character, so "John   Smith" or a name split across a line break does not
// count as one name but "John Smith" does.
func adjacent(text string, a, b token) bool {
	return text[a.end:b.start] == " "
}
