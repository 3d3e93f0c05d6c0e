package retriever

import (
	"regexp"
	"sort"
	"strings"
)

// MaxCrossReferences caps the references attached to one result.
const MaxCrossReferences = 5

var (
	// "Volume II", "Vol. III", "see also Volume I"
	volumeRef = regexp.MustCompile(`(?i:\b(?:volume|vol\.))\s+(I{1,3})\b`)
	// "see II", "see also III"
	seeRef = regexp.MustCompile(`(?i:\bsee\s+(?:also\s+)?)(I{1,3})\b`)
	// "ORO.GEN.200", "MST.0001"
	sectionRef = regexp.MustCompile(`\b[A-Z]{2,4}\.[\w.]*\w`)
)

type reference struct {
	pos  int
	text string
}

// CrossReferences extracts mentions of other volumes and of section ids
// from text. Volume mentions are canonicalized to "Volume <N>" and
// mentions of ownVolume are dropped. The result is de-duplicated, in
// order of first appearance, and holds at most MaxCrossReferences entries.
func CrossReferences(text, ownVolume string) []string {
	var refs []reference
	for _, re := range []*regexp.Regexp{volumeRef, seeRef} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			refs = append(refs, reference{pos: m[0], text: "Volume " + text[m[2]:m[3]]})
		}
	}
	for _, m := range sectionRef.FindAllStringIndex(text, -1) {
		refs = append(refs, reference{pos: m[0], text: text[m[0]:m[1]]})
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].pos < refs[j].pos })

	own := "Volume " + strings.ToUpper(ownVolume)
	seen := make(map[string]bool)
	out := []string{}
	for _, r := range refs {
		if r.text == own || seen[r.text] {
			continue
		}
		seen[r.text] = true
		out = append(out, r.text)
		if len(out) == MaxCrossReferences {
			break
		}
	}
	return out
}
