package retriever

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NoResults is the context produced for an empty result.
const NoResults = "No relevant documents found in the EPAS knowledge base."

// FormatForLLM renders a result as markdown context for a generator.
//
// The layout is fixed so that citations can be parsed back out:
//
//	# Retrieved EPAS Documents
//
//	## Document 1
//	**Source**: Volume I, Section ORO.GEN.200, Page 12
//	**Chunk ID**: volI_secORO.GEN.200_p12_c0
//	**Relevance Score**: 0.842
//
//	**Section**: Management system
//
//	**Content**:
//	...
//
//	**Cross-references**: Volume II, MST.0001
//
//	---
//
// Section and Page are omitted from the source line when unknown, as are
// the Section and Cross-references blocks when empty. Content lines that
// would read as a document heading or separator are escaped with a
// backslash.
func FormatForLLM(res *Result) string {
	if res == nil || len(res.Items) == 0 {
		return NoResults
	}

	var b strings.Builder
	b.WriteString("# Retrieved EPAS Documents\n\n")

	for i, it := range res.Items {
		m := it.Metadata
		fmt.Fprintf(&b, "## Document %d\n", i+1)
		b.WriteString("**Source**: " + Citation{
			Volume:    m.Volume,
			SectionID: m.SectionID,
			Page:      m.StartPage,
		}.String() + "\n")
		fmt.Fprintf(&b, "**Chunk ID**: %s\n", it.Chunk.ID)
		fmt.Fprintf(&b, "**Relevance Score**: %.3f\n\n", it.Score)

		if m.SectionTitle != "" {
			fmt.Fprintf(&b, "**Section**: %s\n\n", strings.Join(strings.Fields(m.SectionTitle), " "))
		}

		fmt.Fprintf(&b, "%s\n%s\n\n", contentLine, escapeContent(it.Text))

		if len(it.CrossReferences) > 0 {
			fmt.Fprintf(&b, "**Cross-references**: %s\n\n", strings.Join(it.CrossReferences, ", "))
		}

		b.WriteString(separator + "\n\n")
	}
	return b.String()
}

func escapeContent(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l == separator || documentLine.MatchString(l) {
			lines[i] = `\` + l
		}
	}
	return strings.Join(lines, "\n")
}

// Citation identifies the source of one formatted document.
type Citation struct {
	Document  int
	Volume    string
	SectionID string
	Page      int
	ChunkID   string
	Score     float64
}

// String renders the citation as it appears on a Source line.
func (c Citation) String() string {
	volume := c.Volume
	if volume == "" {
		volume = "N/A"
	}
	s := "Volume " + volume
	if c.SectionID != "" {
		s += ", Section " + c.SectionID
	}
	if c.Page > 0 {
		s += ", Page " + strconv.Itoa(c.Page)
	}
	return s
}

const separator = "---"

var (
	documentLine = regexp.MustCompile(`^## Document (\d+)$`)
	sourceLine   = regexp.MustCompile(`^\*\*Source\*\*: Volume (\S+?)(?:, Section (.+?))?(?:, Page (\d+))?$`)
	chunkIDLine  = regexp.MustCompile(`^\*\*Chunk ID\*\*: (\S+)$`)
	scoreLine    = regexp.MustCompile(`^\*\*Relevance Score\*\*: (-?[0-9.]+)$`)
)

const contentLine = "**Content**:"

// ParseCitations recovers the citations from text produced by
// FormatForLLM. Only the header lines of each document are read; everything
// from the Content marker to the document separator is skipped.
func ParseCitations(text string) []Citation {
	var out []Citation
	var cur *Citation
	inHeader, inContent := false, false

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), len(text)+1)
	for sc.Scan() {
		line := sc.Text()
		if inContent {
			inContent = line != separator
			continue
		}
		if line == contentLine {
			inHeader, inContent = false, cur != nil
			continue
		}
		if m := documentLine.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			if n == len(out)+1 {
				out = append(out, Citation{Document: n})
				cur = &out[len(out)-1]
				inHeader = true
				continue
			}
		}
		if !inHeader {
			continue
		}
		switch {
		case line == "":
			// The header ends at the first blank line.
			inHeader = false
		case sourceLine.MatchString(line):
			m := sourceLine.FindStringSubmatch(line)
			if m[1] != "N/A" {
				cur.Volume = m[1]
			}
			cur.SectionID = m[2]
			if m[3] != "" {
				cur.Page, _ = strconv.Atoi(m[3])
			}
		case chunkIDLine.MatchString(line):
			cur.ChunkID = chunkIDLine.FindStringSubmatch(line)[1]
		case scoreLine.MatchString(line):
			cur.Score, _ = strconv.ParseFloat(scoreLine.FindStringSubmatch(line)[1], 64)
		}
	}
	return out
}
