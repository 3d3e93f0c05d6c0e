package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/perbu/epasrag/pkg/retriever"
)

// Echo is an offline generator. Instead of composing prose it lists the
// documents found for the question with their citations, which is enough
// to inspect retrieval without an LLM.
type Echo struct{}

// Generate lists the citations in req.Context.
func (Echo) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cites := retriever.ParseCitations(req.Context)
	if len(cites) == 0 {
		return retriever.NoResults, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Documents relevant to %q:\n", req.Question)
	for _, c := range cites {
		fmt.Fprintf(&b, "- [%s] %s (score %.3f)\n", c.String(), c.ChunkID, c.Score)
	}
	return b.String(), nil
}

// Name returns "echo".
func (Echo) Name() string { return "echo" }
