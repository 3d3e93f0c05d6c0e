package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perbu/epasrag/pkg/epas"
	"github.com/perbu/epasrag/pkg/retriever"
)

var (
	queryVolume    string
	queryK         int
	queryThreshold float64
	queryNoContext bool
	queryRaw       bool
)

var queryCmd = &cobra.Command{
	Use:   "query [flags] QUESTION",
	Short: "Retrieve the passages most relevant to a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		if err := checkVolume(queryVolume); err != nil {
			return err
		}

		r, closeEmb, err := newRetriever()
		if err != nil {
			return err
		}
		defer closeEmb()

		opts := []retriever.RetrieveOption{retriever.Volume(queryVolume)}
		if cmd.Flags().Changed("k") {
			opts = append(opts, retriever.K(queryK))
		}
		if cmd.Flags().Changed("threshold") {
			opts = append(opts, retriever.Threshold(queryThreshold))
		}
		if queryNoContext {
			opts = append(opts, retriever.WithoutContext())
		}

		res, err := r.Retrieve(cmd.Context(), question, opts...)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if queryRaw {
			fmt.Fprint(w, retriever.FormatForLLM(res))
			return nil
		}
		printResults(w, res)
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryVolume, "volume", "", "restrict to one volume (I, II or III)")
	queryCmd.Flags().IntVar(&queryK, "k", retriever.DefaultK, "number of results, overrides retrieval.top_k")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", retriever.DefaultScoreThreshold, "minimum similarity score, overrides retrieval.score_threshold")
	queryCmd.Flags().BoolVar(&queryNoContext, "no-context", false, "do not attach neighbouring chunks")
	queryCmd.Flags().BoolVar(&queryRaw, "raw", false, "print the markdown handed to the language model")
}

func newRetriever() (*retriever.Retriever, func() error, error) {
	emb, closeEmb, err := newEmbedder(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	handle, err := openStore(cfg, emb, log)
	if err != nil {
		closeEmb()
		return nil, nil, err
	}
	r := retriever.New(handle, emb,
		retriever.WithK(cfg.Retrieval.TopK),
		retriever.WithScoreThreshold(cfg.Retrieval.ScoreThreshold),
		retriever.WithLogger(log))
	return r, closeEmb, nil
}

func checkVolume(v string) error {
	if v == "" {
		return nil
	}
	if _, ok := epas.LookupVolume(v); !ok {
		return fmt.Errorf("unknown volume %q, expected one of %s", v, strings.Join(epas.VolumeIDs(), ", "))
	}
	return nil
}

func printResults(w io.Writer, res *retriever.Result) {
	if len(res.Items) == 0 {
		fmt.Fprintln(w, "No results found")
		return
	}

	fmt.Fprintf(w, "Found %d results:\n\n", res.TotalResults)
	for i, it := range res.Items {
		c := retriever.Citation{
			Volume:    it.Metadata.Volume,
			SectionID: it.Metadata.SectionID,
			Page:      it.Metadata.StartPage,
		}
		fmt.Fprintf(w, "Score: %.2f | %s", it.Score, c.String())
		if it.Metadata.SectionTitle != "" {
			fmt.Fprintf(w, " [%s]", it.Metadata.SectionTitle)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w)

		if it.Context != nil && it.Context.Previous != "" {
			fmt.Fprintf(w, "%s\n\n", it.Context.Previous)
		}
		if it.Context != nil {
			fmt.Fprintln(w, ">>> MATCHED CHUNK <<<")
		}
		fmt.Fprintln(w, it.Text)
		if it.Context != nil && it.Context.Next != "" {
			fmt.Fprintf(w, "\n%s\n", it.Context.Next)
		}
		if len(it.CrossReferences) > 0 {
			fmt.Fprintf(w, "\nSee also: %s\n", strings.Join(it.CrossReferences, ", "))
		}

		if i < len(res.Items)-1 {
			fmt.Fprintln(w, "\n"+strings.Repeat("-", 80)+"\n")
		}
	}
}
