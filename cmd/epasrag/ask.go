package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perbu/epasrag/pkg/assistant"
	"github.com/perbu/epasrag/pkg/retriever"
)

var askVolume string

var askCmd = &cobra.Command{
	Use:   "ask [flags] QUESTION",
	Short: "Answer a question from the EPAS documents with citations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		if err := checkVolume(askVolume); err != nil {
			return err
		}

		gen, err := newGenerator(cfg, log)
		if err != nil {
			return err
		}
		r, closeEmb, err := newRetriever()
		if err != nil {
			return err
		}
		defer closeEmb()

		a := assistant.New(r, gen, assistant.WithLogger(log))
		ans, err := a.Ask(cmd.Context(), question, retriever.Volume(askVolume))
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(ans.Answer))
		if len(ans.Sources) > 0 {
			fmt.Fprintln(w, "Sources:")
			for _, s := range ans.Sources {
				fmt.Fprintf(w, "  [%d] %s (score %.2f)\n", s.Document, s.String(), s.Score)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Confidence: %.2f | generator: %s | id: %s\n", ans.Confidence, ans.Generator, ans.ID)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askVolume, "volume", "", "restrict to one volume (I, II or III)")
}
