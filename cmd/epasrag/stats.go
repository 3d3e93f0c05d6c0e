package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/perbu/epasrag/pkg/epas"
	"github.com/perbu/epasrag/pkg/vectorstore"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := vectorstore.Load(cfg.VectorStore.Dir, vectorstore.WithLogger(log))
		if err != nil {
			return err
		}
		stats, err := vectorstore.NewHandle(store).Statistics()
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

func printStats(w io.Writer, s vectorstore.Stats) {
	fmt.Fprintf(w, "Chunks:     %d\n", s.TotalChunks)
	fmt.Fprintf(w, "Vectors:    %d (dim=%d)\n", s.IndexVectors, s.Dimension)
	if s.Model != "" {
		fmt.Fprintf(w, "Model:      %s\n", s.Model)
	}
	if !s.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:    %s\n", s.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w, "Volumes:")
	for _, id := range epas.VolumeIDs() {
		v, _ := epas.LookupVolume(id)
		fmt.Fprintf(w, "  %-4s %6d  %s\n", id, s.Volumes[id], v.Title)
	}
	for id, n := range s.Volumes {
		if _, known := epas.LookupVolume(id); !known {
			fmt.Fprintf(w, "  %-4s %6d  (not in catalog)\n", id, n)
		}
	}
}
