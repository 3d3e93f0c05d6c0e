package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/perbu/epasrag/pkg/chunker"
	"github.com/perbu/epasrag/pkg/loader"
	"github.com/perbu/epasrag/pkg/vectorstore"
)

var (
	buildSections string
	buildOut      string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Chunk, embed and index EPAS sections",
	Long: `Load sections from a directory of JSON Lines (*.jsonl) or per-volume
markdown files, split them into token-bounded chunks, embed them and save
the vector store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := buildOut
		if out == "" {
			out = cfg.VectorStore.Dir
		}
		return runBuild(cmd, buildSections, out)
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildSections, "sections", "", "directory holding the extracted sections")
	buildCmd.Flags().StringVar(&buildOut, "out", "", "output directory (default vector_store.dir)")
	_ = buildCmd.MarkFlagRequired("sections")
}

func runBuild(cmd *cobra.Command, sectionsDir, out string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	start := time.Now()

	fmt.Fprintln(w, "Step 1: Loading sections...")
	sections, err := loader.LoadSections(os.DirFS(sectionsDir), ".", loader.WithLogger(log))
	if err != nil {
		return fmt.Errorf("loading sections from %s: %w", sectionsDir, err)
	}
	if len(sections) == 0 {
		return fmt.Errorf("no sections found in %s", sectionsDir)
	}
	fmt.Fprintf(w, "  ✓ Loaded %d sections\n\n", len(sections))

	fmt.Fprintln(w, "Step 2: Chunking...")
	tok, err := chunker.NewTokenizer(cfg.Chunking.Tokenizer)
	if err != nil {
		return err
	}
	ch := chunker.New(
		chunker.WithChunkSize(cfg.Chunking.Size),
		chunker.WithTokenizer(tok),
		chunker.WithLogger(log))
	chunks := ch.ChunkAll(sections)
	cs := chunker.ComputeStats(chunks)
	fmt.Fprintf(w, "  ✓ %d chunks from %d volumes (tokens: avg %.1f, min %d, max %d, %s)\n\n",
		cs.TotalChunks, cs.Volumes, cs.AvgTokens, cs.MinTokens, cs.MaxTokens, tok.Name())

	fmt.Fprintln(w, "Step 3: Generating embeddings...")
	emb, closeEmb, err := newEmbedder(cfg, log)
	if err != nil {
		return err
	}
	defer closeEmb()
	if err := emb.EmbedChunks(ctx, chunks); err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}
	fmt.Fprintf(w, "  ✓ Embedded %d chunks (model=%s, dim=%d)\n\n", len(chunks), emb.Name(), emb.Dimension())

	fmt.Fprintln(w, "Step 4: Building and saving index...")
	store, err := vectorstore.Build(emb.Dimension(), chunks,
		vectorstore.WithModel(emb.Name()),
		vectorstore.WithLogger(log))
	if err != nil {
		return err
	}
	if err := store.Save(out); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ Saved to %s\n\n", out)

	stats, err := store.Statistics()
	if err != nil {
		return err
	}
	printStats(w, stats)
	fmt.Fprintf(w, "\nDone in %v.\n", time.Since(start).Round(time.Millisecond))
	return nil
}
