package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kk32340/SampleMLCode/engine/chunker"
	"github.com/kk32340/SampleMLCode/pkg/loader"
)

const previewRunes = 60

func newChunkCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Print the chunk spans of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := c.cfg.ChunkerOptions()
			if cmd.Flags().Changed("size") {
				opts.ChunkSize, _ = cmd.Flags().GetInt("size")
			}
			if cmd.Flags().Changed("overlap") {
				opts.Overlap, _ = cmd.Flags().GetInt("overlap")
			}
			ch, err := chunker.New(opts)
			if err != nil {
				return err
			}
			doc, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			chunks := ch.Chunk(doc)
			fmt.Fprintf(out, "%s: %d chunks (size=%d overlap=%d)\n", doc.ID, len(chunks), opts.ChunkSize, opts.Overlap)
			for _, ck := range chunks {
				fmt.Fprintf(out, "#%d [%d:%d] len=%d %s\n", ck.Index, ck.Start, ck.End, ck.Length, preview(ck.Text))
			}
			return nil
		},
	}
	cmd.Flags().Int("size", chunker.DefaultChunkSize, "chunk size in characters")
	cmd.Flags().Int("overlap", chunker.DefaultOverlap, "overlap in characters")
	return cmd
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= previewRunes {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%q", string(r[:previewRunes])+"...")
}
