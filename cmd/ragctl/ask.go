package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kk32340/SampleMLCode/engine/domain"
)

func newAskCmd(c *cli) *cobra.Command {
	var (
		dir string
		k   int
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the documents in a directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.indexDir(cmd, dir)
			if err != nil {
				return err
			}
			defer a.Close()

			if k == 0 {
				k = c.cfg.Retrieval.TopK
			}
			ans, err := a.RAG.Ask(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Answer)
			if len(ans.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
			}
			for i, s := range ans.Sources {
				fmt.Fprintf(out, "  %d. %v (score %.3f)\n", i+1, s.Metadata[domain.MetaDocID], s.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "./documents", "directory of documents to index")
	cmd.Flags().IntVar(&k, "k", 0, "number of chunks to retrieve (default from config)")
	return cmd
}
