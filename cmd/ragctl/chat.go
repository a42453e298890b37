package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCmd(c *cli) *cobra.Command {
	var (
		dir  string
		user string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the documents in a directory",
		Long:  "Starts an interactive session on stdin. Type /help for commands and quit to exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.indexDir(cmd, dir)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			in := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "You: ")
				if !in.Scan() {
					fmt.Fprintln(out)
					return in.Err()
				}
				line := strings.TrimSpace(in.Text())
				switch strings.ToLower(line) {
				case "":
					continue
				case "quit", "exit":
					return nil
				}
				fmt.Fprintf(out, "Bot: %s\n\n", a.Bot.Handle(cmd.Context(), user, line))
			}
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "./documents", "directory of documents to index")
	cmd.Flags().StringVar(&user, "user", "cli_user", "session user id")
	return cmd
}
