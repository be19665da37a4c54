package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HilistonGit/redflag-automute/internal/platform/version"
)

var (
	addrFlag  string
	listLocal bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "automute",
		Short:         "automute - mute tagged participants in voice chat",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addrFlag, "addr", "http://127.0.0.1:8080", "admin API address used by client commands")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the auto-mute session and the admin API",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "tag <identity> <red|yellow>",
			Short: "Tag a participant",
			Args:  cobra.ExactArgs(2),
			RunE:  runTag,
		},
		&cobra.Command{
			Use:   "untag <identity>",
			Short: "Remove a participant's tag",
			Args:  cobra.ExactArgs(1),
			RunE:  runUntag,
		},
		newListCmd(),
		&cobra.Command{
			Use:   "status",
			Short: "Show session status",
			Args:  cobra.NoArgs,
			RunE:  runStatus,
		},
	)
	return root
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tagged participants with totals",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.Flags().BoolVar(&listLocal, "local", false, "show the copy kept in the local fallback store")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
