package main

import (
	"fmt"
	"os"

	"github.com/hbeckert/concierge/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAccountsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List linked platform accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccounts(cmd, configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.yaml (optional)")
	return cmd
}

func runAccounts(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	bindings, err := st.ListBindings()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(bindings) == 0 {
		fmt.Fprintln(out, "no linked accounts")
		return nil
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintf(out, "%-20s %-12s %-24s %s\n", "ID", "PLATFORM", "NAME", "PARTITION")
		for _, b := range bindings {
			fmt.Fprintf(out, "%-20s %-12s %-24s %s\n", b.ID, b.Platform, b.DisplayName, b.PartitionKey)
		}
		return nil
	}
	for _, b := range bindings {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", b.ID, b.Platform, b.DisplayName, b.PartitionKey)
	}
	return nil
}
