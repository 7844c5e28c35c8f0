package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/linechat/internal/app"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage stored credentials",
	}

	var secret string
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret is required")
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), cfg.Store)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			identity, err := app.NewGateway(st, &cfg).Register(cmd.Context(), args[0], secret)
			if err != nil {
				return fmt.Errorf("register %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", identity.Username)
			return nil
		},
	}
	add.Flags().StringVar(&secret, "secret", "", "secret for the new user")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered usernames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), cfg.Store)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			creds, err := st.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load credentials: %w", err)
			}
			names := make([]string, 0, len(creds))
			for name := range creds {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	user.AddCommand(add, list)
	return user
}
