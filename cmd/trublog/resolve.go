package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "resolve <company>",
		Short:   "Print the primary web domain of a company or product",
		Example: `  trublog resolve "Scribe"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newResolver(a.cfg.LLM, a.logger)
			if err != nil {
				return err
			}
			if res == nil {
				return errors.New("llm.api_key is not set (TRUBLOG_LLM_API_KEY or ANTHROPIC_API_KEY)")
			}

			name := strings.Join(args, " ")
			domain, ok := res.Resolve(cmd.Context(), name)
			if !ok {
				return fmt.Errorf("could not resolve a domain for %q", name)
			}
			fmt.Fprintln(cmd.OutOrStdout(), domain)
			return nil
		},
	}
}
