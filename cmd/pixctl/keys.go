package main

import (
	"fmt"
	"pixgate/security"

	"github.com/spf13/cobra"
)

func (a *app) keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate secrets for the gateway configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Print a new credential encryption key and jwt secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := security.GenerateKeyBase64()
			if err != nil {
				return err
			}
			secret, err := security.RandomSecret(32)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "encryption:\n  key: %s\njwt:\n  secret: %s\n", key, secret)
			return nil
		},
	})
	return cmd
}
