package main

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"
)

const minSecretLength = 32

func newGenSecretCommand() *cobra.Command {
	var length int

	cmd := &cobra.Command{
		Use:   "gen-secret",
		Args:  cobra.NoArgs,
		Short: "Print a random JWT signing secret",
		Long:  "Print a random URL-safe secret suitable for auth.jwt_secret or SUPPORTPORTAL_JWT_SECRET.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if length < minSecretLength {
				return fmt.Errorf("secret length must be at least %d", minSecretLength)
			}
			secret, err := gonanoid.New(length)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), secret)
			return err
		},
	}
	cmd.Flags().IntVarP(&length, "length", "n", 48, "secret length in characters")
	return cmd
}
