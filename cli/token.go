package cli

import (
	"compass/core"
	"compass/handlers/auth"
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	var login string

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API token for a user id, signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authn := auth.InitAuth(cmd.Context(), a.cfg.Auth)
			token, err := authn.CreateJWT(&core.User{Subject: args[0], Login: login})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&login, "login", "", "Login name carried in the token")
	return cmd
}
