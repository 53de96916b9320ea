package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with the wallet and print a bearer token",
	Long: `Fetches the sign-in message, signs it with PRIVATE_KEY and exchanges the
signature for a bearer token. Export the token as PREDICT_AUTH_TOKEN to skip the
sign-in on later commands.`,
	RunE: runLogin,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	application, cleanup, err := bootstrap(nil, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	token, err := application.EnsureToken(ctx)
	if err != nil {
		return err
	}

	account, err := application.API().GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	w, _ := application.Wallet()
	fmt.Printf("Address: %s\n", w.Address().Hex())
	if account.Name != "" {
		fmt.Printf("Account: %s\n", account.Name)
	}
	fmt.Printf("\nPREDICT_AUTH_TOKEN=%s\n", token)

	return nil
}
