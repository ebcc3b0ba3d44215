package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the device account and store it pickled",
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := appCtx.Fingerprint()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s ready.\nFingerprint: %s\n", appCtx.Account.AccountID(), fp)
			return nil
		},
	}
}
