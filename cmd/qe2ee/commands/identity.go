package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func identityCmd() *cobra.Command {
	var bundle bool
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Print identity keys and fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bundle {
				dk, err := appCtx.Account.DeviceKeys()
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), dk)
			}
			ids, err := appCtx.Account.IdentityKeys()
			if err != nil {
				return err
			}
			fp, err := appCtx.Fingerprint()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "curve25519:  %s\n", ids.Curve25519)
			fmt.Fprintf(out, "ed25519:     %s\n", ids.Ed25519)
			fmt.Fprintf(out, "Fingerprint: %s\n", fp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&bundle, "device-keys", false, "print the signed device keys as JSON instead")
	return cmd
}
