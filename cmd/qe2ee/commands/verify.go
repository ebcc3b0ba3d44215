package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"qe2ee/internal/domain"
	"qe2ee/internal/services/verify"
)

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "verify <device-keys.json>",
		Short:       "Check the self-signature on a device key bundle",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{noAccount: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var dk domain.DeviceKeys
			if err := json.Unmarshal(raw, &dk); err != nil {
				return fmt.Errorf("parse device keys: %w", err)
			}
			if !verify.VerifyIdentitySignature(dk, dk.DeviceID, dk.UserID) {
				return fmt.Errorf("signature of %s/%s does not verify", dk.UserID, dk.DeviceID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Device %s of %s: signature OK\n", dk.DeviceID, dk.UserID)
			return nil
		},
	}
}
