package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"qe2ee/internal/domain"
)

func fileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Encrypt or decrypt attachments",
	}
	cmd.AddCommand(fileEncryptCmd(), fileDecryptCmd())
	return cmd
}

func fileEncryptCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:         "encrypt <in> <out>",
		Short:       "Encrypt a file and print its metadata",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{noAccount: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			meta, ciphertext, err := appCtx.Files.EncryptFile(plaintext)
			if err != nil {
				return err
			}
			meta.URL = url
			if err := os.WriteFile(args[1], ciphertext, 0o600); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), meta)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "content URI to record in the metadata")
	return cmd
}

func fileDecryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "decrypt <in> <metadata.json> <out>",
		Short:       "Check and decrypt a file",
		Args:        cobra.ExactArgs(3),
		Annotations: map[string]string{noAccount: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ciphertext, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			var meta domain.EncryptedFileMetadata
			if err := json.Unmarshal(raw, &meta); err != nil {
				return fmt.Errorf("parse metadata: %w", err)
			}
			plaintext, err := appCtx.Files.DecryptFile(ciphertext, meta)
			if err != nil {
				return err
			}
			return os.WriteFile(args[2], plaintext, 0o600)
		},
	}
}
