package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the one-time key pool",
	}
	cmd.AddCommand(keysGenerateCmd(), keysUploadRequestCmd(), keysPublishCmd())
	return cmd
}

func keysGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <n>",
		Short: "Generate n one-time keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid key count %q", args[0])
			}
			generated, err := appCtx.Account.GenerateOneTimeKeys(n)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d one-time keys (pool holds at most %d).\n",
				generated, appCtx.Account.MaxNumberOfOneTimeKeys())
			return nil
		},
	}
}

func keysUploadRequestCmd() *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   "upload-request",
		Short: "Print the keys/upload request body for unpublished keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			otks, err := appCtx.Account.OneTimeKeys()
			if err != nil {
				return err
			}
			req, err := appCtx.Account.CreateUploadKeyRequest(otks)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), req); err != nil {
				return err
			}
			if publish {
				return appCtx.Account.MarkKeysAsPublished()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "mark the printed keys as published")
	return cmd
}

func keysPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Mark pending one-time keys as published",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appCtx.Account.MarkKeysAsPublished(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "One-time keys marked as published.")
			return nil
		},
	}
}
