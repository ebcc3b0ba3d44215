package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"qe2ee/internal/domain"
	"qe2ee/internal/services/keyimport"
)

// keyLister prints each imported room key instead of storing it.
type keyLister struct {
	out io.Writer
	n   int
}

func (l *keyLister) ImportRoomKey(k domain.ExportedRoomKey) error {
	l.n++
	_, err := fmt.Fprintf(l.out, "%s  %s  %s\n", k.RoomID, k.SessionID, k.Algorithm)
	return err
}

func importKeysCmd() *cobra.Command {
	var exportPass string
	cmd := &cobra.Command{
		Use:         "import-keys <file>",
		Short:       "Decrypt a room key export and list its sessions (nothing is stored)",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{noAccount: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if exportPass == "" {
				exportPass = cfg.Passphrase
			}
			l := &keyLister{out: cmd.OutOrStdout()}
			err = appCtx.Keys.ImportKeys(string(data), exportPass, l)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d keys\n", keyimport.ResultOf(err), l.n)
			return err
		},
	}
	cmd.Flags().StringVar(&exportPass, "export-passphrase", "", "passphrase of the export (default: --passphrase)")
	return cmd
}
