package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"qe2ee/internal/events"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Pairwise Olm sessions with other devices",
	}
	cmd.AddCommand(sessionOpenCmd(), sessionEncryptCmd(), sessionDecryptCmd())
	return cmd
}

// sessionOpenCmd claims nothing itself: the caller supplies the peer's
// identity key and one of its published one-time keys.
func sessionOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <peer-curve25519> <peer-one-time-key>",
		Short: "Start an outbound session with a peer device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := appCtx.OpenOutbound(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("starting session with %q: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s created with %s.\n", s.SessionID(), args[0])
			return nil
		},
	}
}

func sessionEncryptCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "encrypt <peer-curve25519> <message>",
		Short: "Encrypt a text message and print the m.room.encrypted content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := appCtx.SendText(cmd.Context(), args[0], to, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ev)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient user id")
	return cmd
}

func sessionDecryptCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "decrypt <event.json>",
		Short: "Decrypt m.room.encrypted content, accepting new inbound sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var ev events.EncryptedEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				return fmt.Errorf("parse event: %w", err)
			}
			if raw {
				pt, err := appCtx.Decrypt(cmd.Context(), ev)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(pt))
				return nil
			}
			p, c, err := appCtx.ReadMessage(cmd.Context(), ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s: %s\n", p.Sender, p.SenderDevice, c.MsgType(), c.Body())
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the decrypted payload without parsing it")
	return cmd
}
