package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opd-ai/courier/httpapi"
	"github.com/opd-ai/courier/qr"
)

func newQRCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Draw the pending QR challenge of a running daemon in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runQR,
	}
	cmd.Flags().String("addr", "http://127.0.0.1:8080", "base URL of the running daemon")
	cmd.Flags().Duration("timeout", 10*time.Second, "request timeout")
	return cmd
}

func runQR(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimRight(addr, "/")+"/api/v1/qr", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch QR challenge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var er httpapi.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
			return fmt.Errorf("%s (%s)", er.Error, er.Details)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	var challenge qr.Challenge
	if err := json.NewDecoder(resp.Body).Decode(&challenge); err != nil {
		return fmt.Errorf("decode QR challenge: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Scan this QR code with the messaging app:")
	return qr.WriteTerminal(challenge.Raw, out)
}
