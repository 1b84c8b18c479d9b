package cli

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/indexing/decoder"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [envelope]",
	Short: "Decode a transaction envelope given as hex or base64 and print its credits",
	Args:  cobra.ExactArgs(1),
	Run:   runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) {
	raw, err := decodeInput(args[0])
	if err != nil {
		fmt.Printf("Invalid input: %v\n", err)
		os.Exit(1)
	}

	tx, err := decoder.New(decoder.NewEVMDecoder()).Decode(raw)
	if err != nil {
		fmt.Printf("Decode failed: %v\n", err)
		os.Exit(1)
	}
	printDecoded(os.Stdout, tx)
}

// decodeInput accepts hex, with or without 0x, or standard base64.
func decodeInput(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty envelope")
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if b, err := hex.DecodeString(trimmed); err == nil {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("neither hex nor base64")
	}
	return b, nil
}

func printDecoded(out io.Writer, tx *domain.DecodedTransaction) {
	_, _ = fmt.Fprintf(out, "id:       %s\n", tx.ID)
	_, _ = fmt.Fprintf(out, "kind:     %s\n", tx.Kind)
	_, _ = fmt.Fprintf(out, "layout:   %s\n", tx.Layout)
	_, _ = fmt.Fprintf(out, "payer:    %s\n", tx.Payer)
	if tx.Memo != "" {
		_, _ = fmt.Fprintf(out, "memo:     %q\n", tx.Memo)
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "INDEX\tDESTINATION\tAMOUNT\tFOREIGN")
	for _, ins := range tx.Transfers {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%t\n", ins.Index, ins.Destination, ins.Amount, ins.Foreign)
	}
	_ = w.Flush()
}
