package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"inventory-ledger/internal/app"
)

// handleCountSheet collects a multi-line count sheet and reconciles it as
// one proposal.
func handleCountSheet(ctx context.Context, svc app.ApplicationService, reader *bufio.Reader, w io.Writer) {
	fmt.Fprintln(w, "Enter the count sheet. Type 'done' when finished, 'cancel' to abort.")
	fmt.Fprintln(w, "  Example: flour main 42.5 kg")
	fmt.Fprintln(w, "  Example: yeast lot Y-0611 cold 3")

	var lines []string
	for n := 1; ; n++ {
		fmt.Fprintf(w, "  Line %d: ", n)
		raw, err := reader.ReadString('\n')
		raw = strings.TrimSpace(raw)
		switch strings.ToLower(raw) {
		case "cancel":
			fmt.Fprintln(w, "Count cancelled.")
			return
		case "done":
			err = io.EOF
		default:
			if raw != "" {
				lines = append(lines, raw)
			} else {
				n--
			}
		}
		if err != nil {
			break
		}
	}

	if len(lines) == 0 {
		fmt.Fprintln(w, "No lines entered. Nothing recorded.")
		return
	}
	reconcile(ctx, svc, reader, w, strings.Join(lines, "\n"))
}
