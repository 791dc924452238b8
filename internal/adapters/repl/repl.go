package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"inventory-ledger/internal/app"
)

var errExit = errors.New("exit")

// Run starts the interactive loop. Slash commands are dispatched
// deterministically; any other input is treated as a count sheet and routed
// through the AI interpreter, with a confirmation before anything is
// recorded. It returns when the reader is exhausted or the user exits.
func Run(ctx context.Context, svc app.ApplicationService, reader *bufio.Reader, w io.Writer) {
	fmt.Fprintln(w, "Inventory Ledger")
	fmt.Fprintln(w, "Paste a count sheet line to reconcile it, or use /help for commands.")
	fmt.Fprintln(w, strings.Repeat("-", 70))

	for {
		fmt.Fprint(w, "\n> ")
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			if err != nil {
				return
			}
			continue
		}

		if strings.HasPrefix(input, "/") {
			if derr := dispatch(ctx, svc, reader, w, input); derr != nil {
				if errors.Is(derr, errExit) {
					fmt.Fprintln(w, "Goodbye!")
					return
				}
				fmt.Fprintf(w, "Error: %v\n", derr)
			}
		} else {
			reconcile(ctx, svc, reader, w, input)
		}
		if err != nil {
			return
		}
	}
}

func dispatch(ctx context.Context, svc app.ApplicationService, reader *bufio.Reader, w io.Writer, input string) error {
	tokens := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(tokens) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(tokens[0]), tokens[1:]

	switch cmd {
	case "levels", "stock":
		result, err := svc.ListLevels(ctx)
		if err != nil {
			return err
		}
		printLevels(w, "STOCK LEVELS", result)

	case "alerts":
		result, err := svc.ListAlerts(ctx)
		if err != nil {
			return err
		}
		printLevels(w, "ALERTS", result)

	case "lots":
		var q app.LotQuery
		if len(args) > 0 {
			q.ProductID = args[0]
		}
		result, err := svc.ListLots(ctx, q)
		if err != nil {
			return err
		}
		printLots(w, result)

	case "history":
		if len(args) < 1 {
			fmt.Fprintln(w, "Usage: /history <product>")
			return nil
		}
		result, err := svc.History(ctx, app.HistoryQuery{ProductID: args[0]})
		if err != nil {
			return err
		}
		printHistory(w, result)

	case "suggest":
		result, err := svc.Suggest(ctx)
		if err != nil {
			return err
		}
		printSuggestions(w, result)

	case "explode":
		if len(args) < 2 {
			fmt.Fprintln(w, "Usage: /explode <product> <qty>")
			return nil
		}
		qty, err := decimal.NewFromString(args[1])
		if err != nil || !qty.IsPositive() {
			fmt.Fprintf(w, "Invalid quantity: %s\n", args[1])
			return nil
		}
		result, err := svc.Explode(ctx, args[0], qty)
		if err != nil {
			return err
		}
		printExplosion(w, result)

	case "count":
		handleCountSheet(ctx, svc, reader, w)

	case "help", "h":
		printHelp(w)

	case "exit", "quit", "e", "q":
		return errExit

	default:
		fmt.Fprintf(w, "Unknown command: /%s  (type /help for all commands)\n", cmd)
	}
	return nil
}

// reconcile interprets sheet, shows the proposal and records it once the
// user confirms.
func reconcile(ctx context.Context, svc app.ApplicationService, reader *bufio.Reader, w io.Writer, sheet string) {
	fmt.Fprintln(w, "[AI] Reading count sheet...")
	proposal, err := svc.InterpretCountSheet(ctx, sheet)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	printProposal(w, proposal)
	if proposal.Confidence < 0.6 {
		fmt.Fprintln(w, "\nWARNING: Low confidence proposal.")
	}

	fmt.Fprint(w, "\nRecord these counts? (y/n): ")
	choice, _ := reader.ReadString('\n')
	choice = strings.TrimSpace(strings.ToLower(choice))
	if choice != "y" && choice != "yes" {
		fmt.Fprintln(w, "Cancelled.")
		return
	}

	result, err := svc.ApplyCountProposal(ctx, proposal, "", "repl")
	if err != nil {
		fmt.Fprintf(w, "Count FAILED: %v\n", err)
		return
	}
	printCountSheet(w, result)
}
