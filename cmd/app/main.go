package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"inventory-ledger/internal/adapters/cli"
	"inventory-ledger/internal/adapters/repl"
	"inventory-ledger/internal/app"
	"inventory-ledger/internal/config"
	"inventory-ledger/internal/logger"
)

func main() {
	inMemory := flag.Bool("memory", false, "keep all state in memory instead of Postgres")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: app [-memory] [command [flags]]")
		fmt.Fprintln(os.Stderr, "Without a command an interactive session starts.")
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logger.Init(cfg.Logger.Level, cfg.Logger.JSON); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, *inMemory)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer rt.Close()

	if flag.NArg() == 0 {
		repl.Run(ctx, rt.Service, bufio.NewReader(os.Stdin), os.Stdout)
		return
	}

	if err := cli.Run(ctx, rt.Service, flag.Args(), os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			rt.Close()
			os.Exit(2)
		}
		logger.Error(ctx, "command failed", logger.String("command", flag.Arg(0)), logger.ErrorF(err))
		rt.Close()
		os.Exit(1)
	}
}
