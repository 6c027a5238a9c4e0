package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"

	"github.com/fastsm/fastsm/internal/app"
	"github.com/fastsm/fastsm/internal/tui"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.fastsm/config.toml)")
	flag.Parse()

	var ui *tui.App
	fxApp := fx.New(
		app.Module(app.Params{ConfigPath: *configFlag}),
		fx.Populate(&ui),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// tview owns the main goroutine; everything else runs behind it.
	runErr := ui.Run()

	stopCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := fxApp.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
