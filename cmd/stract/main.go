package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"stract/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// printError writes err and any suggested fixes for its code.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	for _, fix := range errors.GetSuggestedFixes(errors.CodeOf(err)) {
		switch fix.Type {
		case errors.RunCommand:
			fmt.Fprintf(w, "  hint: %s\n    $ %s\n", fix.Description, fix.Command)
		case errors.OpenDocs:
			fmt.Fprintf(w, "  hint: %s\n    %s\n", fix.Description, fix.URL)
		}
	}
}
