// Command taxietl moves one month of NYC taxi trip data through either
// pipeline:
//
//	taxietl web-to-store        --color green --year 2020 --month 1
//	taxietl store-to-warehouse  --color green --year 2020 --month 1
//	taxietl validate            [--check-source]
//
// Settings come from the environment (optionally a .env file in the working
// directory) and can be overridden with flags; see `taxietl --help`.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "taxietl: .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(os.Getenv)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
