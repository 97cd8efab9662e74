// Command mastercode prints the master fallback verification code for a UTC
// day. Operators use it when code delivery is down.
//
//	MASTER_CODE_SALT=... go run ./cmd/mastercode [-date 2026-03-01]
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/baechuer/pharmacy-auth/internal/application/auth"
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Getenv("MASTER_CODE_SALT"), time.Now(), os.Stdout, os.Stderr))
}

func run(args []string, salt string, now time.Time, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mastercode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	date := fs.String("date", "", "UTC day as YYYY-MM-DD (default: today)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if salt == "" {
		fmt.Fprintln(stderr, "MASTER_CODE_SALT is not set; the master code is disabled")
		return 1
	}

	day := now.UTC()
	if *date != "" {
		d, err := time.Parse(time.DateOnly, *date)
		if err != nil {
			fmt.Fprintf(stderr, "invalid -date %q: want YYYY-MM-DD\n", *date)
			return 2
		}
		day = d
	}

	fmt.Fprintf(stdout, "%s  %s\n", day.Format(time.DateOnly), auth.MasterCode(salt, day))
	return 0
}
