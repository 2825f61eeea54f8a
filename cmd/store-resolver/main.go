package main

// ============================================================================
// Responsibilities:
// 1. CLI entry point
// 2. Run the root command and turn its error into an exit code
// ============================================================================

import (
	"os"

	"github.com/ChuLiYu/store-resolver/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
