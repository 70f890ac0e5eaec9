package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repochat/repochat/internal/storage"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("repochat %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
