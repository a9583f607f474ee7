package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath string
	opsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "arb-engine",
	Short: "Risk-constrained triangular arbitrage decision engine",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&opsAddr, "ops-addr", "http://127.0.0.1:8181", "ops API base URL for client commands")
	rootCmd.AddCommand(runCmd, monitorCmd, riskCmd, stopCmd, resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
