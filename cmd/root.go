package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facewatch",
	Short: "Face recognition registry with a security watchlist",
	Long: `Facewatch enrolls people with a face embedding, recognizes captured
probes against the registry (delegating to an external recognizer when one
is configured), keeps a wanted/blocked watchlist and records operator
reports with uniquely numbered fines.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
