package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "selene",
	Short: "Train sequence models and score variants",
	Long: `selene trains sequence-to-feature models over genomic windows and
applies trained models to score systematic point mutations (in-silico
mutagenesis) and variant files (variant-effect prediction).`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
