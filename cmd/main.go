package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tagpipe-io/tagpipe/internal/build"
)

var (
	// cfgFile is the --config flag value.
	cfgFile string

	// quiet suppresses stderr logging.
	quiet bool
)

func main() {
	cmd := &cobra.Command{
		Use:   build.Slug,
		Short: "Tag-driven file automation engine",
		Long: `Tagpipe watches file tag sets and runs registered scripts whenever a
file's tags cover a function's declared inputs. Outputs are re-ingested,
retagged and may trigger further functions.`,
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default is ./tagpipe.yaml)")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress stderr logging")

	cmd.AddCommand(serverCmd())
	cmd.AddCommand(versionCmd())

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
