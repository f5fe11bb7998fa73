// Command gcstress drives a gengc heap with concurrent mutators, to
// measure allocation throughput and collection pauses, and to check
// that rooted object graphs survive collections.
package main

import "fmt"
import "os"

import "github.com/bnclabs/golog"
import "github.com/spf13/cobra"

var rootopts struct {
	loglevel string
	logstats bool
}

var rootCmd = &cobra.Command{
	Use:   "gcstress",
	Short: "Stress and check a generational garbage collected heap",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setts := map[string]interface{}{
			"log.level": rootopts.loglevel,
			"log.file":  "",
		}
		log.SetLogger(nil, setts)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootopts.loglevel, "log", "info",
		"log level")
	rootCmd.PersistentFlags().BoolVar(&rootopts.logstats, "logstats", false,
		"log heap statistics at the end of run")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
