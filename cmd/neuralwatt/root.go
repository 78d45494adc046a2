package main

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/logger"
)

const rootLongDesc string = `neuralwatt sends prompts to the Neuralwatt inference API and reports
the energy each request consumed.

Energy telemetry arrives as ": energy {...}" comments in the response stream
and is printed after the streamed text.

Examples:
  neuralwatt prompt "Explain SSE in one sentence"
  neuralwatt prompt -m neuralwatt-qwen3-coder --no-stream "Write fizzbuzz in Go"
  neuralwatt models
  neuralwatt logs -n 5`

// app 子命令共享的状态
type app struct {
	configFile string
	debug      bool
	jsonLog    bool

	v      *viper.Viper
	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "neuralwatt",
		Short:         "Neuralwatt LLM client with energy reporting",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := initViper(a.configFile)
			if err != nil {
				return err
			}
			if err := v.BindPFlag(keyLogDB, cmd.Flags().Lookup("log-db")); err != nil {
				return err
			}
			a.v = v
			a.logger = logger.New(
				logger.WithWriter(cmd.ErrOrStderr()),
				logger.WithDebug(a.debug),
				logger.WithJSON(a.jsonLog),
				logger.WithPrefix("neuralwatt"),
			)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&a.jsonLog, "log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Config file (default $XDG_CONFIG_HOME/neuralwatt/config.yaml)")
	cmd.PersistentFlags().String("log-db", "", "SQLite database for request logs")

	cmd.AddCommand(
		newPromptCmd(a),
		newModelsCmd(a),
		newLogsCmd(a),
	)

	return cmd
}
