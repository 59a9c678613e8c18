package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lixenwraith/simon-task/config"
	"github.com/lixenwraith/simon-task/observability"
	"github.com/lixenwraith/simon-task/terminal"
)

// annotationUI marks commands that take over the terminal; their logs go to the file only
const annotationUI = "ui"

// app carries the resolved configuration into the subcommands
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	log     *zap.Logger

	// flags maps command flags to config keys; bound only for the command being executed
	flags map[*cobra.Command]map[string]string

	// openScreen is replaced in tests with a simulation screen
	openScreen func(terminal.Config, ...terminal.Option) (*terminal.Screen, error)
}

func newApp() *app {
	return &app{
		v:          config.NewViper(),
		flags:      make(map[*cobra.Command]map[string]string),
		openScreen: terminal.Open,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "simon-task",
		Short:         "Approach/avoidance Simon task in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initialize(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./simon-task.yaml)")

	root.AddCommand(
		newRunCmd(a),
		newTrialsCmd(a),
		newDecodeCmd(a),
		newAnalyzeCmd(a),
	)
	return root
}

// initialize reads the config file, applies env and flag overrides, then starts the logger
func (a *app) initialize(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		if err := config.ReadFile(a.v, a.cfgFile); err != nil {
			return err
		}
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("simon-task")
		if err := a.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return err
			}
		}
	}

	for key, name := range a.flags[cmd] {
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if cmd.Annotations[annotationUI] == "true" {
		observability.InitializeFileLogger(cfg.Logger)
	} else {
		observability.InitializeLogger(cfg.Logger)
	}
	a.log = observability.GetLogger()
	a.log.Debug("Configuration loaded.", zap.String("command", cmd.Name()), zap.String("file", a.v.ConfigFileUsed()))
	return nil
}

// bindFlag routes a command flag to a config key; an unset flag leaves file and env values alone
func (a *app) bindFlag(cmd *cobra.Command, key, flag string) {
	if a.flags[cmd] == nil {
		a.flags[cmd] = make(map[string]string)
	}
	a.flags[cmd][key] = flag
}
