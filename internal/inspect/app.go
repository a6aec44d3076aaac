// Package inspect implements the statemesh-inspect command line tool:
// listing cataloged checkpoints, dumping a checkpoint file's contents
// and verifying file integrity.
package inspect

import (
	"github.com/urfave/cli/v2"

	"github.com/statemesh/statemesh-go/internal/config"
	"github.com/statemesh/statemesh-go/internal/infra/buildinfo"
	"github.com/statemesh/statemesh-go/internal/infra/confloader"
	"github.com/statemesh/statemesh-go/internal/telemetry/logger"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "statemesh-inspect",
		Usage:   "inspect and manage simulation checkpoint files",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file (YAML)",
				EnvVars: []string{"STATEMESH_CONFIG"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg := config.Default()
			opts := []confloader.Option{}
			if path := c.String("config"); path != "" {
				opts = append(opts, confloader.WithConfigFile(path))
			}
			if err := confloader.New(opts...).Load(cfg); err != nil {
				return err
			}
			logger.SetDefault(logger.New(logger.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
			}))
			c.App.Metadata["config"] = cfg
			return nil
		},
		Commands: []*cli.Command{
			ListCommand(),
			ShowCommand(),
			VerifyCommand(),
			PruneCommand(),
		},
	}
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata["config"].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}
