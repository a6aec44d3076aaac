package inspect

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/statemesh/statemesh-go/internal/catalog"
	"github.com/statemesh/statemesh-go/internal/telemetry/logger"
)

func openCatalog(c *cli.Context) (*catalog.Store, error) {
	cfg := configFrom(c)
	dir := c.String("catalog-dir")
	if dir == "" {
		dir = cfg.Catalog.Dir
	}
	return catalog.Open(catalog.Config{Dir: dir, Logger: logger.Default()})
}

func catalogDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "catalog-dir",
		Usage:   "catalog database directory (overrides config)",
		EnvVars: []string{"STATEMESH_CATALOG_DIR"},
	}
}

// ListCommand prints the cataloged checkpoints, oldest first.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list cataloged checkpoint files",
		Flags: []cli.Flag{catalogDirFlag()},
		Action: func(c *cli.Context) error {
			store, err := openCatalog(c)
			if err != nil {
				return err
			}
			defer store.Close()

			infos, err := store.List(c.Context)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Fprintln(c.App.Writer, "no checkpoints cataloged")
				return nil
			}
			fmt.Fprintf(c.App.Writer, "%-26s  %-19s  %-17s  %12s  %s\n",
				"ID", "CREATED", "BACKEND", "PARTICLES", "PATH")
			for _, info := range infos {
				fmt.Fprintf(c.App.Writer, "%-26s  %-19s  %-17s  %12d  %s\n",
					info.ID,
					info.CreatedAt.Format("2006-01-02 15:04:05"),
					info.Backend,
					info.TotalParticles,
					info.Path)
			}
			return nil
		},
	}
}

// PruneCommand removes old checkpoints beyond the retention count.
func PruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "remove old checkpoints beyond the retention count",
		Flags: []cli.Flag{
			catalogDirFlag(),
			&cli.IntFlag{
				Name:  "keep",
				Usage: "how many newest checkpoints to keep (defaults to catalog.keep)",
			},
		},
		Action: func(c *cli.Context) error {
			store, err := openCatalog(c)
			if err != nil {
				return err
			}
			defer store.Close()

			keep := c.Int("keep")
			if !c.IsSet("keep") {
				keep = configFrom(c).Catalog.Keep
			}
			removed, err := store.Prune(c.Context, keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "removed %d checkpoint(s), kept %d\n", removed, keep)
			return nil
		},
	}
}
