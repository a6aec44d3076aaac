package inspect

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/statemesh/statemesh-go/internal/container"
	"github.com/statemesh/statemesh-go/internal/statepoint"
)

// ShowCommand dumps a checkpoint file's structure.
func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "dump the datasets of a checkpoint file",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("show: expected exactly one file argument")
			}
			return show(c.App.Writer, c.Args().First())
		},
	}
}

func show(w io.Writer, path string) error {
	format, err := statepoint.DetectFormat(path)
	if err != nil {
		return err
	}
	switch format {
	case statepoint.FormatContainer:
		return showContainer(w, path)
	case statepoint.FormatStream:
		return showStream(w, path)
	default:
		return fmt.Errorf("show: %s is not a checkpoint file", path)
	}
}

func showContainer(w io.Writer, path string) error {
	f, err := container.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(w, "format: container\ndatasets: %d\n", len(f.Entries()))
	for _, e := range f.Entries() {
		shape := "scalar"
		if len(e.Dims) > 0 {
			parts := make([]string, len(e.Dims))
			for i, d := range e.Dims {
				parts[i] = fmt.Sprintf("%d", d)
			}
			shape = strings.Join(parts, "x")
		}
		fmt.Fprintf(w, "%-40s %-8s %-12s offset=%d length=%d\n",
			e.Path, e.Kind, shape, e.Offset, e.Length)
		for name, value := range e.Attrs {
			fmt.Fprintf(w, "    @%s = %q\n", name, value)
		}
	}
	return nil
}

func showStream(w io.Writer, path string) error {
	stat, err := os.Stat(path)
	if err != nil {
		return err
	}
	// Streams are self-describing only in order, not structure: all we
	// can report without the writing program is the payload size.
	fmt.Fprintf(w, "format: stream\npayload: %d bytes\n", stat.Size()-8)
	return nil
}
