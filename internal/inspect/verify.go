package inspect

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/statemesh/statemesh-go/internal/container"
	"github.com/statemesh/statemesh-go/internal/statepoint"
)

// VerifyCommand checks a checkpoint file's integrity.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "verify a checkpoint file's magic bytes and checksum",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("verify: expected exactly one file argument")
			}
			return verify(c.App.Writer, c.Args().First())
		},
	}
}

func verify(w io.Writer, path string) error {
	format, err := statepoint.DetectFormat(path)
	if err != nil {
		return err
	}
	switch format {
	case statepoint.FormatContainer:
		// Open verifies the sha256 trailer over the whole file.
		f, err := container.Open(path)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		n := len(f.Entries())
		f.Close()
		fmt.Fprintf(w, "%s: OK (container, %d datasets, checksum valid)\n", path, n)
		return nil
	case statepoint.FormatStream:
		// Streams carry no checksum; the magic is all there is to check.
		fmt.Fprintf(w, "%s: OK (stream, no checksum)\n", path)
		return nil
	default:
		return fmt.Errorf("verify: %s is not a checkpoint file", path)
	}
}
