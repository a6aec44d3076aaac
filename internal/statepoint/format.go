package statepoint

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/statemesh/statemesh-go/internal/container"
)

// Format identifies the on-disk family of a checkpoint file. The two
// stream backends share one format and cannot be told apart from the
// file alone.
type Format int

const (
	FormatUnknown Format = iota
	FormatContainer
	FormatStream
)

func (f Format) String() string {
	switch f {
	case FormatContainer:
		return "container"
	case FormatStream:
		return "stream"
	default:
		return "unknown"
	}
}

// DetectFormat sniffs the file's magic bytes.
func DetectFormat(path string) (Format, error) {
	ok, err := container.Sniff(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FormatUnknown, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return FormatUnknown, err
	}
	if ok {
		return FormatContainer, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, openErr("open", err)
	}
	defer f.Close()
	head := make([]byte, streamMagicSize)
	if _, err := io.ReadFull(f, head); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return FormatUnknown, nil
		}
		return FormatUnknown, fmt.Errorf("statepoint: read magic: %w", err)
	}
	if string(head) == streamMagic {
		return FormatStream, nil
	}
	return FormatUnknown, nil
}
