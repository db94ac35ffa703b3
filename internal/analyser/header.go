package analyser

import (
	"context"
	"encoding/hex"

	"github.com/gzhole/yaraforge/internal/capability"
)

const (
	// KindPrefix holds the hex-encoded leading bytes of a sample.
	KindPrefix = "prefix"

	// HeaderLength is the number of leading bytes captured.
	HeaderLength = 16
)

// Header records the first HeaderLength bytes of a sample.
type Header struct{}

func (Header) Name() string { return "header" }

func (Header) Analyse(ctx context.Context, data []byte) (capability.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(data)
	if n > HeaderLength {
		n = HeaderLength
	}
	return capability.Result{KindPrefix: {hex.EncodeToString(data[:n])}}, nil
}
