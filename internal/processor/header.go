package processor

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gzhole/yaraforge/internal/analyser"
	"github.com/gzhole/yaraforge/internal/capability"
	"github.com/gzhole/yaraforge/internal/yara"
)

const (
	minDataPrefix = 2
	minHexPrefix  = 8
)

// Header signs the leading bytes shared by every sample of a tag: a data
// check on the first two or four bytes, plus a hex string of the whole
// shared prefix once it reaches eight bytes.
type Header struct{}

func (Header) Name() string { return "header" }

func (Header) Process(ctx context.Context, b *yara.Builder, results capability.AnalysisResults) (yara.Node, error) {
	outputs := results["header"]
	if len(outputs) == 0 {
		return nil, nil
	}

	var common []byte
	for i, out := range outputs {
		prefixes := out.Results[analyser.KindPrefix]
		if len(prefixes) == 0 {
			return nil, nil
		}
		raw, err := hex.DecodeString(prefixes[0])
		if err != nil {
			return nil, fmt.Errorf("decoding header of %s: %w", out.Filename, err)
		}
		if i == 0 {
			common = raw
			continue
		}
		common = commonPrefix(common, raw)
	}

	if len(common) < minDataPrefix {
		return nil, nil
	}

	var data *yara.DataNode
	var err error
	if len(common) >= 4 {
		data, err = yara.Data(0, int64(binary.LittleEndian.Uint32(common)), yara.Uint32)
	} else {
		data, err = yara.Data(0, int64(binary.LittleEndian.Uint16(common)), yara.Uint16)
	}
	if err != nil {
		return nil, err
	}
	if len(common) < minHexPrefix {
		return data, nil
	}

	h, err := b.Hex(hexPattern(common))
	if err != nil {
		return nil, err
	}
	and, err := yara.And(data, h)
	if err != nil {
		return nil, err
	}
	return and, nil
}

func commonPrefix(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return bytes.Clone(a[:i])
}

func hexPattern(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02X", c)
	}
	return strings.Join(parts, " ")
}
