// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression is the encoding of a section's stored bytes.
type Compression uint8

const (
	CompressNone Compression = iota
	// CompressZlib is an SHF_COMPRESSED section with ELFCOMPRESS_ZLIB,
	// or a legacy GNU .zdebug section.
	CompressZlib
	// CompressZstd is an SHF_COMPRESSED section with ELFCOMPRESS_ZSTD.
	CompressZstd
)

func (c Compression) String() string {
	switch c {
	case CompressNone:
		return "none"
	case CompressZlib:
		return "zlib"
	case CompressZstd:
		return "zstd"
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

// zstdDecoder is shared by all sections. DecodeAll is safe for
// concurrent use.
var zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

// decompress decodes payload, which must decompress to exactly size
// bytes.
func decompress(c Compression, payload []byte, size uint64) ([]byte, error) {
	var out []byte
	switch c {
	case CompressZlib:
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		out = make([]byte, size)
		if _, err := io.ReadFull(zr, out); err != nil {
			return nil, err
		}
	case CompressZstd:
		var err error
		out, err = zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
	if uint64(len(out)) != size {
		return nil, fmt.Errorf("decompressed %d bytes, want %d", len(out), size)
	}
	return out, nil
}
