package app

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/DataDog/zstd"
	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// codec compresses the body of a snapshot. The codec byte is stored right
// after the snapshot header so any server can read any snapshot.
type codec byte

const (
	codecGzip   codec = 'g'
	codecSnappy codec = 's'
	codecLZ4    codec = 'l'
	codecZstd   codec = 'z'
)

const zstdLevel = 3

// maxSnapshotBody caps the decompressed size of a snapshot body. Sizes read
// from a snapshot are checked against it before anything is allocated.
const maxSnapshotBody = 1 << 30

var errBodyTooLarge = fmt.Errorf("%w: snapshot body too large", ErrCorrupt)

// lz4 blocks are prefixed with the uvarint raw size and a mode byte. zstd
// frames are prefixed with the uvarint raw size only.
const (
	lz4Raw   = 0
	lz4Block = 1
)

func parseCodec(name string) (codec, error) {
	switch name {
	case "gzip", "":
		return codecGzip, nil
	case "snappy":
		return codecSnappy, nil
	case "lz4":
		return codecLZ4, nil
	case "zstd":
		return codecZstd, nil
	}
	return 0, fmt.Errorf("invalid snapshot codec: %s", name)
}

func (c codec) String() string {
	switch c {
	case codecGzip:
		return "gzip"
	case codecSnappy:
		return "snappy"
	case codecLZ4:
		return "lz4"
	case codecZstd:
		return "zstd"
	}
	return fmt.Sprintf("unknown(%d)", byte(c))
}

func (c codec) encode(src []byte) ([]byte, error) {
	switch c {
	case codecGzip:
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(src); err != nil {
			return nil, err
		}
		if err := gw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case codecSnappy:
		return snappy.Encode(nil, src), nil
	case codecLZ4:
		return lz4Encode(src)
	case codecZstd:
		return zstdEncode(src)
	}
	return nil, fmt.Errorf("%w: snapshot codec %s", ErrInvalid, c)
}

func (c codec) decode(src []byte) ([]byte, error) {
	switch c {
	case codecGzip:
		gr, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return readBody(gr)
	case codecSnappy:
		n, err := snappy.DecodedLen(src)
		if err != nil {
			return nil, err
		}
		if n > maxSnapshotBody {
			return nil, errBodyTooLarge
		}
		return snappy.Decode(nil, src)
	case codecLZ4:
		return lz4Decode(src)
	case codecZstd:
		return zstdDecode(src)
	}
	return nil, fmt.Errorf("%w: snapshot codec %s", ErrCorrupt, c)
}

func (c codec) known() bool {
	switch c {
	case codecGzip, codecSnappy, codecLZ4, codecZstd:
		return true
	}
	return false
}

func readBody(rd io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(rd, maxSnapshotBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxSnapshotBody {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func lz4Encode(src []byte) ([]byte, error) {
	dst := make([]byte, binary.MaxVarintLen64+1+lz4.CompressBlockBound(len(src)))
	n := binary.PutUvarint(dst, uint64(len(src)))
	m, err := lz4.CompressBlock(src, dst[n+1:], nil)
	if err != nil {
		return nil, err
	}
	// Was compression worth it?
	if m == 0 || m >= len(src) {
		dst[n] = lz4Raw
		return append(dst[:n+1], src...), nil
	}
	dst[n] = lz4Block
	return dst[:n+1+m], nil
}

func lz4Decode(src []byte) ([]byte, error) {
	size, n := binary.Uvarint(src)
	if n <= 0 || n >= len(src) {
		return nil, ErrCorrupt
	}
	if size > maxSnapshotBody {
		return nil, errBodyTooLarge
	}
	mode, body := src[n], src[n+1:]
	switch mode {
	case lz4Raw:
		if uint64(len(body)) != size {
			return nil, ErrCorrupt
		}
		return append([]byte(nil), body...), nil
	case lz4Block:
		out := make([]byte, size)
		m, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, err
		}
		if uint64(m) != size {
			return nil, ErrCorrupt
		}
		return out, nil
	}
	return nil, ErrCorrupt
}

func zstdEncode(src []byte) ([]byte, error) {
	dst := binary.AppendUvarint(nil, uint64(len(src)))
	frame, err := zstd.CompressLevel(nil, src, zstdLevel)
	if err != nil {
		return nil, err
	}
	return append(dst, frame...), nil
}

// zstdDecode streams the frame through a limit instead of trusting the
// content size in the frame header.
func zstdDecode(src []byte) ([]byte, error) {
	size, n := binary.Uvarint(src)
	if n <= 0 {
		return nil, ErrCorrupt
	}
	if size > maxSnapshotBody {
		return nil, errBodyTooLarge
	}
	zr := zstd.NewReader(bytes.NewReader(src[n:]))
	defer zr.Close()
	body, err := io.ReadAll(io.LimitReader(zr, int64(size)+1))
	if err != nil {
		return nil, err
	}
	if uint64(len(body)) != size {
		return nil, ErrCorrupt
	}
	return body, nil
}
