package model

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

// Wire layout: magic | uint64 payload length | zstd(gob(Bundle)) | uint64 xxhash64(payload).
var bundleMagic = [4]byte{'C', 'M', 'B', '1'}

const headerSize = len(bundleMagic) + 8

var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder for pool: %v", err))
		}
		return decoder
	},
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderCRC(false))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder for pool: %v", err))
		}
		return encoder
	},
}

// EncodeBundle writes b to w.
func EncodeBundle(w io.Writer, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(b); err != nil {
		return errors.Wrap(err, "failed to encode bundle")
	}

	encoder := zstdEncoderPool.Get().(*zstd.Encoder)
	payload := encoder.EncodeAll(raw.Bytes(), nil)
	zstdEncoderPool.Put(encoder)

	out := make([]byte, 0, headerSize+len(payload)+8)
	out = append(out, bundleMagic[:]...)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(payload)))
	out = append(out, payload...)
	out = binary.LittleEndian.AppendUint64(out, xxhash.Sum64(payload))

	if _, err := w.Write(out); err != nil {
		return errors.Wrap(err, "failed to write bundle")
	}
	return nil
}

// DecodeBundle reads a bundle written by EncodeBundle, verifying the magic
// and checksum.
func DecodeBundle(r io.Reader) (*Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read bundle")
	}
	if len(data) < headerSize+8 || !bytes.Equal(data[:len(bundleMagic)], bundleMagic[:]) {
		return nil, errors.NewValidationError("bundle", "not a connmodel bundle", len(data))
	}
	n := binary.LittleEndian.Uint64(data[len(bundleMagic):headerSize])
	if uint64(len(data)-headerSize-8) != n {
		return nil, errors.NewValidationError("bundle", "truncated payload", n)
	}
	payload := data[headerSize : headerSize+int(n)]
	sum := binary.LittleEndian.Uint64(data[headerSize+int(n):])
	if xxhash.Sum64(payload) != sum {
		return nil, errors.Wrapf(errors.ErrChecksumMismatch, "bundle checksum %x", sum)
	}

	decoder := zstdDecoderPool.Get().(*zstd.Decoder)
	raw, err := decoder.DecodeAll(payload, nil)
	zstdDecoderPool.Put(decoder)
	if err != nil {
		return nil, errors.Wrap(err, "zstd decompression failed")
	}

	b := &Bundle{}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(b); err != nil {
		return nil, errors.Wrap(err, "failed to decode bundle")
	}
	if b.Params == nil {
		b.Params = make(map[string]float64)
	}
	if b.Strings == nil {
		b.Strings = make(map[string]string)
	}
	if b.Arrays == nil {
		b.Arrays = make(map[string]Array)
	}
	if b.IntArrays == nil {
		b.IntArrays = make(map[string]IntArray)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// SaveBundle writes b to filename.
//
//	b, _ := ridge.ToBundle()
//	err := model.SaveBundle(b, "ridge.cmb")
func SaveBundle(b *Bundle, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	if err := EncodeBundle(file, b); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrap(file.Close(), "failed to close file")
}

// LoadBundle reads a bundle from filename.
func LoadBundle(filename string) (*Bundle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()
	return DecodeBundle(file)
}

// Save exports m and writes it to filename.
func Save(m Serializable, filename string) error {
	b, err := m.ToBundle()
	if err != nil {
		return err
	}
	return SaveBundle(b, filename)
}

// Load reads filename and restores it into m.
func Load(m Serializable, filename string) error {
	b, err := LoadBundle(filename)
	if err != nil {
		return err
	}
	return m.FromBundle(b)
}
