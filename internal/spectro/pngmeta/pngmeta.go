// Package pngmeta reads and writes the pipeline's PNG interchange files:
// 16-bit grayscale spectrograph frames carrying acquisition metadata in tEXt
// chunks, and 8-bit RGB column rasters.
//
// The standard image/png codec handles the raster but silently drops
// ancillary chunks, so metadata is carried by a small chunk walker that
// splices tEXt chunks in after IHDR on encode and scans for them on decode.
package pngmeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"os"
	"sort"

	"github.com/kho-data/aurora.report/internal/fsutil"
)

// Metadata is the embedded text metadata of a frame, keyed by tEXt keyword.
type Metadata map[string]string

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ErrNotPNG reports a file that does not start with the PNG signature.
var ErrNotPNG = errors.New("not a PNG file")

// ErrNotGray16 reports a frame whose pixel data is not 16-bit grayscale.
var ErrNotGray16 = errors.New("pixel data is not 16-bit grayscale")

const (
	sigLen    = 8
	ihdrLen   = 4 + 4 + 13 + 4 // length + "IHDR" + data + crc
	headerLen = sigLen + ihdrLen
)

// EncodeGray16 encodes a 16-bit grayscale frame with its metadata embedded
// as tEXt chunks. Keys are written in sorted order so identical inputs
// produce byte-identical files.
func EncodeGray16(img *image.Gray16, meta Metadata) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode gray16 png: %w", err)
	}
	return spliceText(buf.Bytes(), meta)
}

// DecodeGray16 decodes a 16-bit grayscale frame and its embedded metadata.
func DecodeGray16(data []byte) (*image.Gray16, Metadata, error) {
	meta, err := scanText(data)
	if err != nil {
		return nil, nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("decode png: %w", err)
	}
	gray, ok := img.(*image.Gray16)
	if !ok {
		return nil, nil, fmt.Errorf("%w (got %T)", ErrNotGray16, img)
	}
	return gray, meta, nil
}

// EncodeRGB encodes an 8-bit RGB raster (used for columns and keograms).
func EncodeRGB(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode rgb png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRGB decodes an 8-bit RGB raster into NRGBA form.
func DecodeRGB(data []byte) (*image.NRGBA, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	switch im := img.(type) {
	case *image.NRGBA:
		return im, nil
	default:
		b := img.Bounds()
		out := image.NewNRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out.Set(x, y, img.At(x, y))
			}
		}
		return out, nil
	}
}

// Verify checks the structural integrity of a PNG: signature, chunk
// framing, per-chunk CRCs, a terminating IEND, and a decodable raster.
// This is the validate pass; callers load with a Decode call afterwards.
func Verify(data []byte) error {
	if len(data) < headerLen || !bytes.Equal(data[:sigLen], pngSignature) {
		return ErrNotPNG
	}
	off := sigLen
	sawEnd := false
	for off < len(data) {
		if off+8 > len(data) {
			return fmt.Errorf("truncated chunk header at offset %d", off)
		}
		length := int(binary.BigEndian.Uint32(data[off : off+4]))
		typ := string(data[off+4 : off+8])
		end := off + 8 + length + 4
		if end > len(data) {
			return fmt.Errorf("truncated %s chunk at offset %d", typ, off)
		}
		sum := crc32.ChecksumIEEE(data[off+4 : off+8+length])
		if sum != binary.BigEndian.Uint32(data[off+8+length:end]) {
			return fmt.Errorf("crc mismatch in %s chunk at offset %d", typ, off)
		}
		if typ == "IEND" {
			sawEnd = true
			break
		}
		off = end
	}
	if !sawEnd {
		return errors.New("missing IEND chunk")
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// spliceText inserts tEXt chunks immediately after IHDR.
func spliceText(data []byte, meta Metadata) ([]byte, error) {
	if len(meta) == 0 {
		return data, nil
	}
	if len(data) < headerLen || !bytes.Equal(data[:sigLen], pngSignature) {
		return nil, ErrNotPNG
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var chunks bytes.Buffer
	for _, k := range keys {
		if err := writeTextChunk(&chunks, k, meta[k]); err != nil {
			return nil, err
		}
	}

	out := make([]byte, 0, len(data)+chunks.Len())
	out = append(out, data[:headerLen]...)
	out = append(out, chunks.Bytes()...)
	out = append(out, data[headerLen:]...)
	return out, nil
}

func writeTextChunk(w *bytes.Buffer, key, value string) error {
	if len(key) == 0 || len(key) > 79 {
		return fmt.Errorf("tEXt keyword %q must be 1-79 bytes", key)
	}
	if bytes.IndexByte([]byte(key), 0) >= 0 || bytes.IndexByte([]byte(value), 0) >= 0 {
		return fmt.Errorf("tEXt keyword/value must not contain NUL")
	}

	payload := make([]byte, 0, len(key)+1+len(value))
	payload = append(payload, key...)
	payload = append(payload, 0)
	payload = append(payload, value...)

	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(payload)))
	copy(header[4:], "tEXt")
	w.Write(header[:])
	w.Write(payload)

	crc := crc32.NewIEEE()
	crc.Write(header[4:])
	crc.Write(payload)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	w.Write(sum[:])
	return nil
}

// scanText collects tEXt chunks without decoding the raster.
func scanText(data []byte) (Metadata, error) {
	if len(data) < headerLen || !bytes.Equal(data[:sigLen], pngSignature) {
		return nil, ErrNotPNG
	}
	meta := Metadata{}
	off := sigLen
	for off+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[off : off+4]))
		typ := string(data[off+4 : off+8])
		end := off + 8 + length + 4
		if end > len(data) {
			return nil, fmt.Errorf("truncated %s chunk at offset %d", typ, off)
		}
		if typ == "tEXt" {
			payload := data[off+8 : off+8+length]
			if i := bytes.IndexByte(payload, 0); i >= 0 {
				meta[string(payload[:i])] = string(payload[i+1:])
			}
		}
		if typ == "IEND" {
			break
		}
		off = end
	}
	return meta, nil
}

// ReadGray16 reads a 16-bit grayscale frame with metadata from fsys.
func ReadGray16(fsys fsutil.FileSystem, path string) (*image.Gray16, Metadata, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return DecodeGray16(data)
}

// WriteGray16 writes a 16-bit grayscale frame with metadata to fsys.
func WriteGray16(fsys fsutil.FileSystem, path string, img *image.Gray16, meta Metadata) error {
	data, err := EncodeGray16(img, meta)
	if err != nil {
		return err
	}
	return fsys.WriteFile(path, data, os.FileMode(0644))
}
