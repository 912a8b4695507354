package memory

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// ErrCorruptSnapshot is returned when a snapshot file exists but cannot be trusted.
var ErrCorruptSnapshot = errors.New("memory: corrupt snapshot")

// Snapshot layout:
//
//	magic (8) | version (1) | blake3(payload) (32) | payload
//
// payload is zstd-compressed CBOR of snapshot.
const (
	snapshotMagic   = "TCHATSNP"
	snapshotVersion = 1
	digestSize      = 32
	headerSize      = len(snapshotMagic) + 1 + digestSize
)

type snapshot struct {
	Version       int                  `cbor:"1,keyasint"`
	Conversations map[string][]Message `cbor:"2,keyasint"`
}

var (
	encMode     cbor.EncMode
	decMode     cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	// Core Deterministic Encoding: identical stores produce identical bytes.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("memory: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("memory: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("memory: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("memory: zstd decoder initialization failed: " + err.Error())
	}
}

func encodeSnapshot(snap *snapshot) ([]byte, error) {
	raw, err := encMode.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	payload := zstdEncoder.EncodeAll(raw, nil)
	digest := blake3.Sum256(payload)

	out := make([]byte, 0, headerSize+len(payload))
	out = append(out, snapshotMagic...)
	out = append(out, snapshotVersion)
	out = append(out, digest[:]...)
	return append(out, payload...), nil
}

func decodeSnapshot(b []byte) (*snapshot, error) {
	if len(b) < headerSize || !bytes.Equal(b[:len(snapshotMagic)], []byte(snapshotMagic)) {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptSnapshot)
	}
	if v := b[len(snapshotMagic)]; v != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, v)
	}
	want := b[len(snapshotMagic)+1 : headerSize]
	payload := b[headerSize:]
	got := blake3.Sum256(payload)
	if !bytes.Equal(want, got[:]) {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorruptSnapshot)
	}
	raw, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrCorruptSnapshot, err)
	}
	var snap snapshot
	if err := decMode.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCorruptSnapshot, err)
	}
	if snap.Conversations == nil {
		snap.Conversations = map[string][]Message{}
	}
	return &snap, nil
}

// loadSnapshot returns (nil, nil) when path does not exist.
func loadSnapshot(path string) (*snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: read snapshot: %w", err)
	}
	snap, err := decodeSnapshot(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// writeSnapshot replaces path atomically: temp file in the same directory,
// fsync, then rename.
func writeSnapshot(path string, snap *snapshot) error {
	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
