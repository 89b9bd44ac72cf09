// SPDX-License-Identifier: MIT

package analysis

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/renameio/v2"
)

// npy v1.0 layout: magic, version, little-endian header length, then a
// Python dict literal padded with spaces so the data section starts on a
// 64-byte boundary.
var npyMagic = []byte{0x93, 'N', 'U', 'M', 'P', 'Y', 1, 0}

// encodeNpyInt64 renders beat frames as a one-dimensional int64 array
// readable by any numpy-compatible loader.
func encodeNpyInt64(values []int) []byte {
	dict := fmt.Sprintf("{'descr': '<i8', 'fortran_order': False, 'shape': (%d,), }", len(values))
	headerLen := len(dict) + 1
	if pad := (len(npyMagic) + 2 + headerLen) % 64; pad != 0 {
		headerLen += 64 - pad
	}
	header := dict + strings.Repeat(" ", headerLen-len(dict)-1) + "\n"

	out := make([]byte, 0, len(npyMagic)+2+headerLen+8*len(values))
	out = append(out, npyMagic...)
	out = binary.LittleEndian.AppendUint16(out, uint16(headerLen))
	out = append(out, header...)
	for _, v := range values {
		out = binary.LittleEndian.AppendUint64(out, uint64(int64(v)))
	}
	return out
}

// writeArtifact durably writes an artifact file: temp file, fsync, atomic
// rename.
func writeArtifact(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("analysis: create pending artifact: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()
	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("analysis: write artifact: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("analysis: replace artifact: %w", err)
	}
	return nil
}
