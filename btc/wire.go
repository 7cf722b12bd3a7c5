package btc

import (
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/wire"
)

// readVarInt decodes a Bitcoin variable-length integer, rejecting
// non-canonical encodings.
func readVarInt(r io.Reader) (uint64, error) {
	return wire.ReadVarInt(r, wire.ProtocolVersion)
}

func writeVarInt(w io.Writer, v uint64) error {
	return wire.WriteVarInt(w, wire.ProtocolVersion, v)
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}
