package spv

import (
	"compress/bzip2"
	"fmt"
	"io"
	"os"

	dbzip2 "github.com/dsnet/compress/bzip2"
	"github.com/fxamacker/cbor/v2"
)

// Encode writes the artifact as a bzip2-compressed CBOR stream.
func Encode(w io.Writer, proof *CompressedSpvProof) error {
	zw, err := dbzip2.NewWriter(w, &dbzip2.WriterConfig{Level: dbzip2.DefaultCompression})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if err := cbor.NewEncoder(zw).Encode(proof); err != nil {
		zw.Close()
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return nil
}

// Decode reads a bzip2-compressed CBOR artifact.
func Decode(r io.Reader) (*CompressedSpvProof, error) {
	var proof CompressedSpvProof
	if err := cbor.NewDecoder(bzip2.NewReader(r)).Decode(&proof); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &proof, nil
}

// WriteFile writes the artifact to path.
func WriteFile(path string, proof *CompressedSpvProof) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if err := Encode(f, proof); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads an artifact from path.
func ReadFile(path string) (*CompressedSpvProof, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()
	return Decode(f)
}
