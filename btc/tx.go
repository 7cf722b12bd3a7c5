package btc

import (
	"io"

	"github.com/btcsuite/btcd/wire"
)

// OutPoint references an output of a previous transaction.
type OutPoint = wire.OutPoint

// TxIn is a transaction input.
type TxIn = wire.TxIn

// TxOut is a transaction output.
type TxOut = wire.TxOut

// Transaction is a Bitcoin transaction, legacy or segwit. It embeds the btcd
// wire message and narrows serialization to the two framings the proof
// artifact needs.
type Transaction struct {
	wire.MsgTx
}

// Decode parses a transaction from its wire encoding, accepting both the
// legacy and the BIP-144 segwit framing.
func (tx *Transaction) Decode(r io.Reader) error {
	return tx.MsgTx.Deserialize(r)
}

// Encode writes the wire encoding. Witness data is included only when
// present and withWitness is true.
func (tx *Transaction) Encode(w io.Writer, withWitness bool) error {
	if withWitness {
		return tx.MsgTx.Serialize(w)
	}
	return tx.MsgTx.SerializeNoWitness(w)
}

// TxID is the double-SHA256 of the witness-stripped serialization.
func (tx *Transaction) TxID() Hash {
	return Hash(tx.MsgTx.TxHash())
}
