package spv

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/gianalarcon/raito/btc"
)

const cardWidth = 72

// FormatTransaction renders a verified transaction as a terminal card.
func FormatTransaction(tx *btc.Transaction, blockHeight, tipHeight uint32) string {
	var b strings.Builder

	rule := "+" + strings.Repeat("-", cardWidth-2) + "+"
	line := func(format string, args ...any) {
		s := fmt.Sprintf(format, args...)
		if len(s) > cardWidth-4 {
			s = s[:cardWidth-7] + "..."
		}
		fmt.Fprintf(&b, "| %-*s |\n", cardWidth-4, s)
	}

	b.WriteString(rule + "\n")
	line("txid   %s", tx.TxID())
	line("block  %d  (%d confirmations)", blockHeight, tipHeight-blockHeight+1)
	b.WriteString(rule + "\n")

	line("inputs (%d)", len(tx.TxIn))
	for _, in := range tx.TxIn {
		if in.PreviousOutPoint.Index == 0xffffffff && in.PreviousOutPoint.Hash == (chainhash.Hash{}) {
			line("  coinbase")
			continue
		}
		line("  %s:%d", in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
	}

	line("outputs (%d)", len(tx.TxOut))
	for i, out := range tx.TxOut {
		line("  #%d  %s BTC", i, formatAmount(out.Value))
	}
	b.WriteString(rule + "\n")
	return b.String()
}

func formatAmount(sats int64) string {
	sign := ""
	if sats < 0 {
		sign = "-"
		sats = -sats
	}
	const coin = 100_000_000
	return fmt.Sprintf("%s%d.%08d", sign, sats/coin, sats%coin)
}
