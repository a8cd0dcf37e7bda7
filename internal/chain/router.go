package chain

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/sigilum/chainrisk/internal/models"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Detect classifies an address string. Detection order matters: EVM hex
// first, then Bitcoin, then ledger principals, then Solana, because the
// later alphabets overlap the earlier ones. Bitcoin candidates must also
// pass a full checksum decode; a base58 string that fails it continues to
// the later branches. Ambiguous or unrecognized strings classify as
// Unknown; the caller surfaces an error instead of guessing.
func Detect(address string) models.ChainType {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return models.ChainUnknown
	}

	if isEVMAddress(addr) {
		return models.ChainEthereum
	}
	if isBitcoinAddress(addr) {
		if ValidateBitcoin(addr) {
			return models.ChainBitcoin
		}
		if hasBech32Prefix(addr) {
			// bc1/tb1 strings are unambiguously Bitcoin-intent; a failed
			// checksum is a typo, not another chain.
			return models.ChainUnknown
		}
		// Short base58 shapes overlap the Solana alphabet, so a failed
		// checksum falls through to the later branches.
	}
	if isLedgerPrincipal(addr) {
		return models.ChainLedger
	}
	if isSolanaAddress(addr) {
		return models.ChainSolana
	}
	return models.ChainUnknown
}

// ValidateBitcoin runs a full checksum decode on a Bitcoin-shaped address.
// Detect's lexical check only looks at prefix, length, and alphabet; this
// catches typos before any network calls happen.
func ValidateBitcoin(address string) bool {
	if _, err := btcutil.DecodeAddress(address, &chaincfg.MainNetParams); err == nil {
		return true
	}
	_, err := btcutil.DecodeAddress(address, &chaincfg.TestNet3Params)
	return err == nil
}

func isEVMAddress(addr string) bool {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return false
	}
	return isHex(addr[2:])
}

func hasBech32Prefix(addr string) bool {
	lower := strings.ToLower(addr)
	switch {
	case strings.HasPrefix(lower, "bc1q"), strings.HasPrefix(lower, "bc1p"),
		strings.HasPrefix(lower, "tb1q"), strings.HasPrefix(lower, "tb1p"):
		return true
	}
	return false
}

func isBitcoinAddress(addr string) bool {
	if hasBech32Prefix(addr) {
		return true
	}
	if len(addr) < 26 || len(addr) > 35 {
		return false
	}
	switch addr[0] {
	case '1', '3', 'm', 'n', '2':
		return isBase58(addr)
	}
	return false
}

// isLedgerPrincipal matches textual principals and account identifiers:
// lowercase alphanumerics and dashes, longer than a bech32 HRP could be.
func isLedgerPrincipal(addr string) bool {
	if len(addr) <= 20 || !strings.Contains(addr, "-") {
		return false
	}
	for _, c := range addr {
		if c == '-' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') {
			continue
		}
		return false
	}
	return true
}

func isSolanaAddress(addr string) bool {
	if len(addr) < 32 || len(addr) > 44 {
		return false
	}
	return isBase58(addr)
}

func isHex(s string) bool {
	for _, c := range s {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			continue
		}
		return false
	}
	return true
}

func isBase58(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune(base58Alphabet, c) {
			return false
		}
	}
	return true
}
