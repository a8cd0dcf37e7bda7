package normalize

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sigilum/chainrisk/internal/logging"
	"github.com/sigilum/chainrisk/internal/models"
	"github.com/sigilum/chainrisk/internal/pricing"
)

const lamportsPerSOL = 1e9

// Program address sets used to classify transaction context. Frozen by the
// trained model; extending them shifts the context distribution the model
// was fitted on.
var (
	dexPrograms = programSet(
		"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8", // Raydium
		"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", // Orca
		"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",  // Jupiter
		"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",  // Orca Whirlpools
	)
	lendingPrograms = programSet(
		"So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo",  // Solend
		"4MangoMjqJ2firMokCjjGgoK8d4MXcrgL7XJaL3w6fVg", // Mango
		"LendZqTs7gn5CTSJU1jWKhKuVpjg9avMpS7FgG7V4CJ",  // Port Finance
	)
	stakingPrograms = programSet(
		"MarBmsSgKXdrN1egZf5sqe1TMai9K1rChYNDJgjq7aD",  // Marinade
		"StakeSSzfxn391k3LvdKbZP5WVwWd6AsY39qcgwy7f3J", // Native Staking
		"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn", // JitoSOL
	)
	knownPrograms = programSet(
		"11111111111111111111111111111112",
		"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		"TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb",
		"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL",
		"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",
		"CAMMCzo5YL8w4VFF8KVHrK22GGUQpMDdHwMBSPBy4kD",
		"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
		"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",
		"JUP4Fb2cqiRUcaTHdrPC8h2gNsA2ETXiPDD33WcGuJB",
		"DjVE6JNiYqPL2QXyCUUh8rNjHrbz9hXHNYt99MQ59qw1",
		"EhYXq3ANp5nAerUpbSgd7VK2RRcxK1zNuSQ755G5Mtc1",
		"EUqojwWA2rd19FZrzeBncJsm38Jm1hEhE3zsmX3bRc2o",
		"9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		"BJ3jrUzddfuSrZHXSCxMbUE2yoHqpiUWyypURhoxiFwZ",
		"So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo",
		"4MangoMjqJ2firMokCjjGgoK8d4MXcrgL7XJaL3w6fVg",
		"mv3ekLzLbnVPNxjSKvqBpU3ZeZXPQdEC3bp5MDEBG68",
		"LendZqTs7gn5CTSJU1jWKhKuVpjg9avMpS7FgG7V4CJ",
		"FC81tbGt6JWRXidaWYFXxGnTk2VgEYrLR9c2YLGgCu8z",
		"MarBmsSgKXdrN1egZf5sqe1TMai9K1rChYNDJgjq7aD",
		"StakeSSzfxn391k3LvdKbZP5WVwWd6AsY39qcgwy7f3J",
		"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn",
		"SP12tWFxD9oJsVWNavTTBZvMbA6gkAmxtVgxdqvyvhY",
		"worm2ZoG2kUd4vFXhvjh93UUH596ayRfgQ2MgjNMTth",
		"wormDTUJ6AWPNvk59vGQbDvGJmqbDTdgWgAqcLBCgUb",
		"HDwcJBJXjL9FpJ7UBsYBtaDjsBUhuLCUYoz3zr8SWWaQ",
		"CJsLwbP1iu5DuUikHEJnLfANgKy6stB2uFgvBBHoyxwz",
		"hausS13jsjafwWwGqZTUQRmWyvyxn9EQpqMwV1PBBmk",
		"M2mx93ekt1fmXSVkTrUL9xVFHkmME8HTUi5Cyc5aF7K",
		"CLMM9tUoggJu2wagPkkqs9eFG4BWhVBZWkP1qv3Sp7tR",
		"SSwpkEEcbUqx4vtoEByFjSkhKdCT862DNVb52nZg1UZ",
		"FsJ3A3u2vn5cTVofAjvy6y5kwABJAqYWpe4975bi2epH",
		"gSbePebfvPy7tRqimPoVecS2UsBvYv46ynrzWocc92s",
		"Gov1BBdCNNqVD39vdFm93vVEwX7xEYqR3AwKbyKPP4",
		"GovER5Lthms3bLBqWub97yVrMmEogzX7xNjdXpPPCVZw",
	)
)

func programSet(addrs ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return set
}

// SolanaNormalizer flattens enriched Helius transactions into transfer legs
// for the target address, classifying each transaction's context from the
// programs it invoked and valuing amounts in the common unit.
type SolanaNormalizer struct {
	converter *pricing.Converter
	logger    *slog.Logger
}

func NewSolanaNormalizer(converter *pricing.Converter, logger logging.Logger) *SolanaNormalizer {
	return &SolanaNormalizer{
		converter: converter,
		logger:    logger.WithComponent("solana_normalizer"),
	}
}

// Normalize converts each transaction into legs. Failed transactions yield
// one failed leg; successful ones yield a leg per native or token transfer
// touching the address, with a fee-only leg when no transfer did. The
// transaction fee rides on every native leg and on token legs only when no
// native leg exists. Counterparties that are known program addresses are
// blanked so they never count as relationships.
func (n *SolanaNormalizer) Normalize(ctx context.Context, address string, txs []models.HeliusTx) []models.NormalizedTransfer {
	lowered := strings.ToLower(address)
	var out []models.NormalizedTransfer

	for _, tx := range txs {
		if tx.Signature == "" || tx.Slot == 0 || tx.Timestamp == 0 {
			n.logger.Debug("skipping malformed transaction", "signature", tx.Signature)
			continue
		}

		ts := time.Unix(tx.Timestamp, 0).UTC()
		feeSOL := float64(tx.Fee) / lamportsPerSOL
		solBTC := n.converter.SolBTCRatio(ctx, ts)

		base := models.NormalizedTransfer{
			TxID:             tx.Signature,
			Timestamp:        ts,
			BlockOrdinal:     tx.Slot,
			Context:          n.classify(&tx),
			Programmatic:     n.isProgrammatic(&tx),
			InstructionCount: len(tx.Instructions),
			TokenLegCount:    len(tx.TokenTransfers),
		}

		if tx.Failed() {
			leg := base
			leg.Direction = models.DirectionObserved
			leg.Failed = true
			leg.FeeNative = feeSOL
			leg.FeeCommonUnit = feeSOL * solBTC
			out = append(out, leg)
			continue
		}

		var legs []models.NormalizedTransfer

		for _, nt := range tx.NativeTransfers {
			leg, ok := n.solLeg(base, lowered, nt.FromUserAccount, nt.ToUserAccount,
				float64(nt.Amount)/lamportsPerSOL, solBTC)
			if ok {
				leg.FeeNative = feeSOL
				leg.FeeCommonUnit = feeSOL * solBTC
				legs = append(legs, leg)
			}
		}
		for _, tt := range tx.TokenTransfers {
			if tt.Mint != pricing.WrappedSOLMint {
				continue
			}
			amount := tt.TokenAmount
			if amount > 1e6 {
				amount /= lamportsPerSOL
			}
			leg, ok := n.solLeg(base, lowered, tt.FromUserAccount, tt.ToUserAccount, amount, solBTC)
			if ok {
				leg.FeeNative = feeSOL
				leg.FeeCommonUnit = feeSOL * solBTC
				legs = append(legs, leg)
			}
		}
		nativeLegs := len(legs)

		for _, tt := range tx.TokenTransfers {
			if tt.Mint == pricing.WrappedSOLMint {
				continue
			}
			from := strings.ToLower(tt.FromUserAccount)
			to := strings.ToLower(tt.ToUserAccount)
			if from != lowered && to != lowered {
				continue
			}

			info := n.converter.SolanaTokenInfo(tt.Mint)
			amount := tt.TokenAmount
			if amount > 1e6 {
				amount /= math.Pow10(info.Decimals)
			}

			valueSOL := 0.0
			ratio, priced := n.converter.TokenSOLRatio(ctx, tt.Mint, ts)
			if priced {
				valueSOL = amount * ratio
			}

			leg := base
			leg.IsToken = true
			leg.AssetID = tt.Mint
			leg.ValueNative = valueSOL
			leg.ValueCommonUnit = valueSOL * solBTC
			leg.PriceFetchFailed = !priced
			if nativeLegs == 0 {
				leg.FeeNative = feeSOL
				leg.FeeCommonUnit = feeSOL * solBTC
			}
			if from == lowered {
				leg.Direction = models.DirectionSent
				leg.Counterparty = humanCounterparty(tt.ToUserAccount)
			} else {
				leg.Direction = models.DirectionReceived
				leg.Counterparty = humanCounterparty(tt.FromUserAccount)
			}
			legs = append(legs, leg)
		}

		if len(legs) == 0 {
			leg := base
			leg.Direction = models.DirectionObserved
			leg.FeeNative = feeSOL
			leg.FeeCommonUnit = feeSOL * solBTC
			legs = append(legs, leg)
		}
		out = append(out, legs...)
	}
	return out
}

// solLeg builds a native-coin leg when the transfer touches the address.
func (n *SolanaNormalizer) solLeg(base models.NormalizedTransfer, address, from, to string, amountSOL, solBTC float64) (models.NormalizedTransfer, bool) {
	fromL := strings.ToLower(from)
	toL := strings.ToLower(to)
	if fromL != address && toL != address {
		return models.NormalizedTransfer{}, false
	}

	leg := base
	leg.ValueNative = amountSOL
	leg.ValueCommonUnit = amountSOL * solBTC
	if fromL == address {
		leg.Direction = models.DirectionSent
		leg.Counterparty = humanCounterparty(to)
	} else {
		leg.Direction = models.DirectionReceived
		leg.Counterparty = humanCounterparty(from)
	}
	return leg, true
}

// humanCounterparty blanks known program addresses so relationship features
// only see real wallets.
func humanCounterparty(addr string) string {
	if _, known := knownPrograms[addr]; known {
		return ""
	}
	return addr
}

func (n *SolanaNormalizer) classify(tx *models.HeliusTx) models.TxContext {
	hasKnown := false
	for _, instr := range tx.Instructions {
		if _, ok := dexPrograms[instr.ProgramID]; ok {
			return models.ContextDexSwap
		}
	}
	for _, instr := range tx.Instructions {
		if _, ok := lendingPrograms[instr.ProgramID]; ok {
			return models.ContextLending
		}
	}
	for _, instr := range tx.Instructions {
		if _, ok := stakingPrograms[instr.ProgramID]; ok {
			return models.ContextStaking
		}
	}
	for _, instr := range tx.Instructions {
		if _, ok := knownPrograms[instr.ProgramID]; ok {
			hasKnown = true
			break
		}
	}
	hasTransfers := len(tx.NativeTransfers) > 0 || len(tx.TokenTransfers) > 0
	if hasTransfers && !hasKnown {
		return models.ContextPureTransfer
	}
	if hasKnown {
		return models.ContextOtherProgram
	}
	return models.ContextUnknown
}

func (n *SolanaNormalizer) isProgrammatic(tx *models.HeliusTx) bool {
	if len(tx.Instructions) > 10 {
		return true
	}
	if len(tx.TokenTransfers) > 5 {
		return true
	}
	for _, instr := range tx.Instructions {
		if _, ok := knownPrograms[instr.ProgramID]; ok {
			return true
		}
	}
	return false
}
