package syndication

import (
	"fmt"
	"math/big"
	"strings"
)

// proRataShare computes pool * contributed / total with full-precision integer
// math, multiplying before dividing so truncation bias never favours
// early-computed shares. The result truncates toward zero.
func proRataShare(pool, contributed, total *big.Int) *big.Int {
	if pool == nil || contributed == nil || total == nil {
		return big.NewInt(0)
	}
	if pool.Sign() <= 0 || contributed.Sign() <= 0 || total.Sign() <= 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(pool, contributed)
	return share.Quo(share, total)
}

// normalizeSymbol mirrors the token ledger's canonical symbol form but maps
// failures into the engine's argument taxonomy.
func normalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty asset symbol", ErrInvalidArgument)
	}
	return trimmed, nil
}
