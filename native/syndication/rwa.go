package syndication

import (
	"math/big"
	"strings"
)

// Illustrative supervisory risk weights in basis points, keyed by asset
// class. These numbers document shape, not policy: externally-attested
// valuations and real capital-ratio computation live outside the ledger.
var riskWeightsBps = map[string]uint64{
	"CASH":      0,
	"SOVEREIGN": 0,
	"BANK":      2_000,
	"COVERED":   3_500,
	"RETAIL":    7_500,
	"CORPORATE": 10_000,
	"EQUITY":    15_000,
}

const basisPoints = 10_000

// RiskWeightBps returns the illustrative risk weight for an asset class,
// defaulting to 100% for unknown classes.
func RiskWeightBps(class string) uint64 {
	if w, ok := riskWeightsBps[strings.ToUpper(strings.TrimSpace(class))]; ok {
		return w
	}
	return basisPoints
}

// Exposure returns drawn principal not yet repaid. The value is signed: an
// over-repaid loan reports negative exposure.
func Exposure(loan *Loan) *big.Int {
	if loan == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(cloneBigInt(loan.Drawn), cloneBigInt(loan.TotalRepaid))
}

// ApproximateRWA estimates risk-weighted exposure after collateral offset:
// max(exposure - Σ fungibleAmount*(1 - weight), 0). classOf maps a collateral
// asset symbol to its risk class; nil treats every asset as CORPORATE.
// Unique positions carry no attested amount and are ignored. Purely advisory,
// no side effects.
func ApproximateRWA(loan *Loan, classOf func(asset string) string) *big.Int {
	if loan == nil {
		return big.NewInt(0)
	}
	exposure := Exposure(loan)
	if exposure.Sign() <= 0 {
		return big.NewInt(0)
	}
	offset := big.NewInt(0)
	for i := range loan.Collateral {
		pos := &loan.Collateral[i]
		if pos.Kind != CollateralFungible || pos.Amount == nil {
			continue
		}
		class := "CORPORATE"
		if classOf != nil {
			class = classOf(pos.Asset)
		}
		weight := RiskWeightBps(class)
		if weight > basisPoints {
			weight = basisPoints
		}
		haircut := new(big.Int).SetUint64(basisPoints - weight)
		value := new(big.Int).Mul(pos.Amount, haircut)
		value.Quo(value, big.NewInt(basisPoints))
		offset.Add(offset, value)
	}
	rwa := new(big.Int).Sub(exposure, offset)
	if rwa.Sign() < 0 {
		return big.NewInt(0)
	}
	return rwa
}
