// Package occ implements the OCC-21 listed-option symbol codec: parse and
// emit the 21-character `UUUUUU YYMMDD C|P SSSSSSSS` identifier used by US
// listed options (see spec GLOSSARY). Encode/Decode are bijective inverses.
package occ

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
)

const (
	underlyingWidth = 6
	dateWidth       = 6
	strikeWidth     = 8
	totalWidth      = underlyingWidth + dateWidth + 1 + strikeWidth // 21
)

// Contract is the decoded form of an OCC-21 symbol.
type Contract struct {
	Underlying string
	Expiration time.Time
	Right      models.OptionRight
	Strike     decimal.Decimal
}

// Encode renders a Contract into its 21-character OCC symbol. The
// underlying is padded with trailing spaces to 6 characters ("SPY" becomes
// "SPY   "); an empty underlying or one longer than 6 characters is
// rejected with ErrBadOptionSymbol.
func Encode(c Contract) (string, error) {
	if len(c.Underlying) == 0 || len(c.Underlying) > underlyingWidth {
		return "", fmt.Errorf("%w: underlying %q must be 1-6 characters", models.ErrBadOptionSymbol, c.Underlying)
	}
	if c.Right != models.Call && c.Right != models.Put {
		return "", fmt.Errorf("%w: right must be call or put", models.ErrBadOptionSymbol)
	}
	if c.Strike.IsNegative() {
		return "", fmt.Errorf("%w: strike must be non-negative", models.ErrBadOptionSymbol)
	}

	underlying := fmt.Sprintf("%-*s", underlyingWidth, c.Underlying)
	dateStr := c.Expiration.Format("060102")

	rightChar := "C"
	if c.Right == models.Put {
		rightChar = "P"
	}

	// Strike is stored as 8 digits of tenths-of-cents: strike * 1000.
	tenthsOfCents := c.Strike.Mul(decimal.NewFromInt(1000))
	if !tenthsOfCents.Equal(tenthsOfCents.Truncate(0)) {
		return "", fmt.Errorf("%w: strike has sub-tenth-of-cent precision", models.ErrBadOptionSymbol)
	}
	strikeInt := tenthsOfCents.IntPart()
	if strikeInt < 0 || strikeInt > 99999999 {
		return "", fmt.Errorf("%w: strike out of representable range", models.ErrBadOptionSymbol)
	}
	strikeStr := fmt.Sprintf("%0*d", strikeWidth, strikeInt)

	return underlying + dateStr + rightChar + strikeStr, nil
}

// Decode parses a 21-character OCC symbol into a Contract.
func Decode(symbol string) (Contract, error) {
	if len(symbol) != totalWidth {
		return Contract{}, fmt.Errorf("%w: expected %d characters, got %d", models.ErrBadOptionSymbol, totalWidth, len(symbol))
	}

	underlyingRaw := symbol[0:underlyingWidth]
	dateStr := symbol[underlyingWidth : underlyingWidth+dateWidth]
	rightChar := symbol[underlyingWidth+dateWidth : underlyingWidth+dateWidth+1]
	strikeStr := symbol[underlyingWidth+dateWidth+1:]

	underlying := strings.TrimRight(underlyingRaw, " ")
	if underlying == "" {
		return Contract{}, fmt.Errorf("%w: empty underlying", models.ErrBadOptionSymbol)
	}
	if strings.TrimRight(underlyingRaw, " ") != underlyingRaw && strings.Contains(strings.TrimLeft(underlyingRaw, " "), " ") {
		return Contract{}, fmt.Errorf("%w: underlying contains embedded spaces", models.ErrBadOptionSymbol)
	}

	expiration, err := time.Parse("060102", dateStr)
	if err != nil {
		return Contract{}, fmt.Errorf("%w: bad expiration %q: %v", models.ErrBadOptionSymbol, dateStr, err)
	}

	var right models.OptionRight
	switch rightChar {
	case "C":
		right = models.Call
	case "P":
		right = models.Put
	default:
		return Contract{}, fmt.Errorf("%w: right must be C or P, got %q", models.ErrBadOptionSymbol, rightChar)
	}

	strikeInt, err := strconv.ParseInt(strikeStr, 10, 64)
	if err != nil {
		return Contract{}, fmt.Errorf("%w: bad strike digits %q: %v", models.ErrBadOptionSymbol, strikeStr, err)
	}
	strike := decimal.NewFromInt(strikeInt).Div(decimal.NewFromInt(1000))

	return Contract{
		Underlying: underlying,
		Expiration: expiration,
		Right:      right,
		Strike:     strike,
	}, nil
}
