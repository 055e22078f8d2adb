package round

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/color-round-platform/internal/domain"
)

// Rules reúne os parâmetros do jogo. Valores monetários em unidades mínimas (paise).
type Rules struct {
	Colors           []domain.Color
	RoundLength      time.Duration
	GraceCutoff      time.Duration
	MinBet           int64
	PayoutMultiplier int64
	FeeRate          decimal.Decimal
	HouseAccount     string
}

// DefaultRules: round de 30s, corte de 3s, aposta mínima ₹10, pagamento 2x com taxa de 5%.
func DefaultRules() Rules {
	return Rules{
		Colors:           []domain.Color{"RED", "GREEN", "BLUE"},
		RoundLength:      30 * time.Second,
		GraceCutoff:      3 * time.Second,
		MinBet:           1000,
		PayoutMultiplier: 2,
		FeeRate:          decimal.RequireFromString("0.05"),
		HouseAccount:     "house",
	}
}

func (r Rules) Validate() error {
	if len(r.Colors) < 2 {
		return errors.New("at least two colors are required")
	}
	seen := make(map[domain.Color]bool, len(r.Colors))
	for _, c := range r.Colors {
		if c == "" || seen[c] {
			return fmt.Errorf("invalid or duplicated color %q", c)
		}
		seen[c] = true
	}
	if r.RoundLength <= 0 || r.GraceCutoff < 0 || r.GraceCutoff >= r.RoundLength {
		return fmt.Errorf("grace cutoff %s must be shorter than round length %s", r.GraceCutoff, r.RoundLength)
	}
	if r.MinBet <= 0 {
		return errors.New("min bet must be positive")
	}
	if r.PayoutMultiplier < 1 {
		return errors.New("payout multiplier must be >= 1")
	}
	if r.FeeRate.IsNegative() || r.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee rate %s out of [0,1)", r.FeeRate)
	}
	if r.HouseAccount == "" {
		return errors.New("house account is required")
	}
	return nil
}

func (r Rules) HasColor(c domain.Color) bool {
	for _, x := range r.Colors {
		if x == c {
			return true
		}
	}
	return false
}

// Payout devolve o valor bruto, a taxa da plataforma e o líquido creditado.
// A taxa é arredondada para baixo na unidade mínima.
func (r Rules) Payout(stake int64) (gross, fee, net int64) {
	gross = stake * r.PayoutMultiplier
	fee = decimal.NewFromInt(gross).Mul(r.FeeRate).Floor().IntPart()
	return gross, fee, gross - fee
}
