package round

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/color-round-platform/internal/domain"
)

var colors = []domain.Color{"RED", "GREEN", "BLUE"}

func TestPickWinner(t *testing.T) {
	cases := []struct {
		name  string
		pools map[domain.Color]int64
		want  domain.Color
	}{
		{"lowest pool wins", map[domain.Color]int64{"RED": rupees(300), "GREEN": rupees(100), "BLUE": rupees(500)}, "GREEN"},
		{"color without bets counts as zero", map[domain.Color]int64{"RED": 100, "GREEN": 200}, "BLUE"},
		{"unknown colors ignored", map[domain.Color]int64{"RED": 5, "GREEN": 9, "BLUE": 7, "PINK": 1}, "RED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PickWinner(colors, tc.pools, "seed", 1))
		})
	}
}

func TestPickWinner_TieIsDeterministicAndFair(t *testing.T) {
	pools := map[domain.Color]int64{"RED": 100, "GREEN": 100, "BLUE": 900}
	seen := map[domain.Color]int{}
	for id := int64(1); id <= 200; id++ {
		w := PickWinner(colors, pools, "fixed-seed", id)
		require.Contains(t, []domain.Color{"RED", "GREEN"}, w)
		assert.Equal(t, w, PickWinner(colors, pools, "fixed-seed", id))
		seen[w]++
	}
	assert.Greater(t, seen["RED"], 0)
	assert.Greater(t, seen["GREEN"], 0)
}

func TestNewSeed(t *testing.T) {
	seed, hash, err := NewSeed()
	require.NoError(t, err)
	assert.Len(t, seed, 64)
	assert.Equal(t, HashSeed(seed), hash)

	other, _, err := NewSeed()
	require.NoError(t, err)
	assert.NotEqual(t, seed, other)
}

func TestRules_Payout(t *testing.T) {
	r := DefaultRules()

	gross, fee, net := r.Payout(rupees(100))
	assert.Equal(t, rupees(200), gross)
	assert.Equal(t, rupees(10), fee)
	assert.Equal(t, rupees(190), net)

	// taxa arredonda para baixo
	gross, fee, net = r.Payout(1001)
	assert.Equal(t, int64(2002), gross)
	assert.Equal(t, int64(100), fee)
	assert.Equal(t, int64(1902), net)
}

func TestRules_Validate(t *testing.T) {
	r := DefaultRules()
	require.NoError(t, r.Validate())

	bad := r
	bad.Colors = []domain.Color{"RED", "RED"}
	assert.Error(t, bad.Validate())

	bad = r
	bad.GraceCutoff = r.RoundLength
	assert.Error(t, bad.Validate())

	bad = r
	bad.MinBet = 0
	assert.Error(t, bad.Validate())
}
