package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/radieske/color-round-platform/internal/domain"
)

func TestRupees(t *testing.T) {
	assert.Equal(t, "1090.00", Rupees(109000))
	assert.Equal(t, "0.05", Rupees(5))
	assert.Equal(t, "-100.00", Rupees(-10000))
}

func TestNewRoundResponse_FillsMissingColors(t *testing.T) {
	lock := time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)
	r := &domain.Round{ID: 7, Status: domain.RoundOpen, LockAt: lock, Pools: map[domain.Color]int64{"RED": 500}}

	resp := NewRoundResponse(r, []domain.Color{"RED", "GREEN"}, 3*time.Second)

	assert.Equal(t, map[string]int64{"RED": 500, "GREEN": 0}, resp.Pools)
	assert.Equal(t, lock.Add(-3*time.Second), resp.BettingClosesAt)
	assert.Equal(t, int64(500), resp.TotalPoolMinor)
}
