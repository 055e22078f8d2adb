package round

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/radieske/color-round-platform/internal/domain"
)

// NewSeed gera o seed do round e o hash publicado na abertura.
func NewSeed() (seed, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate seed: %w", err)
	}
	seed = hex.EncodeToString(buf)
	return seed, HashSeed(seed), nil
}

func HashSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// PickWinner escolhe a cor de menor pool. Cores sem aposta contam como zero.
// Empates são resolvidos por HMAC-SHA256(seed, "round:<id>") sobre as cores
// empatadas na ordem configurada, o que torna o resultado verificável depois
// que o seed é revelado.
func PickWinner(colors []domain.Color, pools map[domain.Color]int64, seed string, roundID int64) domain.Color {
	var tied []domain.Color
	var min int64
	for i, c := range colors {
		v := pools[c]
		switch {
		case i == 0 || v < min:
			min = v
			tied = []domain.Color{c}
		case v == min:
			tied = append(tied, c)
		}
	}
	if len(tied) <= 1 {
		if len(tied) == 0 {
			return ""
		}
		return tied[0]
	}
	mac := hmac.New(sha256.New, []byte(seed))
	mac.Write([]byte("round:" + strconv.FormatInt(roundID, 10)))
	sum := mac.Sum(nil)
	idx := binary.BigEndian.Uint64(sum[:8]) % uint64(len(tied))
	return tied[idx]
}
