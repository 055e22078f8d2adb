package events

// Evento publicado no tópico "bet_placed" após o commit da aposta.
type BetPlaced struct {
	BetID      string `json:"bet_id"`
	RoundID    int64  `json:"round_id"`
	AccountID  string `json:"account_id"`
	Color      string `json:"color"`
	StakeMinor int64  `json:"stake_minor"`
	StakeKey   string `json:"stake_key"` // chave de idempotência do débito BET_STAKE
	TsUnixMs   int64  `json:"ts_unix_ms"`
}
