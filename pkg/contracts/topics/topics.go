package topics

const (
	// Rounds
	RoundOpened  = "round_opened"
	RoundLocked  = "round_locked"
	RoundSettled = "round_settled"

	// Bets
	BetPlaced = "bet_placed"

	// DLQs
	RoundEventsDLQ = "round_events_dlq"
)

// RoundStream lista os tópicos consumidos pelo round-events-worker.
var RoundStream = []string{RoundOpened, RoundLocked, RoundSettled, BetPlaced}
