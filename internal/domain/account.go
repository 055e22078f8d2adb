package domain

import "time"

// Account é a projeção em cache do saldo de um usuário.
// Balance sempre igual à soma das transações COMMITTED da conta.
type Account struct {
	ID        string
	Balance   int64 // unidades menores (paise)
	Version   int64 // concorrência otimista
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
