package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
type ClientMsg struct {
	Type   string `json:"type"`
	Stream string `json:"stream"` // requerido em subscribe/unsubscribe
}

// ServerMsg é enviado ao cliente fora do fluxo de updates (pong, snapshot, erro).
type ServerMsg struct {
	Type    string `json:"type"`
	Stream  string `json:"stream,omitempty"`
	Payload any    `json:"payload,omitempty"`
}
