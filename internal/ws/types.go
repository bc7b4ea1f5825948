package ws

const (
	// client - server
	MsgSubscribe = "subscribe"
	MsgPing      = "ping"

	// server - client
	MsgReady      = "ready"
	MsgPong       = "pong"
	MsgEvaluation = "evaluation"
	MsgError      = "error"
)
