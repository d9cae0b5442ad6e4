package monitor

import "time"

// MonitorMessage is one observed message crossing the gateway.
type MonitorMessage struct {
	Timestamp   time.Time
	MessageType string // "USER" or "ASSISTANT"
	ChannelID   string
	Username    string
	Content     string
}

// Monitor observes the message traffic of all channels.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg MonitorMessage)
}
