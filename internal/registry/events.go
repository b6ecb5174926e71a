package registry

import "time"

// Scheduled is published when an event is accepted.
type Scheduled struct {
	ID     string    `json:"id"`
	Every  int       `json:"every"`
	Repeat bool      `json:"repeat"`
	Offset int       `json:"offset"`
	At     time.Time `json:"at"`
}

// Fired is published after a callback returns. Immediate marks the fire
// done at registration.
type Fired struct {
	ID        string    `json:"id"`
	Tick      int       `json:"tick"`
	Immediate bool      `json:"immediate"`
	Payload   Payload   `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

type Removed struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

type CallbackFailure struct {
	ID  string    `json:"id"`
	Err string    `json:"err"`
	At  time.Time `json:"at"`
}
