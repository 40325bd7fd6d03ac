package websocket

// Frame is the envelope for everything pushed over the socket. The frontend
// switches on Type: token deltas, progress snapshots, stage transitions and
// lifecycle notifications all travel through the same channel.
type Frame struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

const (
	FrameToken        = "token"
	FrameProgress     = "progress"
	FrameStage        = "stage"
	FrameResult       = "result"
	FrameError        = "error"
	FrameNotification = "notification"
)
