package models

type WsMessageType string

const (
	WsSubscribe   WsMessageType = "Subscribe"
	WsVote        WsMessageType = "Vote"
	WsPollUpdate  WsMessageType = "PollUpdate"
	WsPollDeleted WsMessageType = "PollDeleted"
)

// WsMessage is the tagged union exchanged over poll sockets.
//
//	{"type":"Subscribe","poll_id":"..."}
//	{"type":"Vote","poll_id":"...","option_id":"..."}
//	{"type":"PollUpdate","poll_id":"...","poll":{...}}
//	{"type":"PollDeleted","poll_id":"..."}
type WsMessage struct {
	Type     WsMessageType `json:"type"`
	PollID   string        `json:"poll_id,omitempty"`
	OptionID string        `json:"option_id,omitempty"`
	Poll     *Poll         `json:"poll,omitempty"`
}
