package streaming

import (
	"encoding/json"
	"fmt"
)

// Message type constants for the websocket transport.
const (
	TypePost = "post"
	TypeAck  = "ack"
)

// Envelope wraps one request sent over the websocket. Path mirrors the
// HTTP route the payload would have been POSTed to.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Path    string          `json:"path"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the server's acknowledgement of an envelope.
type AckMessage struct {
	Type   string `json:"type"`   // always "ack"
	For    string `json:"for"`    // the envelope ID being acknowledged
	Status int    `json:"status"` // HTTP-equivalent status code
}

// NewPost builds a post envelope. A nil or empty body produces no payload.
func NewPost(id, path string, body []byte) ([]byte, error) {
	env := Envelope{Type: TypePost, ID: id, Path: path}
	if len(body) > 0 {
		if !json.Valid(body) {
			return nil, fmt.Errorf("payload for %s is not valid JSON", path)
		}
		env.Payload = json.RawMessage(body)
	}
	return json.Marshal(env)
}

// NewAck builds an ack for the given envelope ID.
func NewAck(id string, status int) ([]byte, error) {
	return json.Marshal(AckMessage{Type: TypeAck, For: id, Status: status})
}
