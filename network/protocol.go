package network

import "encoding/json"

// Inbound events (client -> server).
const (
	EventJoinUser        = "join:user"
	EventJoinEntity      = "join:entity"
	EventLobbyJoin       = "lobby:join"
	EventLobbyLeave      = "lobby:leave"
	EventBattleChallenge = "battle:challenge"
	EventBattleAccept    = "battle:accept"
	EventBattleDecline   = "battle:decline"
	EventBattleAction    = "battle:action"
	EventBattleEnd       = "battle:end"
	EventEntityUpdate    = "entity:update"
	EventEntityReaction  = "entity:reaction"
	EventLocationUpdate  = "location:update"
)

// Outbound events (server -> client).
const (
	EventLobbyUpdated    = "lobby:updated"
	EventBattleInvited   = "battle:invited"
	EventBattleStarted   = "battle:started"
	EventBattleDeclined  = "battle:declined"
	EventBattleEnded     = "battle:ended"
	EventEntityUpdated   = "entity:updated"
	EventLocationUpdated = "location:updated"
	EventError           = "error"
)

// aliases accepted from older clients that still speak in pets.
var aliases = map[string]string{
	"join:pet":     EventJoinEntity,
	"pet:update":   EventEntityUpdate,
	"pet:reaction": EventEntityReaction,
}

// Canonical maps an inbound event name to its canonical form.
func Canonical(event string) string {
	if canonical, ok := aliases[event]; ok {
		return canonical
	}
	return event
}

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds the wire frame for one event. A json.RawMessage payload is
// embedded as-is.
func Encode(event string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		data = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode parses one inbound frame.
func Decode(frame []byte) (*Packet, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, err
	}
	if env.Event == "" {
		return nil, ErrMissingEvent
	}
	return &Packet{Event: Canonical(env.Event), Data: env.Data}, nil
}
