package network

import "encoding/json"

// Inbound payloads.

type JoinLobbyRequest struct {
	EntityID string          `json:"entityId"`
	Name     string          `json:"name"`
	Stats    json.RawMessage `json:"stats,omitempty"`
}

// UnmarshalJSON also accepts petId for entityId.
func (r *JoinLobbyRequest) UnmarshalJSON(b []byte) error {
	type plain JoinLobbyRequest
	var v struct {
		plain
		PetID string `json:"petId"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = JoinLobbyRequest(v.plain)
	if r.EntityID == "" {
		r.EntityID = v.PetID
	}
	return nil
}

type ChallengeRequest struct {
	ChallengerID   string `json:"challengerId"`
	ChallengerName string `json:"challengerName"`
	OpponentID     string `json:"opponentId"`
}

type AcceptRequest struct {
	BattleID   string `json:"battleId"`
	AccepterID string `json:"accepterId"`
}

type DeclineRequest struct {
	BattleID string `json:"battleId"`
}

type ActionRequest struct {
	BattleID string          `json:"battleId"`
	Action   json.RawMessage `json:"action"`
}

type EndRequest struct {
	BattleID string  `json:"battleId"`
	Winner   *string `json:"winner"`
}

type EntityUpdateRequest struct {
	EntityID string          `json:"entityId"`
	State    json.RawMessage `json:"state"`
}

type ReactionRequest struct {
	EntityID string          `json:"entityId"`
	Reaction json.RawMessage `json:"reaction"`
}

type LocationRequest struct {
	EntityID string          `json:"entityId"`
	X        float64         `json:"x"`
	Y        float64         `json:"y"`
	Scene    json.RawMessage `json:"scene,omitempty"`
}

type entityAlias struct {
	EntityID string `json:"entityId"`
	PetID    string `json:"petId"`
}

func (a entityAlias) id() string {
	if a.EntityID != "" {
		return a.EntityID
	}
	return a.PetID
}

// EntityID extracts entityId (or petId) from any entity-scoped payload.
func EntityID(data json.RawMessage) string {
	var a entityAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return ""
	}
	return a.id()
}

// StringArg decodes a bare string or number payload such as join:user's user id.
func StringArg(data json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
