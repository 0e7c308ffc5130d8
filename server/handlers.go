package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wfunc/petlobby/coordinator"
	"github.com/wfunc/petlobby/logger"
	"github.com/wfunc/petlobby/network"
	"github.com/wfunc/petlobby/session"
)

// handlePacket runs one inbound event. A panicking handler is reported to
// the requester as an internal error and never reaches the read loop.
func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	s.monitor.IncMessagesReceived(packet.Event)

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorw("handler panic", "event", packet.Event, "conn", sess.GetID(), "panic", r)
			s.monitor.IncHandlerError("panic")
			s.replyError(sess, coordinator.ErrUnknown)
		}
		s.monitor.ObserveMessageLatency(time.Since(start))
	}()

	if err := s.dispatch(sess, packet); err != nil {
		s.replyError(sess, err)
	}
}

func (s *GameServer) dispatch(sess *session.Session, packet *network.Packet) error {
	c := s.coordinator
	id := sess.GetID()

	switch packet.Event {
	case network.EventJoinUser:
		userID, ok := network.StringArg(packet.Data)
		if !ok {
			return coordinator.ErrInvalidPayload
		}
		return c.JoinUser(id, userID)

	case network.EventJoinEntity:
		entityID, ok := network.StringArg(packet.Data)
		if !ok {
			entityID = network.EntityID(packet.Data)
		}
		return c.JoinEntity(id, entityID)

	case network.EventLobbyJoin:
		var req network.JoinLobbyRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		c.JoinLobby(id, req)

	case network.EventLobbyLeave:
		c.LeaveLobby(id)

	case network.EventBattleChallenge:
		var req network.ChallengeRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		_, err := c.Challenge(id, req)
		return err

	case network.EventBattleAccept:
		var req network.AcceptRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return c.Accept(id, req)

	case network.EventBattleDecline:
		var req network.DeclineRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		c.Decline(id, req)

	case network.EventBattleAction:
		var req network.ActionRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		c.Action(id, req.BattleID, packet.Data)

	case network.EventBattleEnd:
		var req network.EndRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		c.End(id, req)

	case network.EventEntityUpdate:
		var req network.EntityUpdateRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		if req.EntityID == "" {
			req.EntityID = network.EntityID(packet.Data)
		}
		return c.UpdateState(context.Background(), id, req)

	case network.EventEntityReaction:
		var req network.ReactionRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		if req.EntityID == "" {
			req.EntityID = network.EntityID(packet.Data)
		}
		return c.BroadcastReaction(id, req)

	case network.EventLocationUpdate:
		var req network.LocationRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		if req.EntityID == "" {
			req.EntityID = network.EntityID(packet.Data)
		}
		return c.BroadcastLocation(id, req)

	default:
		logger.Log.Debugw("unknown event", "event", packet.Event, "conn", id)
	}
	return nil
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return coordinator.ErrInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return coordinator.ErrInvalidPayload
	}
	return nil
}

// replyError sends error{message} to the requester only.
func (s *GameServer) replyError(sess *session.Session, err error) {
	message := coordinator.ClientMessage(err)
	kind := coordinator.Kind(err)
	s.monitor.IncHandlerError(kind)
	if kind == "unknown" {
		logger.Log.Errorw("handler failed", "conn", sess.GetID(), "error", err)
	} else {
		logger.Log.Debugw("request rejected", "conn", sess.GetID(), "error", err)
	}

	if sendErr := sess.Emit(network.EventError, coordinator.ErrorMessage{Message: message}); sendErr != nil {
		logger.Log.Debugw("error delivery failed", "conn", sess.GetID(), "error", sendErr)
	}
}

type emitRequest struct {
	Room string          `json:"room"`
	Data json.RawMessage `json:"data"`
}

// handleAdminEmit is the HTTP form of the admin side-channel.
func (s *GameServer) handleAdminEmit(w http.ResponseWriter, r *http.Request) {
	if token := s.cfg.Admin.Token; token != "" {
		if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid admin token"})
			return
		}
	}

	event := mux.Vars(r)["event"]
	var req emitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
	}

	if err := s.coordinator.Emit(event, req.Room, req.Data); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"event":   event,
		"room":    req.Room,
	})
}
