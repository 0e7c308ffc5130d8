// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/petlobby/logger"
	"github.com/wfunc/petlobby/network"
	"github.com/wfunc/petlobby/room"
	"github.com/wfunc/petlobby/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// 广播接口
type Broadcaster interface {
	// Publish delivers to every member of the room at call time.
	Publish(roomName, event string, payload interface{}) error
	// PublishExcept is Publish without the given connection.
	PublishExcept(exceptID, roomName, event string, payload interface{}) error
	// SendTo delivers to a single connection.
	SendTo(connID, event string, payload interface{}) error
	// PublishAll delivers to every live connection.
	PublishAll(event string, payload interface{}) error
}

// 基于房间的广播器
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
	onSendError    func(connID string, err error)
}

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
	}
}

// OnSendError registers a callback for failed deliveries, typically a full
// outbound queue. It runs synchronously, so it must not block or publish.
func (b *RoomBroadcaster) OnSendError(fn func(connID string, err error)) {
	b.onSendError = fn
}

func (b *RoomBroadcaster) Publish(roomName, event string, payload interface{}) error {
	return b.PublishExcept("", roomName, event, payload)
}

func (b *RoomBroadcaster) PublishExcept(exceptID, roomName, event string, payload interface{}) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}

	// Sends only enqueue, so they run under the room read lock: a connection
	// dropped from the room cannot receive this frame afterwards.
	b.roomManager.ForEachMember(roomName, func(connID string) {
		if connID == exceptID {
			return
		}
		b.deliver(connID, frame)
	})
	return nil
}

func (b *RoomBroadcaster) SendTo(connID, event string, payload interface{}) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	if _, ok := b.sessionManager.Get(connID); !ok {
		return ErrSessionNotFound
	}
	b.deliver(connID, frame)
	return nil
}

func (b *RoomBroadcaster) PublishAll(event string, payload interface{}) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	for _, s := range b.sessionManager.All() {
		b.deliver(s.ID, frame)
	}
	return nil
}

func (b *RoomBroadcaster) deliver(connID string, frame []byte) {
	s, ok := b.sessionManager.Get(connID)
	if !ok {
		return
	}
	if err := s.Send(frame); err != nil {
		logger.Log.Debugf("Delivery to %s failed: %v", connID, err)
		if b.onSendError != nil {
			b.onSendError(connID, err)
		}
	}
}
