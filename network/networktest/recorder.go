// Package networktest provides a network.Connection double that records
// every frame sent to it.
package networktest

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/wfunc/petlobby/network"
)

type Recorder struct {
	mutex  sync.Mutex
	frames []network.Envelope
	closed bool
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(frame []byte) error {
	var env network.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return network.ErrConnectionClosed
	}
	r.frames = append(r.frames, env)
	return nil
}

func (r *Recorder) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.closed = true
	return nil
}

func (r *Recorder) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (r *Recorder) SetHeartbeat(interval time.Duration)  {}
func (r *Recorder) ReadPacket() (*network.Packet, error) { return nil, network.ErrConnectionClosed }

// Frames returns a copy of everything received so far.
func (r *Recorder) Frames() []network.Envelope {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]network.Envelope, len(r.frames))
	copy(out, r.frames)
	return out
}

// Events returns the names of received events in order.
func (r *Recorder) Events() []string {
	frames := r.Frames()
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, f.Event)
	}
	return names
}

// Named returns the frames carrying the given event.
func (r *Recorder) Named(event string) []network.Envelope {
	var out []network.Envelope
	for _, f := range r.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// Last decodes the data of the most recent frame with the given event into v
// and reports whether one was found.
func (r *Recorder) Last(event string, v interface{}) bool {
	frames := r.Named(event)
	if len(frames) == 0 {
		return false
	}
	if v != nil {
		if err := json.Unmarshal(frames[len(frames)-1].Data, v); err != nil {
			return false
		}
	}
	return true
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.frames = nil
}
