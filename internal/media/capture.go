// Package media owns one peer connection per call: local capture, the
// offer/answer/ICE exchange, and teardown. It is transport-agnostic; candidates
// and descriptions are handed back to the caller for delivery over signaling.
package media

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Constraints selects which local devices to open for a call.
type Constraints struct {
	Audio bool
	Video bool
}

// Stream is a set of live local capture tracks. Close stops every track and is
// safe to call more than once.
type Stream interface {
	Tracks() []webrtc.TrackLocal
	Close()
}

// CaptureProvider acquires local media and builds peer connections able to
// carry that media's codecs. Acquiring may block on device access for an
// arbitrary time; callers must re-validate call state when it returns.
type CaptureProvider interface {
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
	NewPeerConnection(cfg webrtc.Configuration) (*webrtc.PeerConnection, error)
}

// trackStream is a Stream over plain pion tracks with per-track closers.
type trackStream struct {
	tracks []webrtc.TrackLocal
	stop   func()
	once   sync.Once
}

func (s *trackStream) Tracks() []webrtc.TrackLocal { return s.tracks }

func (s *trackStream) Close() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// NewStream wraps pre-built tracks as a Stream. stop may be nil.
func NewStream(tracks []webrtc.TrackLocal, stop func()) Stream {
	return &trackStream{tracks: tracks, stop: stop}
}

// NullProvider is a CaptureProvider with no devices: GetUserMedia yields an
// empty stream and peer connections use the default pion API. Calls built on
// it are receive-only. Used headless and in tests.
type NullProvider struct{}

func (NullProvider) GetUserMedia(context.Context, Constraints) (Stream, error) {
	return NewStream(nil, nil), nil
}

func (NullProvider) NewPeerConnection(cfg webrtc.Configuration) (*webrtc.PeerConnection, error) {
	return webrtc.NewPeerConnection(cfg)
}
