//go:build !linux

package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// DeviceProvider is only wired to real capture hardware on Linux. Elsewhere it
// builds default peer connections and reports capture as unavailable, which
// the call core treats like a denied device permission.
type DeviceProvider struct{}

var errNoCapture = errors.New("media: device capture not supported on this platform")

func NewDeviceProvider() (*DeviceProvider, error) {
	return &DeviceProvider{}, nil
}

func (p *DeviceProvider) NewPeerConnection(cfg webrtc.Configuration) (*webrtc.PeerConnection, error) {
	return webrtc.NewPeerConnection(cfg)
}

func (p *DeviceProvider) GetUserMedia(context.Context, Constraints) (Stream, error) {
	return nil, errNoCapture
}
