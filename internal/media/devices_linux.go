//go:build linux

package media

import (
	"context"
	"fmt"
	"log"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// DeviceProvider captures camera and microphone through pion/mediadevices
// (V4L2 + malgo). Peer connections it builds share the VP8/Opus codec
// selection so captured tracks bind cleanly.
type DeviceProvider struct {
	selector *mediadevices.CodecSelector
	api      *webrtc.API
}

// NewDeviceProvider prepares the VP8+Opus codec stack once; the provider is
// reused across calls.
func NewDeviceProvider() (*DeviceProvider, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := &webrtc.MediaEngine{}
	selector.Populate(mediaEngine)

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	return &DeviceProvider{selector: selector, api: api}, nil
}

func (p *DeviceProvider) NewPeerConnection(cfg webrtc.Configuration) (*webrtc.PeerConnection, error) {
	return p.api.NewPeerConnection(cfg)
}

// GetUserMedia opens the requested devices. It fails as a unit if any
// requested track cannot be opened; the caller decides whether to retry with
// narrower constraints.
func (p *DeviceProvider) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: p.selector}
	if c.Video {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			// Exclude MJPEG camera nodes; malformed JPEG frames poison the
			// VP8 encoder and break SDP negotiation.
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.IntRanged{Max: 640}
			mc.Height = prop.IntRanged{Max: 480}
		}
	}
	if c.Audio {
		constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}

	tracks := stream.GetTracks()
	locals := make([]webrtc.TrackLocal, 0, len(tracks))
	for _, track := range tracks {
		track.OnEnded(func(err error) {
			if err != nil {
				log.Printf("media: local track ended: %v", err)
			}
		})
		locals = append(locals, track)
	}

	stop := func() {
		for _, t := range tracks {
			t.Close()
		}
	}
	return NewStream(locals, stop), nil
}
