package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/mikeyg42/framecoder/internal/imgconv"
	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
	"github.com/mikeyg42/framecoder/internal/recorder/metadata"
	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

// CameraConfig selects and configures a capture device. Drivers register
// themselves with mediadevices through blank imports in main.
type CameraConfig struct {
	DeviceID  string // "" picks the first camera
	Info      buffer.StreamInfo
	FrameRate float64
	Buffers   int
	Frames    int
}

// Camera reads raw frames from a mediadevices video track and copies them
// into pool buffers as I420.
type Camera struct {
	*base
	track  *mediadevices.VideoTrack
	reader video.Reader
	frames int
	seq    uint64
}

var _ Source = (*Camera)(nil)

// CameraDevice describes one video input.
type CameraDevice struct {
	DeviceID string
	Label    string
}

// ListCameras returns the video inputs the registered drivers can see.
func ListCameras() []CameraDevice {
	var out []CameraDevice
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind == mediadevices.VideoInput {
			out = append(out, CameraDevice{DeviceID: d.DeviceID, Label: d.Label})
		}
	}
	return out
}

// NewCamera opens the device and allocates the pool.
func NewCamera(cfg CameraConfig) (*Camera, error) {
	b, err := newBase(cfg.Info, cfg.Buffers, "camera")
	if err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			if cfg.DeviceID != "" {
				c.DeviceID = prop.String(cfg.DeviceID)
			}
			c.Width = prop.Int(cfg.Info.Width)
			c.Height = prop.Int(cfg.Info.Height)
			if cfg.FrameRate > 0 {
				c.FrameRate = prop.Float(cfg.FrameRate)
			}
		},
	}
	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to get user media: %w", err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		b.Close()
		return nil, fmt.Errorf("no video tracks available")
	}
	track, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		tracks[0].Close()
		b.Close()
		return nil, fmt.Errorf("track is not a VideoTrack: %T", tracks[0])
	}

	b.logger.Info("Camera opened",
		recorderlog.String("track", track.ID()),
		recorderlog.Int("width", cfg.Info.Width),
		recorderlog.Int("height", cfg.Info.Height))

	return &Camera{
		base:   b,
		track:  track,
		reader: track.NewReader(false),
		frames: cfg.Frames,
	}, nil
}

// Run copies frames from the track until ctx is done or the limit is hit.
func (c *Camera) Run(ctx context.Context, sub Submitter) error {
	start := time.Now()
	for c.frames == 0 || int(c.captured.Load()) < c.frames {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		img, release, err := c.reader.Read()
		if err != nil {
			return fmt.Errorf("read camera frame: %w", err)
		}
		ts := time.Since(start)

		h, ok := c.pool.TryGet()
		if !ok {
			release()
			c.skipped.Add(1)
			continue
		}
		err = imgconv.ToI420(img, h.Bytes(), c.info)
		release()
		if err != nil {
			c.pool.Put(h)
			c.logger.Warn("Frame conversion failed", recorderlog.Error(err))
			continue
		}

		f := buffer.RawFrame{
			Handle:          h,
			Size:            c.info.FrameSize(),
			Info:            c.info,
			TimestampMicros: ts.Microseconds(),
			Metadata: metadata.NewRecord(
				metadata.Int64("SensorTimestamp", ts.Nanoseconds()),
				metadata.Int64("FrameSequence", int64(c.seq)),
				metadata.Size("ImageSize", c.info.Width, c.info.Height),
			),
		}
		c.seq++

		ok, err = c.submit(sub, f)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// Close stops the track, then releases the pool.
func (c *Camera) Close() error {
	if err := c.track.Close(); err != nil {
		c.logger.Warn("Failed to stop camera track", recorderlog.Error(err))
	}
	return c.base.Close()
}
