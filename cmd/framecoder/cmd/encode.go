package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mikeyg42/framecoder/internal/recorder"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Capture frames and encode them until interrupted",
	Long: `Capture frames from the configured source and encode them.

Encoding stops after --frames frames, or on SIGINT/SIGTERM. Queued frames
are returned to the capture source without being encoded, the output and
metadata files are finalized, and the session is archived when enabled.`,
	Example: `  framecoder encode --codec mjpeg --frames 300 -o clip.mjpeg --metadata clip.json
  framecoder encode --codec vp8 --output-kind webm -o clip.webm
  framecoder encode --codec h264 --output-kind circular -o last.h264 --source camera`,
	RunE: runEncode,
}

func init() {
	f := encodeCmd.Flags()
	f.StringP("codec", "c", "yuv420", "codec: yuv420, mjpeg, vp8, h264")
	f.Int("width", 640, "frame width")
	f.Int("height", 480, "frame height")
	f.Float64("framerate", 30, "frames per second")
	f.Int("bitrate", 1_000_000, "target bitrate in bits per second")
	f.Int("keyframe-period", 30, "frames between keyframes")
	f.IntP("quality", "q", 0, "JPEG quality 1-100 (0 = backend default)")
	f.String("source", "testpattern", "frame source: testpattern, camera")
	f.String("device", "", "camera device id")
	f.Int("buffers", 6, "capture buffers")
	f.IntP("frames", "n", 0, "stop after this many frames (0 = until interrupted)")
	f.StringP("output", "o", "", "output path (- for stdout)")
	f.String("output-kind", "file", "output kind: file, circular, webm")
	f.String("timestamps", "", "write a timecode v2 file")
	f.Duration("segment", 0, "start a new output file at the first keyframe after this long")
	f.Int("circular-bytes", 4<<20, "circular output byte budget")
	f.String("metadata", "", "metadata output path (- for stdout)")
	f.String("metadata-format", "json", "metadata format: json, txt")
	f.Bool("archive", false, "upload session files to MinIO")
	f.Bool("catalog", false, "record the session in PostgreSQL")
	f.Bool("monitor", false, "log encoder and host stats periodically")

	for key, flag := range map[string]string{
		"codec.name":            "codec",
		"codec.bitrate":         "bitrate",
		"codec.keyframe_period": "keyframe-period",
		"codec.quality":         "quality",
		"video.width":           "width",
		"video.height":          "height",
		"video.framerate":       "framerate",
		"capture.source":        "source",
		"capture.device":        "device",
		"capture.buffers":       "buffers",
		"capture.frames":        "frames",
		"output.path":           "output",
		"output.kind":           "output-kind",
		"output.timestamps":     "timestamps",
		"output.segment":        "segment",
		"output.circular_bytes": "circular-bytes",
		"metadata.path":         "metadata",
		"metadata.format":       "metadata-format",
		"archive.enabled":       "archive",
		"catalog.enabled":       "catalog",
		"monitor.enabled":       "monitor",
	} {
		mustBindPFlag(key, f.Lookup(flag))
	}

	rootCmd.AddCommand(encodeCmd)
}

func runEncode(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := recorder.New(ctx, cfg)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}
