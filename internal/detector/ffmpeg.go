package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

// ErrNoFPS is returned when a video has no usable frame rate
var ErrNoFPS = errors.New("could not retrieve FPS from video")

// FFmpeg wraps ffprobe and ffmpeg invocations
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// VideoMetadata holds video metadata extracted from ffprobe
type VideoMetadata struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}

// FormatInfo holds format information
type FormatInfo struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// StreamInfo holds stream information
type StreamInfo struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FrameRate    string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
}

// VideoInfo is the subset of probe output the detector needs
type VideoInfo struct {
	Format   string
	Codec    string
	Width    int
	Height   int
	FPS      float64
	Duration float64
	Frames   int64
}

// Metadata converts the probe result for storage on the job
func (v *VideoInfo) Metadata() models.Metadata {
	return models.Metadata{
		"format":   v.Format,
		"codec":    v.Codec,
		"width":    v.Width,
		"height":   v.Height,
		"fps":      v.FPS,
		"duration": v.Duration,
		"frames":   v.Frames,
	}
}

// ProbeVideo runs ffprobe on a file
func (f *FFmpeg) ProbeVideo(ctx context.Context, inputPath string) (*VideoMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(data []byte) (*VideoMetadata, error) {
	var metadata VideoMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &metadata, nil
}

// Probe extracts video stream information. A missing or non-positive
// frame rate yields ErrNoFPS.
func (f *FFmpeg) Probe(ctx context.Context, inputPath string) (*VideoInfo, error) {
	metadata, err := f.ProbeVideo(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	return videoInfoFromMetadata(metadata)
}

func videoInfoFromMetadata(metadata *VideoMetadata) (*VideoInfo, error) {
	info := &VideoInfo{Format: metadata.Format.FormatName}
	if duration, err := strconv.ParseFloat(metadata.Format.Duration, 64); err == nil {
		info.Duration = duration
	}

	found := false
	for _, stream := range metadata.Streams {
		if stream.CodecType != "video" {
			continue
		}
		found = true
		info.Codec = stream.CodecName
		info.Width = stream.Width
		info.Height = stream.Height
		info.FPS = parseFrameRate(stream.AvgFrameRate)
		if info.FPS <= 0 {
			info.FPS = parseFrameRate(stream.FrameRate)
		}
		if n, err := strconv.ParseInt(stream.NbFrames, 10, 64); err == nil {
			info.Frames = n
		}
		break
	}

	if !found || info.FPS <= 0 {
		return nil, ErrNoFPS
	}
	return info, nil
}

// parseFrameRate parses "num/den" or a plain number. Unparseable input yields 0.
func parseFrameRate(rate string) float64 {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return 0
	}
	parts := strings.Split(rate, "/")
	switch len(parts) {
	case 1:
		v, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0
		}
		return v
	case 2:
		num, err1 := strconv.ParseFloat(parts[0], 64)
		den, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil || den == 0 {
			return 0
		}
		return num / den
	}
	return 0
}

// OpenFrames starts ffmpeg decoding inputPath into raw RGB24 frames scaled
// to width x height. The caller must Close the returned source.
func (f *FFmpeg) OpenFrames(ctx context.Context, inputPath string, width, height int) (FrameSource, error) {
	ctx, cancel := context.WithCancel(ctx)

	args := []string{
		"-v", "error",
		"-i", inputPath,
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &ffmpegFrames{
		rawFrameReader: newRawFrameReader(stdout, width, height),
		cmd:            cmd,
		cancel:         cancel,
		stderr:         &stderr,
	}, nil
}

type ffmpegFrames struct {
	*rawFrameReader
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr *bytes.Buffer
	done   bool
}

// Next returns the next frame. A decoder failure surfaces once the pipe is drained.
func (f *ffmpegFrames) Next() (*image.RGBA, error) {
	frame, err := f.rawFrameReader.Next()
	if err == nil || f.done {
		return frame, err
	}
	f.done = true
	if waitErr := f.cmd.Wait(); waitErr != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", waitErr, f.stderr.String())
	}
	return nil, err
}

// Close stops ffmpeg if it is still running
func (f *ffmpegFrames) Close() error {
	f.cancel()
	if !f.done {
		f.done = true
		_ = f.cmd.Wait()
	}
	return nil
}
