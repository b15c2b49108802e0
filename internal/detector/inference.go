package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/config"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/metrics"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/tracing"
)

const detectPath = "/v1/detect"

// Detection is one bounding box reported by the model
type Detection struct {
	ClassID    int
	Class      string
	Confidence float64
	Box        image.Rectangle
}

// Detector runs object detection on a single frame
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}

// HTTPDetector calls an external inference server.
// The frame is posted as a JPEG body and boxes come back in frame pixels.
type HTTPDetector struct {
	client     *resty.Client
	maxRetries uint64
	backoff    time.Duration
}

type detectResponse struct {
	Detections []wireDetection `json:"detections"`
}

type wireDetection struct {
	ClassID    int        `json:"class_id"`
	Class      string     `json:"class,omitempty"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"` // x1, y1, x2, y2
}

// NewHTTPDetector creates an inference client from detector settings
func NewHTTPDetector(cfg config.DetectorConfig) *HTTPDetector {
	client := resty.New().
		SetBaseURL(cfg.ModelURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &HTTPDetector{
		client:     client,
		maxRetries: cfg.MaxRetries,
		backoff:    200 * time.Millisecond,
	}
}

// Detect posts the frame to the inference server. Transport errors, 429 and
// 5xx responses are retried with exponential backoff.
func (d *HTTPDetector) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	span, ctx := tracing.StartSpan(ctx, "detector.inference")
	defer tracing.FinishSpan(span)

	var body bytes.Buffer
	if err := jpeg.Encode(&body, frame, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	start := time.Now()
	var result detectResponse
	backoff := retry.WithMaxRetries(d.maxRetries, retry.NewExponential(d.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result = detectResponse{}
		resp, err := d.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "image/jpeg").
			SetBody(body.Bytes()).
			SetResult(&result).
			Post(detectPath)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("inference request failed: %w", err))
		}
		status := resp.StatusCode()
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("inference server returned %d", status))
		}
		if resp.IsError() {
			return fmt.Errorf("inference server returned %d: %s", status, resp.String())
		}
		return nil
	})
	if err != nil {
		tracing.LogError(span, err)
		metrics.RecordError("detector", "inference")
		return nil, err
	}
	metrics.RecordInference(time.Since(start).Seconds())
	tracing.SetTag(span, "detections", len(result.Detections))

	detections := make([]Detection, 0, len(result.Detections))
	for _, wd := range result.Detections {
		detections = append(detections, Detection{
			ClassID:    wd.ClassID,
			Class:      wd.Class,
			Confidence: wd.Confidence,
			Box: image.Rect(
				int(wd.Box[0]), int(wd.Box[1]),
				int(wd.Box[2]), int(wd.Box[3]),
			),
		})
	}
	return detections, nil
}
