package denoise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"calmwave-audio-service/internal/domain/ports/adapter"
)

var _ adapter.DenoiseAdapter = (*HTTPClient)(nil)

// HTTPClient uploads canonical WAVs to the external denoise service. The
// acknowledgement is synchronous; the denoised audio itself arrives later on
// the callback endpoint. Denoising is compute-heavy, so the timeout here is
// minutes, not the seconds of an ordinary request.
type HTTPClient struct {
	endpoint  string
	intensity float64
	client    *http.Client
	log       *zerolog.Logger
}

func NewHTTPClient(endpoint string, intensity float64, timeout time.Duration, logger *zerolog.Logger) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, errors.New("denoise endpoint empty")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid denoise endpoint: %w", err)
	}
	return &HTTPClient{
		endpoint:  endpoint,
		intensity: intensity,
		client:    &http.Client{Timeout: timeout},
		log:       logger,
	}, nil
}

// ack is the structured acknowledgement body the service must return on 2xx.
type ack struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Dispatch sends the WAV as a multipart upload and classifies the outcome.
// It never returns an error: every result maps onto a DispatchOutcome the
// caller records on the submission.
func (c *HTTPClient) Dispatch(ctx context.Context, wavPath, uploadID, filename string) adapter.DispatchResult {
	body, contentType, err := c.buildMultipart(wavPath)
	if err != nil {
		return adapter.DispatchResult{
			Outcome: adapter.DispatchTransportFailure,
			Message: "prepare upload: " + err.Error(),
		}
	}

	// The service takes the correlation parameters in the query string.
	u, _ := url.Parse(c.endpoint)
	q := u.Query()
	q.Set("upload_id", uploadID)
	q.Set("filename", filename)
	q.Set("intensity", strconv.FormatFloat(c.intensity, 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return adapter.DispatchResult{
			Outcome: adapter.DispatchTransportFailure,
			Message: "build request: " + err.Error(),
		}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return adapter.DispatchResult{
				Outcome: adapter.DispatchTimeout,
				Message: "denoise service did not answer within the deadline",
			}
		}
		return adapter.DispatchResult{
			Outcome: adapter.DispatchTransportFailure,
			Message: "send to denoise service: " + err.Error(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return adapter.DispatchResult{
			Outcome: adapter.DispatchTransportFailure,
			Message: fmt.Sprintf("denoise service returned HTTP %d: %s", resp.StatusCode, snippet),
		}
	}

	var a ack
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return adapter.DispatchResult{
			Outcome: adapter.DispatchMalformedResponse,
			Message: "unparseable acknowledgement: " + err.Error(),
		}
	}
	if a.Status != "success" {
		return adapter.DispatchResult{
			Outcome: adapter.DispatchMalformedResponse,
			Message: fmt.Sprintf("denoise service refused the upload: status=%q message=%q", a.Status, a.Message),
		}
	}
	if a.Path == "" {
		c.log.Warn().Str("upload_id", uploadID).Msg("denoise service accepted without a remote path")
	}
	return adapter.DispatchResult{
		Outcome:    adapter.DispatchAccepted,
		Message:    "audio accepted for denoising, awaiting callback",
		RemotePath: a.Path,
	}
}

func (c *HTTPClient) buildMultipart(wavPath string) (io.Reader, string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio_file", filepath.Base(wavPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
