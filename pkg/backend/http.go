package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/grubvoice/station-go/pkg/audio"
)

// HTTPClient talks to the ordering backend over its REST surface:
//
//	POST /api/ai/create-session
//	POST /api/ai/process-audio
//	POST /api/sessions/next-car
//	GET  /api/sessions/current-order
//
// Per-call deadlines come from the caller's context; the embedded http.Client
// carries no timeout of its own so the pipeline's bound is the only one.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	BaseURL string

	// Client overrides the HTTP client; defaults to one without a timeout.
	Client *http.Client
}

// NewHTTPClient creates a backend client.
func NewHTTPClient(cfg HTTPConfig, logger *slog.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		logger:  logger,
	}, nil
}

type createSessionResponse struct {
	SessionID        string `json:"session_id"`
	GreetingAudioURL string `json:"greeting_audio_url"`
}

// CreateSession implements Client.
func (c *HTTPClient) CreateSession(ctx context.Context, restaurantID int) (SessionGrant, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	form.WriteField("restaurant_id", strconv.Itoa(restaurantID))
	form.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ai/create-session", body)
	if err != nil {
		return SessionGrant{}, fmt.Errorf("%w: %v", ErrSessionStart, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var out createSessionResponse
	if err := c.do(req, &out); err != nil {
		return SessionGrant{}, fmt.Errorf("%w: %v", ErrSessionStart, err)
	}
	if out.SessionID == "" {
		return SessionGrant{}, fmt.Errorf("%w: empty session id", ErrSessionStart)
	}

	c.logger.Info("Session created",
		slog.String("session_id", out.SessionID),
		slog.Int("restaurant_id", restaurantID))

	return SessionGrant{
		SessionID:        out.SessionID,
		GreetingAudioURL: out.GreetingAudioURL,
	}, nil
}

// ClearSession implements Client.
func (c *HTTPClient) ClearSession(ctx context.Context, sessionID string) error {
	payload, _ := json.Marshal(map[string]string{"session_id": sessionID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sessions/next-car", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionClear, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionClear, err)
	}

	c.logger.Info("Session cleared", slog.String("session_id", sessionID))
	return nil
}

type processAudioResponse struct {
	Success           bool   `json:"success"`
	SessionID         string `json:"session_id"`
	AudioURL          string `json:"audio_url"`
	ResponseText      string `json:"response_text"`
	OrderStateChanged bool   `json:"order_state_changed"`
	Metadata          struct {
		ProcessingTime float64  `json:"processing_time"`
		Cached         bool     `json:"cached"`
		Errors         []string `json:"errors"`
	} `json:"metadata"`
}

// ProcessUtterance implements Client. The clip is uploaded as a multipart
// form with its session and restaurant identity; the caller's context bounds
// the whole round-trip.
func (c *HTTPClient) ProcessUtterance(ctx context.Context, clip *audio.Clip, sessionID string, restaurantID int, language string) (UtteranceResult, error) {
	if clip.Empty() {
		return UtteranceResult{}, fmt.Errorf("%w: empty clip", ErrProcessing)
	}
	if language == "" {
		language = "en"
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="audio_file"; filename="utterance.wav"`)
	header.Set("Content-Type", clip.MIMEType)
	part, err := form.CreatePart(header)
	if err != nil {
		return UtteranceResult{}, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return UtteranceResult{}, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	form.WriteField("session_id", sessionID)
	form.WriteField("restaurant_id", strconv.Itoa(restaurantID))
	form.WriteField("language", language)
	form.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ai/process-audio", body)
	if err != nil {
		return UtteranceResult{}, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	started := time.Now()
	var out processAudioResponse
	if err := c.do(req, &out); err != nil {
		return UtteranceResult{}, fmt.Errorf("%w: %v", ErrProcessing, err)
	}

	c.logger.Info("Utterance processed",
		slog.String("session_id", sessionID),
		slog.Bool("success", out.Success),
		slog.Bool("order_changed", out.OrderStateChanged),
		slog.Duration("round_trip", time.Since(started)))

	result := UtteranceResult{
		Success:        out.Success,
		ResponseText:   out.ResponseText,
		AudioURL:       out.AudioURL,
		OrderChanged:   out.OrderStateChanged,
		Errors:         out.Metadata.Errors,
		ProcessingTime: time.Duration(out.Metadata.ProcessingTime * float64(time.Second)),
	}
	if !out.Success {
		// The backend answered but could not process; same contract as a
		// transport failure from the pipeline's point of view.
		return result, fmt.Errorf("%w: backend reported failure", ErrProcessing)
	}
	return result, nil
}

type currentOrderResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Order *OrderView `json:"order"`
	} `json:"data"`
}

// FetchCurrentOrder implements Client.
func (c *HTTPClient) FetchCurrentOrder(ctx context.Context, sessionID string) (OrderView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sessions/current-order", nil)
	if err != nil {
		return OrderView{}, err
	}
	q := req.URL.Query()
	q.Set("session_id", sessionID)
	req.URL.RawQuery = q.Encode()

	var out currentOrderResponse
	if err := c.do(req, &out); err != nil {
		return OrderView{}, err
	}
	if out.Data.Order == nil {
		return OrderView{}, nil
	}
	return *out.Data.Order, nil
}

// do executes a request and decodes a JSON body into out when non-nil.
func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(detail))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
