package llm

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/capture"
	"github.com/m4xw311/playtest/errors"
	"go.uber.org/zap"
)

// HealthTimeout bounds the liveness probe made by Initialize.
const HealthTimeout = 5 * time.Second

// Bridge asks a companion process for decisions over HTTP.
type Bridge struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// NewBridge creates a Bridge for the server at endpoint, e.g.
// "http://127.0.0.1:8000". apiKey is forwarded with each request when set.
func NewBridge(endpoint, apiKey string, timeout time.Duration, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.Named("llm.bridge"),
	}
}

// Initialize probes GET /health. Anything but a 2xx answer is a provider
// error.
func (b *Bridge) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"/health", nil)
	if err != nil {
		return errors.Wrap(errors.KindProvider, err, "invalid bridge endpoint '%s'", b.endpoint)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindProvider, err, "bridge at '%s' is unreachable", b.endpoint)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.E(errors.KindProvider, "bridge health check failed with status %d", resp.StatusCode)
	}
	b.logger.Info("Bridge is healthy", zap.String("endpoint", b.endpoint))
	return nil
}

// RequestAction posts the frame and context to /ask and parses the answer.
func (b *Bridge) RequestAction(ctx context.Context, frame *capture.Frame, contextText string) (action.Action, error) {
	image, err := frame.JPEG(capture.RequestQuality)
	if err != nil {
		return action.Action{}, errors.Wrap(errors.KindProtocol, err, "could not encode capture")
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="screenshot"; filename="screen.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := form.CreatePart(header)
	if err != nil {
		return action.Action{}, errors.Wrap(errors.KindProtocol, err, "failed to build request")
	}
	part.Write(image)
	form.WriteField("context", contextText)
	if b.apiKey != "" {
		form.WriteField("api_key", b.apiKey)
	}
	if err := form.Close(); err != nil {
		return action.Action{}, errors.Wrap(errors.KindProtocol, err, "failed to build request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/ask", &body)
	if err != nil {
		return action.Action{}, errors.Wrap(errors.KindProtocol, err, "failed to build request")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	text, err := b.do(req)
	if err != nil {
		return action.Action{}, err
	}
	act, err := action.Parse(text)
	if err != nil {
		b.logger.Debug("Unparseable bridge response", zap.String("body", text))
		return action.Action{}, err
	}
	return act, nil
}

// Reset asks the bridge to forget its conversational memory.
func (b *Bridge) Reset(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/reset", nil)
	if err != nil {
		return errors.Wrap(errors.KindProtocol, err, "failed to build request")
	}
	_, err = b.do(req)
	return err
}

func (b *Bridge) do(req *http.Request) (string, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.KindNetwork, err, "%s %s failed", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(errors.KindNetwork, err, "failed to read %s response", req.URL.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.E(errors.KindProtocol, "%s returned status %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return string(data), nil
}
