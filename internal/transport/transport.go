// Package transport sends encoded payloads to the catalog API
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/conduit-lang/onpage/internal/payload"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the identifier of every exchange
const RequestIDHeader = "X-Request-ID"

// Transport delivers a request body to path and returns the raw response.
// A non-nil error means the exchange itself failed; HTTP error statuses are
// returned as a status code with a nil error.
type Transport interface {
	Send(ctx context.Context, method, path string, body *payload.Body) (int, []byte, error)
}

// Error is returned when a request could not be exchanged with the server
type Error struct {
	Method string
	Path   string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Method, e.Path, e.Err)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a timeout
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(e.Err, &te) && te.Timeout()
}

// HTTP is a Transport over net/http. Paths are resolved against BaseURL.
type HTTP struct {
	BaseURL string
	Client  *http.Client
	Logger  *zap.Logger
}

// NewHTTP creates an HTTP transport rooted at baseURL
func NewHTTP(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{
		BaseURL: strings.TrimRight(baseURL, "/") + "/",
		Client:  &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

// Send implements Transport
func (h *HTTP) Send(ctx context.Context, method, path string, body *payload.Body) (int, []byte, error) {
	url := h.BaseURL + strings.TrimLeft(path, "/")
	requestID := uuid.NewString()

	reader, contentType, err := h.encode(body)
	if err != nil {
		return 0, nil, &Error{Method: method, Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		// unblocks the multipart writer
		if c, ok := reader.(io.Closer); ok {
			c.Close()
		}
		return 0, nil, &Error{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := h.Client.Do(req)
	if err != nil {
		h.Logger.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return 0, nil, &Error{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &Error{Method: method, Path: path, Err: err}
	}

	h.Logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.String("format", formatOf(body).String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	return resp.StatusCode, data, nil
}

// encode returns the request body reader and content type. Multipart bodies
// are streamed through a pipe so uploads are never fully buffered.
func (h *HTTP) encode(body *payload.Body) (io.Reader, string, error) {
	if body == nil {
		return bytes.NewReader([]byte("{}")), "application/json", nil
	}

	switch body.Format {
	case payload.FormatJSON:
		return bytes.NewReader(body.JSON), "application/json", nil
	case payload.FormatMultipart:
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			err := payload.WriteParts(mw, body.Parts)
			if err == nil {
				err = mw.Close()
			}
			pw.CloseWithError(err)
		}()
		return pr, mw.FormDataContentType(), nil
	default:
		return nil, "", fmt.Errorf("unsupported body format %s", body.Format)
	}
}

func formatOf(body *payload.Body) payload.Format {
	if body == nil {
		return payload.FormatJSON
	}
	return body.Format
}
