package apperr

import (
	"errors"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Envelope is the uniform JSON error body.
type Envelope struct {
	Error      string         `json:"error"`
	Code       string         `json:"code"`
	StatusCode int            `json:"statusCode"`
	Timestamp  string         `json:"timestamp"`
	RequestID  string         `json:"requestId"`
	Details    map[string]any `json:"details,omitempty"`
}

// Responder converts any error into the transport representation: a JSON
// envelope, or a redirect with the same fields as query parameters for flows
// that answer the browser. Each failure gets a fresh request id so operators
// can correlate the user-visible error with logs.
type Responder struct {
	logger     *zap.Logger
	production bool
}

// NewResponder wires the converter. In production no details are ever
// included in responses, sanitized or not.
func NewResponder(logger *zap.Logger, production bool) *Responder {
	if logger == nil {
		logger = zap.L()
	}
	return &Responder{logger: logger, production: production}
}

// Envelope builds the uniform body for err and logs it. Typed errors log at
// Warn; anything unexpected logs at Error and maps to a 500.
func (r *Responder) Envelope(err error) Envelope {
	requestID := uuid.NewString()

	var typed *Error
	if errors.As(err, &typed) {
		env := Envelope{
			Error:      typed.Message,
			Code:       typed.Kind.Code(),
			StatusCode: typed.Kind.Status(),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			RequestID:  requestID,
		}
		if !r.production {
			env.Details = Sanitize(typed.Details)
		}
		r.logger.Warn("request failed",
			zap.String("request_id", requestID),
			zap.String("code", env.Code),
			zap.Int("status", env.StatusCode),
			zap.Error(typed),
		)
		return env
	}

	r.logger.Error("unexpected error",
		zap.String("request_id", requestID),
		zap.Error(err),
	)
	return Envelope{
		Error:      "Internal server error",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		RequestID:  requestID,
	}
}

// JSON writes the envelope for err to the response.
func (r *Responder) JSON(c *gin.Context, err error) {
	env := r.Envelope(err)
	c.AbortWithStatusJSON(env.StatusCode, env)
}

// Redirect sends the browser back to target with the envelope fields encoded
// as query parameters. Used by the OAuth callback, which must never answer a
// redirect flow with a bare 5xx page.
func (r *Responder) Redirect(c *gin.Context, target string, err error) {
	env := r.Envelope(err)

	u, parseErr := url.Parse(target)
	if parseErr != nil {
		c.AbortWithStatusJSON(env.StatusCode, env)
		return
	}
	q := u.Query()
	q.Set("error", "true")
	q.Set("code", env.Code)
	q.Set("message", env.Error)
	q.Set("requestId", env.RequestID)
	u.RawQuery = q.Encode()

	c.Redirect(302, u.String())
	c.Abort()
}
