package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/NickKasten/posture/internal/apperr"
	"github.com/NickKasten/posture/internal/config"
	"github.com/NickKasten/posture/internal/http/middleware"
	"github.com/NickKasten/posture/internal/oauth"
)

// ConnectHandler drives the platform authorization flow over HTTP: phase one
// redirects the browser to the provider with the signed session cookies set,
// phase two receives the provider redirect and completes the exchange.
type ConnectHandler struct {
	Flow      *oauth.Flow
	Responder *apperr.Responder
	cfg       config.Config
}

// NewConnectHandler creates the handler.
func NewConnectHandler(flow *oauth.Flow, responder *apperr.Responder, cfg config.Config) *ConnectHandler {
	return &ConnectHandler{Flow: flow, Responder: responder, cfg: cfg}
}

// Start begins authorization for the authenticated user.
func (h *ConnectHandler) Start(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		h.Responder.JSON(c, apperr.New(apperr.Authentication, "authentication required"))
		return
	}

	result, err := h.Flow.Start(c.Request.Context(), userID, c.Param("platform"))
	if err != nil {
		h.Responder.JSON(c, err)
		return
	}

	maxAge := int(oauth.CookieMaxAge.Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauth.StateCookieName, result.StateCookie, maxAge, "/", "", h.cfg.Production(), true)
	c.SetCookie(oauth.VerifierCookieName, result.VerifierCookie, maxAge, "/", "", h.cfg.Production(), true)

	c.Redirect(http.StatusFound, result.AuthorizationURL)
}

// Callback handles the provider redirect. All failures answer with a
// redirect back to the app carrying the error envelope as query parameters;
// the browser is mid-flow and a raw 5xx page would strand it.
func (h *ConnectHandler) Callback(c *gin.Context) {
	stateCookie, _ := c.Cookie(oauth.StateCookieName)
	verifierCookie, _ := c.Cookie(oauth.VerifierCookieName)

	result, err := h.Flow.HandleCallback(c.Request.Context(), oauth.CallbackInput{
		Platform:       c.Param("platform"),
		Code:           c.Query("code"),
		State:          c.Query("state"),
		ProviderError:  c.Query("error"),
		ProviderErrMsg: c.Query("error_description"),
		StateCookie:    stateCookie,
		VerifierCookie: verifierCookie,
	})
	if err != nil {
		h.Responder.Redirect(c, h.settingsURL(), err)
		return
	}

	h.clearCookies(c)

	target, _ := url.Parse(h.settingsURL())
	q := target.Query()
	q.Set("connected", result.Platform.String())
	q.Set("user", result.UserID)
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}

func (h *ConnectHandler) clearCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauth.StateCookieName, "", -1, "/", "", h.cfg.Production(), true)
	c.SetCookie(oauth.VerifierCookieName, "", -1, "/", "", h.cfg.Production(), true)
}

func (h *ConnectHandler) settingsURL() string {
	return h.cfg.AppBaseURL + "/settings/connections"
}
