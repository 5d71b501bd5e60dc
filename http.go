package identity

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	"github.com/marketbase/go-identity/middleware/sessionware"
)

// LoginPayload is the surface the HTTP login handler needs from a request body.
type LoginPayload interface {
	GetEmail() string
	GetPassword() string
	GetExtendedSession() bool
}

// RouteAuthenticator wires the Authenticator into HTTP routes: cookie
// handling, protected route middleware, and auth error rendering.
type RouteAuthenticator struct {
	auth                   Authenticator
	cfg                    Config
	cookieDuration         time.Duration
	extendedCookieDuration time.Duration
	Logger                 Logger
	AuthErrorHandler       func(c router.Context, err error) error
	ErrorHandler           func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	cookieDuration := 24 * time.Hour
	if cfg.GetSessionTTL() > 0 {
		cookieDuration = cfg.GetSessionTTL()
	}

	a := &RouteAuthenticator{
		cfg:                    cfg,
		auth:                   auther,
		Logger:                 defLogger{},
		cookieDuration:         cookieDuration,
		extendedCookieDuration: cookieDuration * 7,
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

func (a RouteAuthenticator) GetExtendedCookieDuration() time.Duration {
	return a.extendedCookieDuration
}

// ProtectedRoute guards a route with the given requirement. Session claims
// are validated from the configured token lookup and the requirement is
// enforced before the handler runs.
func (a *RouteAuthenticator) ProtectedRoute(requirement Requirement, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return sessionware.New(sessionware.Config{
			ErrorHandler: errorHandler,
			SigningKey: sessionware.SigningKey{
				Key:    []byte(a.cfg.GetSigningKey()),
				JWTAlg: a.cfg.GetSigningMethod(),
			},
			AuthScheme:     a.cfg.GetAuthScheme(),
			ContextKey:     a.cfg.GetContextKey(),
			TokenLookup:    a.cfg.GetTokenLookup(),
			Requirement:    requirement,
			TokenValidator: validatorBridge{a.auth},
		})(hf)
	}
}

// Login authenticates the payload and, on success, drops the session token
// into the configured cookie.
func (a *RouteAuthenticator) Login(ctx router.Context, payload LoginPayload) (*SessionObject, error) {
	session, token, err := a.auth.Login(ctx.Context(), payload.GetEmail(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return nil, err
	}

	duration := a.cookieDuration
	if payload.GetExtendedSession() {
		duration = a.extendedCookieDuration
	}

	a.setCookieToken(ctx, token, duration)
	return session, nil
}

// ExchangeProvider runs a provider assertion through the bridge and sets the
// session cookie on success.
func (a *RouteAuthenticator) ExchangeProvider(ctx router.Context, assertion ProviderAssertion) (*SessionObject, error) {
	session, token, err := a.auth.ExchangeProvider(ctx.Context(), assertion)
	if err != nil {
		a.Logger.Error("ExchangeProvider error: %s", err)
		return nil, err
	}

	a.setCookieToken(ctx, token, a.cookieDuration)
	return session, nil
}

func (a *RouteAuthenticator) Logout(ctx router.Context) {
	a.cookieDel(ctx, a.cfg.GetContextKey())
}

func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsSessionExpiredError(err) {
			richErr = ErrSessionExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding: %s", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		return def[0]
	}
	a.cookieDel(ctx, rejectedRoute)
	return r
}

func (a *RouteAuthenticator) GetRedirectOrDefault(ctx router.Context) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	refererHeader := string(ctx.Referer())

	r := ctx.Cookies(rejectedRoute, refererHeader)
	if r == "" {
		r = a.cfg.GetDashboardRoute()
	}
	a.cookieDel(ctx, rejectedRoute)
	return r
}

func (a *RouteAuthenticator) SetRedirect(ctx router.Context) {
	rejectedRoute := a.cfg.GetRejectedRouteKey()

	a.Logger.Info("Setting redirect cookie %s path %s", rejectedRoute, ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) setCookieToken(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(a.cfg.GetLoginRoute(), statusCode)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.JSON(richErr.Code, map[string]any{
			"error": richErr,
		})
	}
}

// validatorBridge adapts the Authenticator token path to the middleware's
// validator interface.
type validatorBridge struct {
	auth Authenticator
}

func (v validatorBridge) Validate(tokenString string) (sessionware.AuthClaims, error) {
	session, err := v.auth.SessionFromToken(tokenString)
	if err != nil {
		return nil, err
	}
	return sessionClaimsView{session}, nil
}

// sessionClaimsView exposes a SessionObject through the middleware claims
// interface.
type sessionClaimsView struct {
	session *SessionObject
}

func (s sessionClaimsView) Subject() string     { return s.session.SubjectID }
func (s sessionClaimsView) UserID() string      { return s.session.SubjectID }
func (s sessionClaimsView) Email() string       { return s.session.UserEmail }
func (s sessionClaimsView) DisplayName() string { return s.session.DisplayName }
func (s sessionClaimsView) Role() string        { return s.session.Role }
func (s sessionClaimsView) Provider() string    { return s.session.Provider }
func (s sessionClaimsView) Avatar() string      { return s.session.AvatarURL }
func (s sessionClaimsView) HasRole(role string) bool {
	return s.session.HasRole(role)
}
func (s sessionClaimsView) IsAtLeast(minRole string) bool {
	return s.session.IsAtLeast(minRole)
}
