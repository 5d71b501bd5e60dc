package identity

import (
	stderrors "errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
)

// HTTPAuthenticator is the surface the controller needs from the route
// authenticator.
type HTTPAuthenticator interface {
	Login(ctx router.Context, payload LoginPayload) (*SessionObject, error)
	ExchangeProvider(ctx router.Context, assertion ProviderAssertion) (*SessionObject, error)
	Logout(ctx router.Context)
	ProtectedRoute(requirement Requirement, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

// RegisterAuthRoutes mounts the JSON auth endpoints on the given router.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.login.post")

	app.Post(controller.Routes.ProviderExchange, controller.ProviderExchangePost).
		SetName("auth.provider.post")

	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("auth.logout.get")

	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("auth.register.post")

	app.Post(controller.Routes.OTPRequest, controller.ChallengeRequestPost).
		SetName("otp.request.post")

	app.Post(controller.Routes.OTPVerify, controller.ChallengeVerifyPost).
		SetName("otp.verify.post")

	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).
		SetName("pwd-reset.post")

	app.Post(controller.Routes.PasswordResetFinalize, controller.PasswordResetExecute).
		SetName("pwd-reset-do.post")
}

type AuthControllerRoutes struct {
	Login                 string
	ProviderExchange      string
	Logout                string
	Register              string
	OTPRequest            string
	OTPVerify             string
	PasswordReset         string
	PasswordResetFinalize string
}

type AuthController struct {
	Debug      bool
	Logger     Logger
	Repo       RepositoryManager
	Routes     *AuthControllerRoutes
	Auther     HTTPAuthenticator
	Challenges *ChallengeMachine
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:                 "/auth/login",
			ProviderExchange:      "/auth/google",
			Logout:                "/auth/logout",
			Register:              "/auth/register",
			OTPRequest:            "/otp/request",
			OTPVerify:             "/otp/verify",
			PasswordReset:         "/auth/password-reset",
			PasswordResetFinalize: "/auth/password-reset/finalize",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	if c.Challenges == nil {
		panic("Missing ChallengeMachine in auth controller...")
	}

	return c
}

// WithControllerRepo sets the repository manager.
func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

// WithControllerAuther sets the HTTP authenticator.
func WithControllerAuther(auther HTTPAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

// WithControllerChallenges sets the challenge machine.
func WithControllerChallenges(machine *ChallengeMachine) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Challenges = machine
		return c
	}
}

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// LoginRequest payload
type LoginRequest struct {
	Email      string `form:"email" json:"email"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetEmail returns the account email
func (r LoginRequest) GetEmail() string {
	return r.Email
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports whether the caller asked to stay signed in
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse login payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidation(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	session, err := a.Auther.Login(ctx, payload)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"session": session,
	})
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// ProviderExchangeRequest carries a verified provider assertion.
type ProviderExchangeRequest struct {
	Assertion ProviderAssertion `json:"assertion"`
}

// Validate will run validation rules
func (r ProviderExchangeRequest) Validate() error {
	return validation.ValidateStruct(&r.Assertion,
		validation.Field(&r.Assertion.Provider, validation.Required),
		validation.Field(&r.Assertion.SubjectID, validation.Required),
		validation.Field(&r.Assertion.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) ProviderExchangePost(ctx router.Context) error {
	payload := new(ProviderExchangeRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse provider payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidation(ctx, err)
	}

	session, err := a.Auther.ExchangeProvider(ctx, payload.Assertion)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"session": session,
	})
}

// RegistrationCreatePayload is the registration payload
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Locale          string `form:"locale" json:"locale"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload: %v", err)
		return a.renderError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse registration payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload: %v", err)
		return a.renderValidation(ctx, err)
	}

	req := RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		Phone:     payload.Phone,
		Locale:    payload.Locale,
		Password:  payload.Password,
	}

	registerUser := NewRegisterUserHandler(a.Repo, a.Challenges).WithLogger(a.Logger)
	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: %v", err)
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"success": true,
	})
}

// ChallengeRequestPayload asks for a fresh verification code.
type ChallengeRequestPayload struct {
	Email   string `form:"email" json:"email"`
	Purpose string `form:"purpose" json:"purpose"`
}

// Validate will validate the payload
func (r ChallengeRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(
			&r.Purpose,
			validation.Required,
			validation.In(PurposeRegistration, PurposePasswordReset),
		),
	)
}

func (a *AuthController) ChallengeRequestPost(ctx router.Context) error {
	payload := new(ChallengeRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse challenge payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidation(ctx, err)
	}

	challenge, err := a.Challenges.Request(ctx.Context(), payload.Email, payload.Purpose)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"expires_at": challenge.ExpiresAt,
	})
}

// ChallengeVerifyPayload submits a code for verification.
type ChallengeVerifyPayload struct {
	Email   string `form:"email" json:"email"`
	Purpose string `form:"purpose" json:"purpose"`
	Code    string `form:"code" json:"code"`
}

// Validate will validate the payload
func (r ChallengeVerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(
			&r.Purpose,
			validation.Required,
			validation.In(PurposeRegistration, PurposePasswordReset),
		),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

func (a *AuthController) ChallengeVerifyPost(ctx router.Context) error {
	payload := new(ChallengeVerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse verify payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidation(ctx, err)
	}

	if _, err := a.Challenges.Verify(ctx.Context(), payload.Email, payload.Purpose, payload.Code); err != nil {
		return a.renderError(ctx, err)
	}

	// A verified registration code activates the account.
	if payload.Purpose == PurposeRegistration {
		if err := a.Repo.Users().MarkVerified(ctx.Context(), payload.Email); err != nil && !repository.IsRecordNotFound(err) {
			a.Logger.Error("mark account verified: %v", err)
			return a.renderError(ctx, err)
		}
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"verified": true,
	})
}

// PasswordResetRequestPayload starts a reset flow
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset parse payload: %v", err)
		return a.renderError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse reset payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset validate payload: %v", err)
		return a.renderValidation(ctx, err)
	}

	initPwdReset := NewInitializePasswordResetHandler(a.Repo, a.Challenges).WithLogger(a.Logger)

	if err := initPwdReset.Execute(ctx.Context(), InitializePasswordResetMessage{Email: payload.Email}); err != nil {
		a.Logger.Error("password reset init error: %v", err)
		return a.renderError(ctx, err)
	}

	// Same response for known and unknown emails.
	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// PasswordResetVerifyPayload finalizes a reset flow
type PasswordResetVerifyPayload struct {
	Email           string `form:"email" json:"email"`
	Code            string `form:"code" json:"code"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetVerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(10, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PasswordResetExecute(ctx router.Context) error {
	payload := new(PasswordResetVerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset parse payload: %v", err)
		return a.renderError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse reset payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset validate payload: %v", err)
		return a.renderValidation(ctx, err)
	}

	finalizePwdReset := NewFinalizePasswordResetHandler(a.Repo, a.Challenges).WithLogger(a.Logger)

	input := FinalizePasswordResetMessage{
		Email:    payload.Email,
		Code:     payload.Code,
		Password: payload.Password,
	}

	if err := finalizePwdReset.Execute(ctx.Context(), input); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (a *AuthController) renderValidation(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"validation": FormatValidationErrorToMap(err),
	})
}

func (a *AuthController) renderError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = router.StatusInternalServerError
	}

	return ctx.JSON(status, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
			"category":  richErr.Category,
		},
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors to a field map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if stderrors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return stderrors.New("values must match")
		}
		return nil
	}
}
