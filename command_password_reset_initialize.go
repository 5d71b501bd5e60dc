package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordResetMessage struct {
	Email string `json:"email" example:"user@example.com" doc:"Account email"`
}

func (e InitializePasswordResetMessage) Type() string { return "user.password_reset.initialize" }

// InitializePasswordResetHandler starts a reset flow by sending a challenge
// code. It reports success for unknown emails too, so the endpoint cannot be
// used to enumerate which accounts exist.
type InitializePasswordResetHandler struct {
	repo       RepositoryManager
	challenges *ChallengeMachine
	logger     Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, challenges *ChallengeMachine) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:       repo,
		challenges: challenges,
		logger:     defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)

	if _, err := h.repo.Users().GetByEmail(ctx, email); err != nil {
		if goerrors.IsNotFound(err) {
			h.logger.Info("password reset requested for unknown email")
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not look up account for reset")
	}

	if _, err := h.challenges.Request(ctx, email, PurposePasswordReset); err != nil {
		return err
	}

	return nil
}
