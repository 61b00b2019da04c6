// Package auth holds the client credential and decides which screens are
// reachable. The token is persisted across restarts through a TokenStore.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
	"rollcall/internal/model"
)

// Credential is a token plus the actor it authenticates.
type Credential struct {
	Token string      `json:"-"`
	Actor model.Actor `json:"actor"`
}

// API is the subset of the attendance server the gate talks to.
type API interface {
	Login(ctx context.Context, email, secret string) (string, model.Actor, error)
	WhoAmI(ctx context.Context, token string) (model.Actor, error)
}

// TokenStore persists the opaque token. Load returns "" when nothing is
// stored.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

type loginInput struct {
	Email  string `validate:"required,email"`
	Secret string `validate:"required"`
}

// Gate owns the credential.
type Gate struct {
	api      API
	store    TokenStore
	clock    clock.Clock
	logger   *slog.Logger
	validate *validator.Validate

	mu   sync.RWMutex
	cred *Credential
}

// NewGate creates a gate with no credential. Call Restore to pick up a
// persisted token.
func NewGate(api API, store TokenStore, clk clock.Clock, logger *slog.Logger) *Gate {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		api:      api,
		store:    store,
		clock:    clk,
		logger:   logger,
		validate: validator.New(),
	}
}

// Login validates input locally, then authenticates against the server and
// persists the token. Invalid input never reaches the network.
func (g *Gate) Login(ctx context.Context, email, secret string) (Credential, error) {
	in := loginInput{Email: strings.TrimSpace(email), Secret: secret}
	if err := g.validate.Struct(in); err != nil {
		return Credential{}, apperr.Precondition("login", validationMessage(err))
	}

	token, actor, err := g.api.Login(ctx, in.Email, in.Secret)
	if err != nil {
		return Credential{}, err
	}
	cred := Credential{Token: token, Actor: actor}
	if err := g.store.Save(ctx, token); err != nil {
		g.logger.Warn("persist token failed", "error", err)
	}
	g.set(&cred)
	g.logger.Info("signed in", "user_id", actor.ID, "role", actor.Role)
	return cred, nil
}

// Restore loads a persisted token and validates it. It reports false with a
// nil error when there is nothing usable to restore; an expired or rejected
// token is cleared silently. A connection error keeps the token so the
// caller can retry.
func (g *Gate) Restore(ctx context.Context) (Credential, bool, error) {
	token, err := g.store.Load(ctx)
	if err != nil {
		g.logger.Warn("load token failed", "error", err)
		return Credential{}, false, nil
	}
	if token == "" {
		return Credential{}, false, nil
	}
	if Expired(token, g.clock.Now()) {
		g.logger.Info("stored token expired")
		g.clear(ctx)
		return Credential{}, false, nil
	}

	actor, err := g.api.WhoAmI(ctx, token)
	if err != nil {
		if apperr.IsRejected(err) {
			g.logger.Info("stored token rejected", "error", err)
			g.clear(ctx)
			return Credential{}, false, nil
		}
		return Credential{}, false, err
	}
	cred := Credential{Token: token, Actor: actor}
	g.set(&cred)
	return cred, true, nil
}

// Logout forgets the credential. It never fails.
func (g *Gate) Logout(ctx context.Context) {
	g.clear(ctx)
}

// Current returns the credential, if any.
func (g *Gate) Current() (Credential, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.cred == nil {
		return Credential{}, false
	}
	return *g.cred, true
}

// Token returns the bearer token, or "" when signed out.
func (g *Gate) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.cred == nil {
		return ""
	}
	return g.cred.Token
}

// MarkFaceRegistered records that the server now holds the actor's face.
func (g *Gate) MarkFaceRegistered() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cred != nil {
		g.cred.Actor.HasFace = true
	}
}

func (g *Gate) set(cred *Credential) {
	g.mu.Lock()
	g.cred = cred
	g.mu.Unlock()
}

func (g *Gate) clear(ctx context.Context) {
	g.set(nil)
	if err := g.store.Clear(ctx); err != nil {
		g.logger.Warn("clear token failed", "error", err)
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "Email" && fe.Tag() == "required":
		return "email is required"
	case fe.Field() == "Email":
		return "email is not valid"
	case fe.Field() == "Secret":
		return "password is required"
	default:
		return fe.Error()
	}
}
