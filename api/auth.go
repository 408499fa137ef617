package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/identity"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Caller is the resolved member acting on a request.
type Caller struct {
	MemberID uuid.UUID
	FamilyID uuid.UUID
}

type contextKey int

const callerKey contextKey = iota

// WithCaller returns ctx carrying caller.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext returns the caller set by the Authenticator.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey).(Caller)
	return caller, ok
}

// SubjectResolver maps an external subject to a member id.
// identity.Bindings satisfies it.
type SubjectResolver interface {
	Lookup(ctx context.Context, subject string) (uuid.UUID, error)
}

// Authenticator resolves the subject header set by the fronting authorizer
// to a Caller. It does not verify credentials itself.
type Authenticator struct {
	subjects SubjectResolver
	members  store.Reader
	header   string
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator reading the subject from header.
func NewAuthenticator(subjects SubjectResolver, members store.Reader, header string, logger *slog.Logger) *Authenticator {
	if header == "" {
		header = "X-Subject"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		subjects: subjects,
		members:  members,
		header:   header,
		logger:   logger,
	}
}

// Middleware resolves the subject header to a live member and stores it as
// the request's Caller. Unbound or deleted subjects get 403.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := strings.TrimSpace(r.Header.Get(a.header))
		if subject == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing subject")
			return
		}

		memberID, err := a.subjects.Lookup(r.Context(), subject)
		if errors.Is(err, identity.ErrNotBound) {
			writeError(w, http.StatusForbidden, "not_bound", "account is not linked to a member")
			return
		}
		if err != nil {
			a.logger.Error("subject lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}

		m, err := a.members.GetMember(r.Context(), memberID)
		if errors.Is(err, store.ErrNotFound) {
			// The member was deleted and the unbind has not caught up yet.
			writeError(w, http.StatusForbidden, "not_bound", "account is not linked to a member")
			return
		}
		if err != nil {
			a.logger.Error("caller member read failed", "member", memberID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}

		ctx := WithCaller(r.Context(), Caller{MemberID: m.ID, FamilyID: m.FamilyID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
