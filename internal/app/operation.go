package app

import (
	"context"
	"os"
	"os/user"
	"runtime"

	"github.com/google/uuid"

	"cav-go/internal/cav"
)

// Session identifies one CLI invocation. Every audit event the invocation
// records carries its actor and session ID.
type Session struct {
	ID        string
	Operation string
	Actor     cav.Actor
}

// NewSession creates a session for operation. The actor comes from
// CAV_USER_ID, CAV_USER_NAME and CAV_USER_ROLE, falling back to the OS user
// with the "operator" role.
func NewSession(operation string) *Session {
	actor := cav.Actor{
		UserID:   os.Getenv("CAV_USER_ID"),
		UserName: os.Getenv("CAV_USER_NAME"),
		UserRole: os.Getenv("CAV_USER_ROLE"),
	}
	if actor.UserID == "" {
		if u, err := user.Current(); err == nil {
			actor.UserID = u.Username
			if actor.UserName == "" {
				actor.UserName = u.Name
			}
		}
	}
	if actor.UserName == "" {
		actor.UserName = actor.UserID
	}
	if actor.UserRole == "" {
		actor.UserRole = "operator"
	}
	return &Session{ID: uuid.NewString(), Operation: operation, Actor: actor}
}

// Context returns ctx carrying the session's actor and a CLI event context.
func (s *Session) Context(ctx context.Context) context.Context {
	if s.Actor.UserID != "" {
		ctx = cav.WithActor(ctx, s.Actor, s.ID)
	}
	return cav.WithEventContext(ctx, cav.EventContext{
		URL:      "cli:" + s.Operation,
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Locale:   os.Getenv("LANG"),
	})
}
