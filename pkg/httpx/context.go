package httpx

import (
	"context"

	"github.com/aussiebroadwan/llmgate/pkg/sessionx"
)

type ctxKey string

const ctxKeySession ctxKey = "session"

// SessionFromCtx returns the verified session injected by RequireSession,
// or false when the request carried none.
func SessionFromCtx(ctx context.Context) (sessionx.Session, bool) {
	s, ok := ctx.Value(ctxKeySession).(sessionx.Session)
	return s, ok
}

func contextWithSession(ctx context.Context, s sessionx.Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}
