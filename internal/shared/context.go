package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated caller identity in context.
// The identity is established upstream; this service only propagates it.
func ContextWithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the caller identity from context.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}
