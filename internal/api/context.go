// ABOUTME: Request context key types and constants for the api package.
// ABOUTME: Used by middleware to inject auth state and by handlers to read it.
package api

type contextKey int

const (
	ctxUserID      contextKey = iota // uuid.UUID — authenticated user
	ctxTenantID                      // uuid.UUID — tenant from URL path param
	ctxMember                        // *store.Member — acting member row in this tenant
	ctxMemberLevel                   // int — acting member's hierarchy level
)
