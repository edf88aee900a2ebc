package httpkit

import (
	"slices"

	"github.com/gin-gonic/gin"
)

// Identity is the authenticated collaborator calling a webhook
// (scraper, transport, reviewer tooling).
type Identity interface {
	// Subject returns the collaborator name from the token subject.
	Subject() string
	// Scopes returns the granted scopes.
	Scopes() []string
	// HasScope reports whether scope was granted.
	HasScope(scope string) bool
	// IsAuthenticated returns true if a valid service token was presented.
	IsAuthenticated() bool
}

type identity struct {
	subject       string
	scopes        []string
	authenticated bool
}

func (i *identity) Subject() string            { return i.subject }
func (i *identity) Scopes() []string           { return i.scopes }
func (i *identity) HasScope(scope string) bool { return slices.Contains(i.scopes, scope) }
func (i *identity) IsAuthenticated() bool      { return i.authenticated }

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if no service token was validated.
func GetIdentity(c *gin.Context) Identity {
	subject, ok := c.Get(ContextSubjectKey)
	if !ok {
		return &identity{}
	}
	name, _ := subject.(string)
	if name == "" {
		return &identity{}
	}

	var scopes []string
	if raw, ok := c.Get(ContextScopesKey); ok {
		scopes, _ = raw.([]string)
	}
	return &identity{subject: name, scopes: scopes, authenticated: true}
}
