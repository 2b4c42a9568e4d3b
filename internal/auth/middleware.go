package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Header names the gateway uses to forward the validated actor.
const (
	HeaderActorID     = "X-Actor-ID"
	HeaderActorRole   = "X-Actor-Role"
	HeaderActorBranch = "X-Actor-Branch"
)

// Middleware authenticates the gateway and loads the actor into context.
type Middleware struct {
	Verifier *Verifier
	Logger   *slog.Logger
}

// Authenticate verifies the bearer API key and parses actor headers. Non-admin
// actors must carry a branch affinity.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := bearerToken(r.Header.Get("Authorization"))
		if err := m.Verifier.Verify(key); err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid gateway credential")
			return
		}

		actor, ok := parseActor(r)
		if !ok {
			if m.Logger != nil {
				m.Logger.Warn("malformed actor headers", slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing or malformed actor identity")
			return
		}

		ctx := shared.ContextWithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only the listed roles through.
func RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	allowed := make(map[shared.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if _, ok := allowed[actor.Role]; !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "role not permitted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseActor(r *http.Request) (shared.Actor, bool) {
	id, err := strconv.ParseInt(r.Header.Get(HeaderActorID), 10, 64)
	if err != nil || id <= 0 {
		return shared.Actor{}, false
	}
	role := shared.Role(strings.TrimSpace(r.Header.Get(HeaderActorRole)))
	if !shared.ValidRole(role) {
		return shared.Actor{}, false
	}
	actor := shared.Actor{ID: id, Role: role}
	if raw := r.Header.Get(HeaderActorBranch); raw != "" {
		branchID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || branchID <= 0 {
			return shared.Actor{}, false
		}
		actor.BranchID = branchID
	}
	if role != shared.RoleAdmin && actor.BranchID == 0 {
		return shared.Actor{}, false
	}
	return actor, true
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
