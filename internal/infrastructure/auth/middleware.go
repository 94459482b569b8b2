package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/honeynil/LandEscrowService/internal/infrastructure/redis"
	"github.com/honeynil/LandEscrowService/internal/models"
)

type contextKey struct{}

func TokenKey(userID string) string {
	return fmt.Sprintf("user:%s:token", userID)
}

// AuthMiddleware authenticates bearer tokens. A token is accepted only while it is the
// one stored for the user in Redis, so logging out elsewhere revokes it here.
func AuthMiddleware(redisClient redis.RedisClient, jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "authorization header missing")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "invalid authorization header")
				return
			}

			tokenStr := parts[1]
			claims, err := ParseToken(jwtSecret, tokenStr)
			if err != nil {
				slog.Debug("token rejected", "error", err)
				unauthorized(w, "invalid token")
				return
			}
			if claims.UserID == models.SystemUserID {
				slog.Warn("token for reserved user id rejected", "user_id", claims.UserID)
				unauthorized(w, "invalid token")
				return
			}

			storedToken, err := redisClient.Get(r.Context(), TokenKey(claims.UserID))
			if err != nil || storedToken != tokenStr {
				slog.Error("invalid or revoked token", "user_id", claims.UserID, "error", err)
				unauthorized(w, "invalid or revoked token")
				return
			}

			actor := models.Actor{UserID: claims.UserID, Admin: claims.IsAdmin()}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(models.Actor)
	return actor, ok && actor.UserID != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
