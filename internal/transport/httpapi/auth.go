package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Leganyst/clinic-scheduling/internal/service"
)

type contextKey string

const actorKey contextKey = "actor"

// Claims — полезная нагрузка токена: sub = id пользователя, role = роль.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type AuthOptions struct {
	// HMAC-ключ для HS256. Пустой — токены не принимаются.
	SigningKey []byte
	Issuer     string
	// Dev разрешает запросы без токена: актор берётся из заголовков
	// X-Actor-ID / X-Actor-Role, по умолчанию — администратор.
	Dev bool
}

// DevActorID — актор по умолчанию в режиме разработки.
var DevActorID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("clinic-dev-user"))

// Authenticate извлекает актора из Bearer-токена (или access_token в query
// для websocket) и кладёт его в контекст запроса.
func Authenticate(opts AuthOptions) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}

			var actor service.Actor
			switch {
			case tokenStr != "":
				actor, err = parseToken(tokenStr, opts)
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
			case opts.Dev:
				actor, err = devActor(c)
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
				}
			default:
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			c.Set(string(actorKey), actor)
			ctx := context.WithValue(c.Request().Context(), actorKey, actor)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return c.QueryParam("access_token"), nil
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return parts[1], nil
}

func parseToken(tokenStr string, opts AuthOptions) (service.Actor, error) {
	if len(opts.SigningKey) == 0 {
		return service.Actor{}, fmt.Errorf("token validation is not configured")
	}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return opts.SigningKey, nil
	}, parserOpts...)
	if err != nil || !token.Valid {
		return service.Actor{}, fmt.Errorf("parse token: %w", err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return service.Actor{}, fmt.Errorf("subject is not a uuid: %w", err)
	}
	role, err := service.ParseRole(claims.Role)
	if err != nil {
		return service.Actor{}, err
	}
	return service.Actor{ID: id, Role: role}, nil
}

func devActor(c echo.Context) (service.Actor, error) {
	actor := service.Actor{ID: DevActorID, Role: service.RoleAdmin}

	if raw := c.Request().Header.Get("X-Actor-ID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return service.Actor{}, fmt.Errorf("invalid X-Actor-ID")
		}
		actor.ID = id
	}
	if raw := c.Request().Header.Get("X-Actor-Role"); raw != "" {
		role, err := service.ParseRole(raw)
		if err != nil {
			return service.Actor{}, fmt.Errorf("invalid X-Actor-Role")
		}
		actor.Role = role
	}
	return actor, nil
}

// IssueToken подписывает токен для актора (выдача токенов в dev и тестах).
func IssueToken(key []byte, issuer string, actor service.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// ActorFrom достаёт актора, положенного Authenticate.
func ActorFrom(c echo.Context) service.Actor {
	a, _ := c.Get(string(actorKey)).(service.Actor)
	return a
}

// RequireRole пропускает актора с одной из ролей; администратор проходит всегда.
func RequireRole(roles ...service.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := ActorFrom(c)
			if actor.Role == service.RoleAdmin {
				return next(c)
			}
			for _, r := range roles {
				if actor.Role == r {
					return next(c)
				}
			}
			names := make([]string, 0, len(roles))
			for _, r := range roles {
				names = append(names, string(r))
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(names, " or ")))
		}
	}
}
