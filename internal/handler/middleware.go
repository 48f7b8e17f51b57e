package handler

import (
	"context"
	"net/http"
	"strings"

	"tale-server/internal/auth"
	"tale-server/internal/models"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequireAuth возвращает middleware, требующее валидный bearer-токен.
// SubjectID кладется в контекст запроса. Забаненные читатели не
// допускаются к защищенным маршрутам.
func RequireAuth(verifier *auth.JWTVerifier, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := verifyBearer(c, verifier)
			if err != nil {
				logger.Debug("Authentication failed", zap.Error(err))
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if claims.Banned {
				return echo.NewHTTPError(http.StatusForbidden, "account is banned")
			}
			setSubject(c, claims)
			return next(c)
		}
	}
}

// OptionalAuth возвращает middleware для маршрутов, доступных и
// анонимно. Валидный токен кладет SubjectID в контекст; отсутствующий
// заголовок пропускает запрос как анонимный; битый токен — ошибка,
// чтобы клиент не потерял прогресс молча.
func OptionalAuth(verifier *auth.JWTVerifier, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				return next(c) // анонимная игра
			}
			claims, err := verifyBearer(c, verifier)
			if err != nil {
				logger.Debug("Authentication failed on optional route", zap.Error(err))
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Banned {
				return echo.NewHTTPError(http.StatusForbidden, "account is banned")
			}
			setSubject(c, claims)
			return next(c)
		}
	}
}

func verifyBearer(c echo.Context, verifier *auth.JWTVerifier) (*models.Claims, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return nil, models.ErrUnauthorized
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, models.ErrTokenMalformed
	}
	return verifier.VerifyToken(c.Request().Context(), parts[1])
}

func setSubject(c echo.Context, claims *models.Claims) {
	req := c.Request()
	ctx := context.WithValue(req.Context(), models.SubjectContextKey, claims.SubjectID)
	c.SetRequest(req.WithContext(ctx))
}
