package handler

import (
	"context"
	"errors"
	"net/http"

	"tale-server/internal/auth"
	"tale-server/internal/models"
	"tale-server/internal/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger проверяет доступность базы для healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TraversalHandler обрабатывает HTTP запросы движка сессий.
type TraversalHandler struct {
	traversal service.TraversalService
	analytics service.AnalyticsService
	endings   service.EndingService
	verifier  *auth.JWTVerifier
	db        Pinger
	logger    *zap.Logger
}

// NewTraversalHandler создает новый TraversalHandler.
func NewTraversalHandler(
	traversal service.TraversalService,
	analytics service.AnalyticsService,
	endings service.EndingService,
	logger *zap.Logger,
	jwtSecret string,
	db Pinger,
) *TraversalHandler {
	verifier, err := auth.NewJWTVerifier(jwtSecret, logger)
	if err != nil {
		logger.Fatal("Failed to create JWT Verifier", zap.Error(err))
	}

	return &TraversalHandler{
		traversal: traversal,
		analytics: analytics,
		endings:   endings,
		verifier:  verifier,
		db:        db,
		logger:    logger.Named("TraversalHandler"),
	}
}

// RegisterRoutes регистрирует маршруты движка сессий.
func (h *TraversalHandler) RegisterRoutes(e *echo.Echo) {
	optionalAuth := OptionalAuth(h.verifier, h.logger)
	requireAuth := RequireAuth(h.verifier, h.logger)

	// Анонимный доступ разрешен: subject берем из токена, если он есть.
	storiesGroup := e.Group("/stories", optionalAuth)
	{
		storiesGroup.POST("/:story_id/sessions", h.startSession)
		storiesGroup.GET("/:story_id/endings", h.listEndings)
	}
	e.GET("/stories/:story_id/endings/unlocked", h.listUnlockedEndings, requireAuth)

	sessionsGroup := e.Group("/sessions", optionalAuth)
	{
		sessionsGroup.POST("/:session_id/choices", h.resolveChoice)
		sessionsGroup.GET("/:session_id/history", h.getHistory)
		sessionsGroup.GET("/:session_id/path-stats", h.getPathStats)
	}

	e.GET("/me/activities", h.listActivities, requireAuth)

	e.GET("/healthz", h.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// --- Вспомогательные функции --- //

// subjectFromContext извлекает subject из контекста; nil для анонимов.
func subjectFromContext(c echo.Context) *uuid.UUID {
	subjectID, ok := models.GetSubjectFromContext(c.Request().Context())
	if !ok {
		return nil
	}
	return &subjectID
}

func parseIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func handleServiceError(c echo.Context, err error) error {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, models.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		apiErr = APIError{Message: "Unauthorized"}
	case errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: "Resource not found"}
	case errors.Is(err, models.ErrStoryUnavailable):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrNoStartPage):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrSessionCompleted):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrActiveSessionExists):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrStepOrderConflict):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrInvalidChoice):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	default:
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: models.ErrInternalServer.Error()}
	}
	return c.JSON(statusCode, apiErr)
}

// isExpectedError отделяет бизнес-ошибки от настоящих сбоев для логирования.
func isExpectedError(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrStoryUnavailable) ||
		errors.Is(err, models.ErrNoStartPage) ||
		errors.Is(err, models.ErrSessionCompleted) ||
		errors.Is(err, models.ErrActiveSessionExists) ||
		errors.Is(err, models.ErrInvalidChoice) ||
		errors.Is(err, models.ErrInvalidInput)
}

// --- Обработчики HTTP --- //

// startSession начинает прохождение истории или возвращает уже активную сессию.
func (h *TraversalHandler) startSession(c echo.Context) error {
	storyID, err := parseIDParam(c, "story_id")
	if err != nil {
		h.logger.Warn("Invalid story ID format in startSession", zap.String("story_id", c.Param("story_id")), zap.Error(err))
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid story ID format"})
	}

	subjectID := subjectFromContext(c)

	result, err := h.traversal.StartSession(c.Request().Context(), storyID, subjectID)
	if err != nil {
		if !isExpectedError(err) {
			h.logger.Error("Error starting session", zap.String("storyID", storyID.String()), zap.Error(err))
		}
		return handleServiceError(c, err)
	}

	if result.Resumed {
		sessionsResumedTotal.Inc()
	} else {
		sessionsStartedTotal.Inc()
	}

	resp := StartSessionResponse{
		Session: toSessionResponse(result.Session),
		Page:    toPageResponse(result.Page),
		Resumed: result.Resumed,
	}

	status := http.StatusCreated
	if result.Resumed {
		status = http.StatusOK
	}
	return c.JSON(status, resp)
}

// resolveChoice применяет выбор игрока и переводит сессию на целевую страницу.
func (h *TraversalHandler) resolveChoice(c echo.Context) error {
	sessionID, err := parseIDParam(c, "session_id")
	if err != nil {
		h.logger.Warn("Invalid session ID format in resolveChoice", zap.String("session_id", c.Param("session_id")), zap.Error(err))
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid session ID format"})
	}

	var req ResolveChoiceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "choice_id is required"})
	}

	result, err := h.traversal.ResolveChoice(c.Request().Context(), sessionID, req.ChoiceID)
	if err != nil {
		if !isExpectedError(err) {
			h.logger.Error("Error resolving choice",
				zap.String("sessionID", sessionID.String()),
				zap.String("choiceID", req.ChoiceID.String()),
				zap.Error(err))
		}
		return handleServiceError(c, err)
	}

	choicesResolvedTotal.Inc()
	if result.Completed {
		sessionsCompletedTotal.Inc()
	}

	resp := ResolveChoiceResponse{
		Page:      toPageResponse(result.Page),
		Completed: result.Completed,
	}
	return c.JSON(http.StatusOK, resp)
}

// getHistory возвращает сессию вместе с упорядоченным журналом шагов.
func (h *TraversalHandler) getHistory(c echo.Context) error {
	sessionID, err := parseIDParam(c, "session_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid session ID format"})
	}

	history, err := h.traversal.GetHistory(c.Request().Context(), sessionID)
	if err != nil {
		if !isExpectedError(err) {
			h.logger.Error("Error getting session history", zap.String("sessionID", sessionID.String()), zap.Error(err))
		}
		return handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, toHistoryResponse(history))
}

// getPathStats возвращает статистику пути сессии относительно других прохождений.
func (h *TraversalHandler) getPathStats(c echo.Context) error {
	sessionID, err := parseIDParam(c, "session_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid session ID format"})
	}

	stats, err := h.analytics.PathStats(c.Request().Context(), sessionID)
	if err != nil {
		if !isExpectedError(err) {
			h.logger.Error("Error computing path stats", zap.String("sessionID", sessionID.String()), zap.Error(err))
		}
		return handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, stats)
}

// listEndings возвращает все концовки истории с флагом unlocked для subject.
func (h *TraversalHandler) listEndings(c echo.Context) error {
	storyID, err := parseIDParam(c, "story_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid story ID format"})
	}

	endings, err := h.endings.ListAllEndings(c.Request().Context(), storyID, subjectFromContext(c))
	if err != nil {
		if !isExpectedError(err) {
			h.logger.Error("Error listing endings", zap.String("storyID", storyID.String()), zap.Error(err))
		}
		return handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, endings)
}

// listUnlockedEndings возвращает открытые subject'ом концовки истории.
func (h *TraversalHandler) listUnlockedEndings(c echo.Context) error {
	storyID, err := parseIDParam(c, "story_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid story ID format"})
	}

	subjectID := subjectFromContext(c)
	if subjectID == nil {
		return c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
	}

	unlocked, err := h.endings.ListUnlockedEndings(c.Request().Context(), *subjectID, storyID)
	if err != nil {
		if !isExpectedError(err) {
			h.logger.Error("Error listing unlocked endings",
				zap.String("storyID", storyID.String()),
				zap.String("subjectID", subjectID.String()),
				zap.Error(err))
		}
		return handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, unlocked)
}

// listActivities возвращает для subject сводку по всем историям, которых он касался.
func (h *TraversalHandler) listActivities(c echo.Context) error {
	subjectID := subjectFromContext(c)
	if subjectID == nil {
		return c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
	}

	activities, err := h.analytics.ListActivities(c.Request().Context(), *subjectID)
	if err != nil {
		h.logger.Error("Error listing activities", zap.String("subjectID", subjectID.String()), zap.Error(err))
		return handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, activities)
}

func (h *TraversalHandler) healthz(c echo.Context) error {
	if h.db != nil {
		if err := h.db.Ping(c.Request().Context()); err != nil {
			h.logger.Error("Health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
