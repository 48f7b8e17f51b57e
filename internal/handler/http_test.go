package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tale-server/internal/handler"
	"tale-server/internal/models"
	"tale-server/internal/service"
	serviceMocks "tale-server/internal/service/mocks"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

const testJWTSecret = "test-secret"

type handlerMocks struct {
	traversal *serviceMocks.TraversalService
	analytics *serviceMocks.AnalyticsService
	endings   *serviceMocks.EndingService
}

func newTestServer(t *testing.T) (*echo.Echo, *handlerMocks) {
	t.Helper()
	m := &handlerMocks{
		traversal: new(serviceMocks.TraversalService),
		analytics: new(serviceMocks.AnalyticsService),
		endings:   new(serviceMocks.EndingService),
	}
	h := handler.NewTraversalHandler(m.traversal, m.analytics, m.endings, zap.NewNop(), testJWTSecret, nil)

	e := echo.New()
	e.Validator = handler.NewValidator()
	h.RegisterRoutes(e)
	return e, m
}

func signToken(t *testing.T, subjectID uuid.UUID, banned bool) string {
	t.Helper()
	claims := models.Claims{
		SubjectID: subjectID,
		Banned:    banned,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	assert.NoError(t, err)
	return token
}

func TestStartSessionEndpoint(t *testing.T) {
	t.Run("Anonymous start returns 201", func(t *testing.T) {
		e, m := newTestServer(t)

		storyID := uuid.New()
		pageID := uuid.New()
		result := &service.StartResult{
			Session: &models.Session{ID: uuid.New(), StoryID: storyID, CurrentPageID: pageID},
			Page:    &models.Page{ID: pageID, Content: "Вы входите в лес."},
			Resumed: false,
		}
		m.traversal.On("StartSession", mock.Anything, storyID, (*uuid.UUID)(nil)).Return(result, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/stories/"+storyID.String()+"/sessions", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]json.RawMessage
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "false", string(resp["resumed"]))
	})

	t.Run("Resumed session returns 200", func(t *testing.T) {
		e, m := newTestServer(t)

		subjectID := uuid.New()
		storyID := uuid.New()
		pageID := uuid.New()
		result := &service.StartResult{
			Session: &models.Session{ID: uuid.New(), StoryID: storyID, SubjectID: &subjectID, CurrentPageID: pageID},
			Page:    &models.Page{ID: pageID},
			Resumed: true,
		}
		m.traversal.On("StartSession", mock.Anything, storyID, mock.MatchedBy(func(id *uuid.UUID) bool {
			return id != nil && *id == subjectID
		})).Return(result, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/stories/"+storyID.String()+"/sessions", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+signToken(t, subjectID, false))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Unavailable story maps to 409", func(t *testing.T) {
		e, m := newTestServer(t)

		storyID := uuid.New()
		m.traversal.On("StartSession", mock.Anything, storyID, (*uuid.UUID)(nil)).Return(nil, models.ErrStoryUnavailable).Once()

		req := httptest.NewRequest(http.MethodPost, "/stories/"+storyID.String()+"/sessions", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Unknown story maps to 404", func(t *testing.T) {
		e, m := newTestServer(t)

		storyID := uuid.New()
		m.traversal.On("StartSession", mock.Anything, storyID, (*uuid.UUID)(nil)).Return(nil, models.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodPost, "/stories/"+storyID.String()+"/sessions", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Unexpected error maps to 500", func(t *testing.T) {
		e, m := newTestServer(t)

		storyID := uuid.New()
		m.traversal.On("StartSession", mock.Anything, storyID, (*uuid.UUID)(nil)).
			Return(nil, errors.New("connection reset")).Once()

		req := httptest.NewRequest(http.MethodPost, "/stories/"+storyID.String()+"/sessions", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var apiErr map[string]string
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
		assert.Equal(t, models.ErrInternalServer.Error(), apiErr["message"])
	})

	t.Run("Malformed story ID is 400", func(t *testing.T) {
		e, m := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/stories/not-a-uuid/sessions", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		m.traversal.AssertNotCalled(t, "StartSession", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Invalid token on optional route is 401", func(t *testing.T) {
		e, m := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/stories/"+uuid.New().String()+"/sessions", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer garbage")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		m.traversal.AssertNotCalled(t, "StartSession", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Banned subject is 403", func(t *testing.T) {
		e, m := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/stories/"+uuid.New().String()+"/sessions", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+signToken(t, uuid.New(), true))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		m.traversal.AssertNotCalled(t, "StartSession", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestResolveChoiceEndpoint(t *testing.T) {
	t.Run("Successful transition returns page", func(t *testing.T) {
		e, m := newTestServer(t)

		sessionID := uuid.New()
		choiceID := uuid.New()
		result := &service.ChoiceResult{
			Page:      &models.Page{ID: uuid.New(), Content: "Тропа раздваивается."},
			Completed: false,
		}
		m.traversal.On("ResolveChoice", mock.Anything, sessionID, choiceID).Return(result, nil).Once()

		body := `{"choice_id":"` + choiceID.String() + `"}`
		req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID.String()+"/choices", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp handlerChoiceResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Completed)
		assert.Equal(t, result.Page.ID.String(), resp.Page.ID)
	})

	t.Run("Missing choice_id is 400", func(t *testing.T) {
		e, m := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/sessions/"+uuid.New().String()+"/choices", strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		m.traversal.AssertNotCalled(t, "ResolveChoice", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Completed session maps to 409", func(t *testing.T) {
		e, m := newTestServer(t)

		sessionID := uuid.New()
		choiceID := uuid.New()
		m.traversal.On("ResolveChoice", mock.Anything, sessionID, choiceID).Return(nil, models.ErrSessionCompleted).Once()

		body := `{"choice_id":"` + choiceID.String() + `"}`
		req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID.String()+"/choices", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Foreign choice maps to 400", func(t *testing.T) {
		e, m := newTestServer(t)

		sessionID := uuid.New()
		choiceID := uuid.New()
		m.traversal.On("ResolveChoice", mock.Anything, sessionID, choiceID).Return(nil, models.ErrInvalidChoice).Once()

		body := `{"choice_id":"` + choiceID.String() + `"}`
		req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID.String()+"/choices", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// handlerChoiceResponse повторяет форму ответа для разбора в тестах.
type handlerChoiceResponse struct {
	Page struct {
		ID string `json:"id"`
	} `json:"page"`
	Completed bool `json:"completed"`
}

func TestHistoryEndpoint(t *testing.T) {
	t.Run("Returns steps in order", func(t *testing.T) {
		e, m := newTestServer(t)

		sessionID := uuid.New()
		choiceID := uuid.New()
		history := &service.History{
			Session: &models.Session{ID: sessionID, StoryID: uuid.New()},
			Steps: []*models.Step{
				{SessionID: sessionID, PageID: uuid.New(), Order: 1},
				{SessionID: sessionID, PageID: uuid.New(), ChoiceID: &choiceID, Order: 2},
			},
		}
		m.traversal.On("GetHistory", mock.Anything, sessionID).Return(history, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/sessions/"+sessionID.String()+"/history", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Steps []struct {
				Order    int     `json:"order"`
				ChoiceID *string `json:"choice_id"`
			} `json:"steps"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Steps, 2)
		assert.Nil(t, resp.Steps[0].ChoiceID)
		assert.Equal(t, 2, resp.Steps[1].Order)
	})
}

func TestActivitiesEndpoint(t *testing.T) {
	t.Run("Requires authentication", func(t *testing.T) {
		e, m := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/me/activities", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		m.analytics.AssertNotCalled(t, "ListActivities", mock.Anything, mock.Anything)
	})

	t.Run("Returns the subject's activities", func(t *testing.T) {
		e, m := newTestServer(t)

		subjectID := uuid.New()
		activities := []*models.StoryActivity{
			{StoryID: uuid.New(), Title: "Лес теней", Completed: true, EndingsReached: 2},
		}
		m.analytics.On("ListActivities", mock.Anything, subjectID).Return(activities, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/me/activities", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+signToken(t, subjectID, false))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		m.analytics.AssertExpectations(t)
	})
}

func TestEndingsEndpoints(t *testing.T) {
	t.Run("Listing endings works anonymously", func(t *testing.T) {
		e, m := newTestServer(t)

		storyID := uuid.New()
		endings := []*models.EndingStatus{{PageID: uuid.New(), IsUnlocked: false}}
		m.endings.On("ListAllEndings", mock.Anything, storyID, (*uuid.UUID)(nil)).Return(endings, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/stories/"+storyID.String()+"/endings", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Unlocked endings require authentication", func(t *testing.T) {
		e, m := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/stories/"+uuid.New().String()+"/endings/unlocked", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		m.endings.AssertNotCalled(t, "ListUnlockedEndings", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unlocked endings for an authenticated subject", func(t *testing.T) {
		e, m := newTestServer(t)

		subjectID := uuid.New()
		storyID := uuid.New()
		unlocked := []*models.UnlockedEndingInfo{{EndPageID: uuid.New()}}
		m.endings.On("ListUnlockedEndings", mock.Anything, subjectID, storyID).Return(unlocked, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/stories/"+storyID.String()+"/endings/unlocked", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+signToken(t, subjectID, false))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		m.endings.AssertExpectations(t)
	})
}

func TestHealthz(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
