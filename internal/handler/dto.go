package handler

import (
	"time"

	"tale-server/internal/models"
	"tale-server/internal/service"

	"github.com/google/uuid"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// ChoiceResponse is one selectable option of a page. Target and dice
// fields are intentionally not exposed to avoid spoiling the graph.
type ChoiceResponse struct {
	ID    uuid.UUID `json:"id"`
	Text  string    `json:"text"`
	Order int       `json:"order"`
}

// PageResponse is the client view of a page.
type PageResponse struct {
	ID           uuid.UUID        `json:"id"`
	Content      string           `json:"content"`
	IsEnd        bool             `json:"is_end"`
	EndLabel     *string          `json:"end_label,omitempty"`
	Illustration *string          `json:"illustration,omitempty"`
	Choices      []ChoiceResponse `json:"choices"`
}

// SessionResponse is the client view of a session.
type SessionResponse struct {
	ID            uuid.UUID  `json:"id"`
	StoryID       uuid.UUID  `json:"story_id"`
	CurrentPageID uuid.UUID  `json:"current_page_id"`
	Completed     bool       `json:"completed"`
	EndPageID     *uuid.UUID `json:"end_page_id,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// StartSessionResponse is returned by StartSession. Resumed tells the
// client whether it got back an existing session.
type StartSessionResponse struct {
	Session SessionResponse `json:"session"`
	Page    PageResponse    `json:"page"`
	Resumed bool            `json:"resumed"`
}

// ResolveChoiceRequest is the body of the choice endpoint.
type ResolveChoiceRequest struct {
	ChoiceID uuid.UUID `json:"choice_id" validate:"required"`
}

// ResolveChoiceResponse is returned after a successful transition.
type ResolveChoiceResponse struct {
	Page      PageResponse `json:"page"`
	Completed bool         `json:"completed"`
}

// StepResponse is one entry of the history listing.
type StepResponse struct {
	PageID    uuid.UUID  `json:"page_id"`
	ChoiceID  *uuid.UUID `json:"choice_id,omitempty"`
	Order     int        `json:"order"`
	CreatedAt time.Time  `json:"created_at"`
	IsEnd     bool       `json:"is_end"`
	EndLabel  *string    `json:"end_label,omitempty"`
}

// HistoryResponse is the session plus its ordered path log.
type HistoryResponse struct {
	Session SessionResponse `json:"session"`
	Steps   []StepResponse  `json:"steps"`
}

func toSessionResponse(s *models.Session) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		StoryID:       s.StoryID,
		CurrentPageID: s.CurrentPageID,
		Completed:     s.Completed,
		EndPageID:     s.EndPageID,
		StartedAt:     s.StartedAt,
		CompletedAt:   s.CompletedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func toPageResponse(p *models.Page) PageResponse {
	choices := make([]ChoiceResponse, 0, len(p.Choices))
	for _, c := range p.Choices {
		choices = append(choices, ChoiceResponse{ID: c.ID, Text: c.Text, Order: c.Order})
	}
	return PageResponse{
		ID:           p.ID,
		Content:      p.Content,
		IsEnd:        p.IsEnd,
		EndLabel:     p.EndLabel,
		Illustration: p.Illustration,
		Choices:      choices,
	}
}

func toHistoryResponse(h *service.History) HistoryResponse {
	steps := make([]StepResponse, 0, len(h.Steps))
	for _, st := range h.Steps {
		steps = append(steps, StepResponse{
			PageID:    st.PageID,
			ChoiceID:  st.ChoiceID,
			Order:     st.Order,
			CreatedAt: st.CreatedAt,
			IsEnd:     st.PageIsEnd,
			EndLabel:  st.PageEndLabel,
		})
	}
	return HistoryResponse{
		Session: toSessionResponse(h.Session),
		Steps:   steps,
	}
}
