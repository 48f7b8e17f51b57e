package models

import (
	"time"

	"github.com/google/uuid"
)

// Session представляет одно прохождение истории читателем.
// Создается StartSession, мутируется только ResolveChoice.
type Session struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	SubjectID *uuid.UUID `json:"subject_id,omitempty" db:"subject_id"` // NULL для анонимной игры
	StoryID   uuid.UUID  `json:"story_id" db:"story_id"`
	// CurrentPageID is the page the reader is positioned at right now.
	CurrentPageID uuid.UUID  `json:"current_page_id" db:"current_page_id"`
	Completed     bool       `json:"completed" db:"completed"`
	EndPageID     *uuid.UUID `json:"end_page_id,omitempty" db:"end_page_id"` // Задан только если Completed
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Step is one entry of a session's append-only path log. Order starts
// at 1 and is gapless within a session. ChoiceID is NULL for the first
// step (the implicit starting position); every later step records the
// page arrived at together with the choice that led there.
type Step struct {
	SessionID uuid.UUID  `json:"session_id" db:"session_id"`
	PageID    uuid.UUID  `json:"page_id" db:"page_id"`
	ChoiceID  *uuid.UUID `json:"choice_id,omitempty" db:"choice_id"`
	Order     int        `json:"order" db:"ord"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	// Заполняются JOIN'ом со страницей при чтении истории.
	PageIsEnd    bool    `json:"page_is_end" db:"page_is_end"`
	PageEndLabel *string `json:"page_end_label,omitempty" db:"page_end_label"`
}

// UnlockedEndingInfo is an unlocked ending joined with its page for
// display: label, illustration and the global completion counter.
type UnlockedEndingInfo struct {
	EndPageID      uuid.UUID `json:"end_page_id" db:"end_page_id"`
	Label          *string   `json:"label,omitempty" db:"label"`
	Illustration   *string   `json:"illustration,omitempty" db:"illustration"`
	TimesCompleted int64     `json:"times_completed" db:"times_completed"`
	UnlockedAt     time.Time `json:"unlocked_at" db:"unlocked_at"`
}

// EndingStatus describes one terminal page of a story together with the
// unlock flag for a particular subject (false for anonymous callers).
type EndingStatus struct {
	PageID         uuid.UUID `json:"page_id" db:"page_id"`
	Label          *string   `json:"label,omitempty" db:"label"`
	Illustration   *string   `json:"illustration,omitempty" db:"illustration"`
	TimesCompleted int64     `json:"times_completed" db:"times_completed"`
	IsUnlocked     bool      `json:"is_unlocked" db:"is_unlocked"`
}

// SessionPath is the ordered page-id sequence of one session, used by
// the path-similarity computation.
type SessionPath struct {
	SessionID uuid.UUID
	PageIDs   []uuid.UUID
}

// EndingReachStats describes how often the ending reached by a session
// was reached by other completed sessions of the same story.
type EndingReachStats struct {
	TimesReached int `json:"times_reached"`
	Percentage   int `json:"percentage"`
}

// PathStats is the cross-session analytics result for one session.
type PathStats struct {
	SessionID             uuid.UUID         `json:"session_id"`
	PathSimilarityPercent int               `json:"path_similarity_percent"`
	EndStats              *EndingReachStats `json:"end_stats,omitempty"`
}

// StoryActivity is the per-story rollup of a subject's sessions for the
// activities listing, merged with story display metadata.
type StoryActivity struct {
	StoryID         uuid.UUID  `json:"story_id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description,omitempty"`
	Theme           *string    `json:"theme,omitempty"`
	Completed       bool       `json:"completed"`
	EndingsReached  int        `json:"endings_reached"`
	InProgress      bool       `json:"in_progress"`
	ActiveSessionID *uuid.UUID `json:"active_session_id,omitempty"`
	LastActivityAt  *time.Time `json:"last_activity_at,omitempty"`
}

// SessionCompletedEvent is published to the client-updates queue when a
// session reaches a terminal page. Consumed by the external
// notification pipeline; delivery is best-effort.
type SessionCompletedEvent struct {
	SessionID uuid.UUID  `json:"session_id"`
	StoryID   uuid.UUID  `json:"story_id"`
	SubjectID *uuid.UUID `json:"subject_id,omitempty"`
	EndPageID uuid.UUID  `json:"end_page_id"`
	EndLabel  *string    `json:"end_label,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
