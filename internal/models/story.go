package models

import (
	"time"

	"github.com/google/uuid"
)

// StoryStatus определяет возможные статусы истории.
// Совпадает с типом ENUM 'story_status' в БД.
type StoryStatus string

const (
	StatusDraft     StoryStatus = "draft"     // Черновик, доступен только автору
	StatusPublished StoryStatus = "published" // Опубликована, доступна для чтения
)

// Story represents an authored branching narrative. The authoring side
// lives in a separate service; the traversal engine only reads these
// records and bumps the play/completion counters.
type Story struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	Title       string      `json:"title" db:"title"`
	Description *string     `json:"description,omitempty" db:"description"` // Указатель, так как может быть NULL
	Theme       *string     `json:"theme,omitempty" db:"theme"`
	Status      StoryStatus `json:"status" db:"status"`
	IsSuspended bool        `json:"is_suspended" db:"is_suspended"` // Выставляется модерацией
	StartPageID *uuid.UUID  `json:"start_page_id,omitempty" db:"start_page_id"`
	// Счетчики, инкрементируются атомарно на уровне БД.
	TotalPlays       int64     `json:"total_plays" db:"total_plays"`
	TotalCompletions int64     `json:"total_completions" db:"total_completions"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// IsPlayable reports whether a session may be started on the story.
func (s *Story) IsPlayable() bool {
	return s.Status == StatusPublished && !s.IsSuspended
}

// Page is a node in the narrative graph. A terminal page (IsEnd) has an
// empty choice list; any other page carries ordered choices.
type Page struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	StoryID      uuid.UUID  `json:"story_id" db:"story_id"`
	Content      string     `json:"content" db:"content"`
	IsEnd        bool       `json:"is_end" db:"is_end"`
	EndLabel     *string    `json:"end_label,omitempty" db:"end_label"`
	Illustration *string    `json:"illustration,omitempty" db:"illustration"`
	// Счетчики посещений, инкрементируются атомарно на уровне БД.
	TimesReached   int64    `json:"times_reached" db:"times_reached"`
	TimesCompleted int64    `json:"times_completed" db:"times_completed"`
	Choices        []Choice `json:"choices" db:"-"` // Отсортированы по ord
}

// FindChoice returns the choice with the given id, or nil if the page
// does not carry it.
func (p *Page) FindChoice(choiceID uuid.UUID) *Choice {
	for i := range p.Choices {
		if p.Choices[i].ID == choiceID {
			return &p.Choices[i]
		}
	}
	return nil
}

// Choice is a directed edge between two pages of the same story.
// DiceThreshold and FailurePageID describe an optional dice gate; the
// engine currently never rolls and always follows TargetPageID.
type Choice struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	PageID        uuid.UUID  `json:"page_id" db:"page_id"`
	Text          string     `json:"text" db:"text"`
	TargetPageID  uuid.UUID  `json:"target_page_id" db:"target_page_id"`
	Order         int        `json:"order" db:"ord"`
	DiceThreshold *int       `json:"dice_threshold,omitempty" db:"dice_threshold"`
	FailurePageID *uuid.UUID `json:"failure_page_id,omitempty" db:"failure_page_id"`
}
