package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tale-server/internal/interfaces"
	"tale-server/internal/messaging"
	"tale-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartResult is what StartSession hands back: the session, the page
// the reader is positioned at, and whether an existing session was
// resumed instead of a new one created.
type StartResult struct {
	Session *models.Session
	Page    *models.Page
	Resumed bool
}

// ChoiceResult is the outcome of one resolved choice.
type ChoiceResult struct {
	Page      *models.Page
	Completed bool
}

// History is a session together with its ordered path log.
type History struct {
	Session *models.Session
	Steps   []*models.Step
}

// TraversalService implements the session state machine: starting and
// resuming sessions, resolving choices into page transitions and
// recording the traversal path.
type TraversalService interface {
	// StartSession starts (or resumes, for a known subject) a reading
	// session on a published story. A nil subject starts an anonymous,
	// non-resumable session.
	StartSession(ctx context.Context, storyID uuid.UUID, subjectID *uuid.UUID) (*StartResult, error)

	// ResolveChoice applies one choice to the session, appending a step
	// and moving the reader to the target page. Completes the session
	// when the target is a terminal page.
	ResolveChoice(ctx context.Context, sessionID, choiceID uuid.UUID) (*ChoiceResult, error)

	// GetHistory returns the session and its steps ordered ascending.
	GetHistory(ctx context.Context, sessionID uuid.UUID) (*History, error)
}

type traversalServiceImpl struct {
	db          interfaces.DBTX
	tx          interfaces.Transactor
	storyRepo   interfaces.StoryRepository
	sessionRepo interfaces.SessionRepository
	unlockRepo  interfaces.UnlockedEndingRepository
	publisher   messaging.SessionEventPublisher
	logger      *zap.Logger
}

// NewTraversalService creates a new instance of TraversalService.
func NewTraversalService(
	db interfaces.DBTX,
	tx interfaces.Transactor,
	storyRepo interfaces.StoryRepository,
	sessionRepo interfaces.SessionRepository,
	unlockRepo interfaces.UnlockedEndingRepository,
	publisher messaging.SessionEventPublisher,
	logger *zap.Logger,
) TraversalService {
	return &traversalServiceImpl{
		db:          db,
		tx:          tx,
		storyRepo:   storyRepo,
		sessionRepo: sessionRepo,
		unlockRepo:  unlockRepo,
		publisher:   publisher,
		logger:      logger.Named("TraversalService"),
	}
}

// StartSession starts or resumes a session on the story.
func (s *traversalServiceImpl) StartSession(ctx context.Context, storyID uuid.UUID, subjectID *uuid.UUID) (*StartResult, error) {
	logFields := []zap.Field{zap.String("storyID", storyID.String())}
	if subjectID != nil {
		logFields = append(logFields, zap.String("subjectID", subjectID.String()))
	}

	story, err := s.storyRepo.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !story.IsPlayable() {
		s.logger.Debug("Story is not playable", logFields...)
		return nil, models.ErrStoryUnavailable
	}
	if story.StartPageID == nil {
		s.logger.Warn("Published story has no start page", logFields...)
		return nil, models.ErrNoStartPage
	}

	startPage, err := s.storyRepo.GetPage(ctx, *story.StartPageID)
	if err != nil {
		return nil, err
	}

	// Resume semantics: известный читатель возвращается в свою
	// незавершенную сессию без каких-либо мутаций и счетчиков.
	if subjectID != nil {
		existing, err := s.sessionRepo.FindActive(ctx, s.db, *subjectID, storyID)
		if err == nil {
			return s.resume(ctx, existing, logFields)
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	session := &models.Session{
		SubjectID:     subjectID,
		StoryID:       storyID,
		CurrentPageID: startPage.ID,
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := s.sessionRepo.Create(ctx, tx, session); err != nil {
			return err
		}
		// Первый шаг фиксирует стартовую позицию; выбора еще не было.
		return s.sessionRepo.AppendStep(ctx, tx, &models.Step{
			SessionID: session.ID,
			PageID:    startPage.ID,
			Order:     1,
		})
	})
	if err != nil {
		// Проигранная гонка создания: перечитываем победившую сессию
		// один раз и возвращаем ее вместо ошибки.
		if errors.Is(err, models.ErrActiveSessionExists) && subjectID != nil {
			s.logger.Info("Lost active-session creation race, re-reading", logFields...)
			winner, findErr := s.sessionRepo.FindActive(ctx, s.db, *subjectID, storyID)
			if findErr != nil {
				return nil, fmt.Errorf("failed to re-read session after conflict: %w", findErr)
			}
			return s.resume(ctx, winner, logFields)
		}
		return nil, err
	}

	// Счетчики best-effort: неуспех не откатывает созданную сессию.
	if err := s.storyRepo.IncrementStoryPlays(ctx, storyID); err != nil {
		s.logger.Warn("Failed to increment story plays", append(logFields, zap.Error(err))...)
	}
	if err := s.storyRepo.IncrementPageReached(ctx, startPage.ID); err != nil {
		s.logger.Warn("Failed to increment page reached", append(logFields, zap.Error(err))...)
	}

	s.logger.Info("Session started", append(logFields, zap.String("sessionID", session.ID.String()))...)
	return &StartResult{Session: session, Page: startPage, Resumed: false}, nil
}

func (s *traversalServiceImpl) resume(ctx context.Context, session *models.Session, logFields []zap.Field) (*StartResult, error) {
	page, err := s.storyRepo.GetPage(ctx, session.CurrentPageID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Session resumed", append(logFields, zap.String("sessionID", session.ID.String()))...)
	return &StartResult{Session: session, Page: page, Resumed: true}, nil
}

// ResolveChoice moves the session along the chosen edge.
func (s *traversalServiceImpl) ResolveChoice(ctx context.Context, sessionID, choiceID uuid.UUID) (*ChoiceResult, error) {
	logFields := []zap.Field{
		zap.String("sessionID", sessionID.String()),
		zap.String("choiceID", choiceID.String()),
	}

	session, err := s.sessionRepo.GetByID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Completed {
		return nil, models.ErrSessionCompleted
	}

	currentPage, err := s.storyRepo.GetPage(ctx, session.CurrentPageID)
	if err != nil {
		return nil, err
	}

	choice := currentPage.FindChoice(choiceID)
	if choice == nil {
		s.logger.Debug("Choice does not belong to current page",
			append(logFields, zap.String("currentPageID", currentPage.ID.String()))...)
		return nil, models.ErrInvalidChoice
	}

	// Dice-гейт (DiceThreshold/FailurePageID) присутствует в данных, но
	// бросок не выполняется: переход всегда идет по основной цели.
	targetPage, err := s.storyRepo.GetPage(ctx, choice.TargetPageID)
	if err != nil {
		return nil, err
	}
	if targetPage.StoryID != session.StoryID {
		s.logger.Warn("Choice target belongs to another story", logFields...)
		return nil, models.ErrInvalidChoice
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		// Блокировка строки сессии сериализует конкурентные выборы и
		// гарантирует бесшовную нумерацию шагов.
		if err := s.sessionRepo.LockForUpdate(ctx, tx, session.ID); err != nil {
			return err
		}
		fresh, err := s.sessionRepo.GetByID(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		if fresh.Completed {
			return models.ErrSessionCompleted
		}
		// Параллельный resolve успел сдвинуть позицию, пока мы ждали
		// блокировку: выбор валидировался против устаревшей страницы.
		if fresh.CurrentPageID != currentPage.ID {
			return models.ErrStepOrderConflict
		}

		maxOrder, err := s.sessionRepo.MaxStepOrder(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		if err := s.sessionRepo.AppendStep(ctx, tx, &models.Step{
			SessionID: session.ID,
			PageID:    targetPage.ID,
			ChoiceID:  &choiceID,
			Order:     maxOrder + 1,
		}); err != nil {
			return err
		}

		session.CurrentPageID = targetPage.ID
		if targetPage.IsEnd {
			now := time.Now().UTC()
			session.Completed = true
			session.EndPageID = &targetPage.ID
			session.CompletedAt = &now
		}
		if err := s.sessionRepo.UpdatePosition(ctx, tx, session); err != nil {
			return err
		}

		// Анлок концовки идемпотентен и входит в ту же транзакцию:
		// корректность ListUnlockedEndings не best-effort.
		if targetPage.IsEnd && session.SubjectID != nil {
			return s.unlockRepo.Unlock(ctx, tx, *session.SubjectID, session.StoryID, targetPage.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bumpCountersAndNotify(ctx, session, targetPage, logFields)

	s.logger.Info("Choice resolved",
		append(logFields,
			zap.String("targetPageID", targetPage.ID.String()),
			zap.Bool("completed", session.Completed))...)
	return &ChoiceResult{Page: targetPage, Completed: session.Completed}, nil
}

// bumpCountersAndNotify applies the best-effort side effects of a
// transition after the transaction committed. Failures are logged and
// never surfaced: stat counters and notifications must not break
// traversal correctness.
func (s *traversalServiceImpl) bumpCountersAndNotify(ctx context.Context, session *models.Session, target *models.Page, logFields []zap.Field) {
	if err := s.storyRepo.IncrementPageReached(ctx, target.ID); err != nil {
		s.logger.Warn("Failed to increment page reached", append(logFields, zap.Error(err))...)
	}
	if !target.IsEnd {
		return
	}
	if err := s.storyRepo.IncrementPageCompleted(ctx, target.ID); err != nil {
		s.logger.Warn("Failed to increment page completed", append(logFields, zap.Error(err))...)
	}
	if err := s.storyRepo.IncrementStoryCompletions(ctx, session.StoryID); err != nil {
		s.logger.Warn("Failed to increment story completions", append(logFields, zap.Error(err))...)
	}
	if s.publisher != nil {
		event := models.SessionCompletedEvent{
			SessionID: session.ID,
			StoryID:   session.StoryID,
			SubjectID: session.SubjectID,
			EndPageID: target.ID,
			EndLabel:  target.EndLabel,
			Timestamp: time.Now().UTC(),
		}
		if err := s.publisher.PublishSessionCompleted(ctx, event); err != nil {
			s.logger.Warn("Failed to publish session completed event", append(logFields, zap.Error(err))...)
		}
	}
}

// GetHistory returns the session together with its ordered path log.
func (s *traversalServiceImpl) GetHistory(ctx context.Context, sessionID uuid.UUID) (*History, error) {
	session, err := s.sessionRepo.GetByID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	steps, err := s.sessionRepo.ListSteps(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	return &History{Session: session, Steps: steps}, nil
}
