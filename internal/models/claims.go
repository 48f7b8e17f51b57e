package models

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims представляет стандартные поля JWT и пользовательские данные,
// которые выдает внешний identity-сервис.
type Claims struct {
	SubjectID            uuid.UUID `json:"subject_id"`
	Banned               bool      `json:"banned"` // Флаг бана, запрещает старт сессий
	jwt.RegisteredClaims           // Встраиваем стандартные поля: Issuer, Subject, ExpiresAt, IssuedAt, ID (JTI)
}

// contextKey - приватный тип для ключей контекста, чтобы избежать коллизий.
type contextKey string

// SubjectContextKey используется как ключ для хранения SubjectID в контексте запроса.
const SubjectContextKey contextKey = "subjectID"

// GetSubjectFromContext извлекает SubjectID из контекста.
// Возвращает ID и true, если ключ найден и значение корректного типа.
func GetSubjectFromContext(ctx context.Context) (uuid.UUID, bool) {
	subjectID, ok := ctx.Value(SubjectContextKey).(uuid.UUID)
	return subjectID, ok
}
