package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound = errors.New("resource not found") // General not found (story, page, choice, session)

	// Story availability
	ErrStoryUnavailable = errors.New("story is not published or is suspended")
	ErrNoStartPage      = errors.New("story has no start page configured")

	// Session state machine
	ErrSessionCompleted = errors.New("session is already completed")
	ErrInvalidChoice    = errors.New("choice does not belong to the current page")

	// Concurrency conflicts
	ErrActiveSessionExists = errors.New("active session already exists for this subject and story")
	ErrStepOrderConflict   = errors.New("step order collision")

	// Auth errors (токены проверяются локально, выдает их внешний auth-сервис)
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrInvalidInput   = errors.New("invalid input data")
)
