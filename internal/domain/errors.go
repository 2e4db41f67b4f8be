package domain

import "errors"

var (
	// ErrDocumentNotFound is returned by document stores for absent documents.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrSessionNotFound is returned when a join code resolves to no session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded is returned when joining a session whose status is ended.
	ErrSessionEnded = errors.New("session already ended")
	// ErrQuestionSetNotFound indicates no question set exists for a level.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrNoActiveQuestion is returned when an answer arrives outside a showing state.
	ErrNoActiveQuestion = errors.New("no active question")
	// ErrQuizAlreadyFinished is returned when an answer arrives after the run ended.
	ErrQuizAlreadyFinished = errors.New("quiz already finished")
)
