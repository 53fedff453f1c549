package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrChunkOfChunk    = errors.New("chunk sources cannot have child chunks")
	ErrUnknownRelation = errors.New("relation not in vocabulary")
)
