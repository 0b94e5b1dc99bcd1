package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrJobNotFound struct {
	id uuid.UUID
}

func NewErrJobNotFound(id uuid.UUID) *ErrJobNotFound {
	return &ErrJobNotFound{id: id}
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("job %q not found", e.id)
}

type ErrInvalidJob struct {
	reason string
}

func NewErrInvalidJob(reason string) *ErrInvalidJob {
	return &ErrInvalidJob{reason: reason}
}

func (e *ErrInvalidJob) Error() string {
	return e.reason
}
