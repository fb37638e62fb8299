package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned for lookups and deletes of unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// Repository persists export jobs. Implementations hand out copies, so a
// changed job is only visible to others after Save.
type Repository interface {
	// Save inserts the job or overwrites the stored copy with the same ID.
	Save(ctx context.Context, job *Job) error
	// FindByID fails with ErrJobNotFound for unknown IDs.
	FindByID(ctx context.Context, id string) (*Job, error)
	// List returns every stored job, most recently created first.
	List(ctx context.Context) ([]*Job, error)
	// Delete fails with ErrJobNotFound for unknown IDs.
	Delete(ctx context.Context, id string) error
}
