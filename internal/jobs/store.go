package jobs

import "context"

// Store persists continuation jobs so interrupted background translation
// resumes after a restart.
type Store interface {
	LoadJobs(ctx context.Context) ([]*ContinuationJob, error)
	UpsertJob(ctx context.Context, job *ContinuationJob) error
	DeleteJob(ctx context.Context, jobID string) error
}
