package job

import (
	"context"
	"fmt"

	"ragmine/features/document"
)

// Relauncher starts a fresh processing cycle for an errored document.
type Relauncher interface {
	Relaunch(ctx context.Context, documentID string) (*document.Document, error)
}

type Service struct {
	repo Repository
	docs Relauncher
}

func NewService(repo Repository, docs Relauncher) *Service {
	return &Service{repo: repo, docs: docs}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// Retry relaunches the errored document behind a failed job and removes
// the job entry. The relaunch produces a brand-new document, so a retry
// never revives the original errored row.
func (s *Service) Retry(ctx context.Context, id string) (*document.Document, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.DocumentID == "" {
		return nil, fmt.Errorf("job %s has no document to relaunch", id)
	}

	doc, err := s.docs.Relaunch(ctx, j.DocumentID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
