package job

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ragmine/features/document"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Save(ctx context.Context, j *Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *MockRepository) List(ctx context.Context) ([]Job, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Job), args.Error(1)
}

func (m *MockRepository) Get(ctx context.Context, id string) (*Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Job), args.Error(1)
}

func (m *MockRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockRelauncher struct {
	mock.Mock
}

func (m *MockRelauncher) Relaunch(ctx context.Context, documentID string) (*document.Document, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.Document), args.Error(1)
}

func TestService_Retry(t *testing.T) {
	repo := new(MockRepository)
	docs := new(MockRelauncher)
	svc := NewService(repo, docs)

	fresh := &document.Document{ID: "doc-new", WorkspaceID: "ws-1", Status: document.StatusSubmitted}

	repo.On("Get", mock.Anything, "job-1").Return(&Job{ID: "job-1", WorkspaceID: "ws-1", DocumentID: "doc-old"}, nil)
	docs.On("Relaunch", mock.Anything, "doc-old").Return(fresh, nil)
	repo.On("Delete", mock.Anything, "job-1").Return(nil)

	doc, err := svc.Retry(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, "doc-new", doc.ID)
	repo.AssertExpectations(t)
	docs.AssertExpectations(t)
}

func TestService_Retry_MissingJob(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockRelauncher))

	repo.On("Get", mock.Anything, "job-1").Return(nil, sql.ErrNoRows)

	_, err := svc.Retry(context.Background(), "job-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestService_Retry_JobWithoutDocument(t *testing.T) {
	repo := new(MockRepository)
	docs := new(MockRelauncher)
	svc := NewService(repo, docs)

	repo.On("Get", mock.Anything, "job-1").Return(&Job{ID: "job-1", WorkspaceID: "ws-1"}, nil)

	_, err := svc.Retry(context.Background(), "job-1")
	assert.Error(t, err)
	docs.AssertNotCalled(t, "Relaunch", mock.Anything, mock.Anything)
}

func TestService_Retry_KeepsJobWhenRelaunchFails(t *testing.T) {
	repo := new(MockRepository)
	docs := new(MockRelauncher)
	svc := NewService(repo, docs)

	repo.On("Get", mock.Anything, "job-1").Return(&Job{ID: "job-1", DocumentID: "doc-old"}, nil)
	docs.On("Relaunch", mock.Anything, "doc-old").Return(nil, document.ErrValidation)

	_, err := svc.Retry(context.Background(), "job-1")
	assert.ErrorIs(t, err, document.ErrValidation)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}
