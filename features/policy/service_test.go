package policy

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"claimscompanion/backend/internal/config"
	"claimscompanion/backend/internal/worker"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Save(ctx context.Context, p *Policy) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) Get(ctx context.Context, id string) (*Policy, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Policy), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context) ([]Policy, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Policy), args.Error(1)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, id, status string, chunkCount int) error {
	args := m.Called(ctx, id, status, chunkCount)
	return args.Error(0)
}

func (m *MockRepository) SoftDelete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

type MockPurger struct {
	mock.Mock
}

func (m *MockPurger) DeleteBySource(ctx context.Context, docID string) error {
	args := m.Called(ctx, docID)
	return args.Error(0)
}

// --- Tests ---

func TestService_Add_QueuesIngestion(t *testing.T) {
	repo := new(MockRepository)
	pub := new(MockPublisher)
	svc := NewService(repo, pub, new(MockPurger))

	content := []byte("policy text")
	wantHash := fmt.Sprintf("%x", sha256.Sum256(content))

	repo.On("ExistsByHash", mock.Anything, wantHash).Return(false, nil)
	repo.On("Save", mock.Anything, mock.MatchedBy(func(p *Policy) bool {
		return p.FileName == "motor.pdf" && p.Status == "pending" && p.ContentHash == wantHash
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*Policy).ID = "pol-1"
	}).Return(nil)
	pub.On("Publish", config.TopicPolicyIngest, mock.MatchedBy(func(body []byte) bool {
		var payload worker.PolicyIngestPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return false
		}
		return payload.PolicyID == "pol-1" && payload.FileName == "motor.pdf" && payload.Path == "/data/motor.pdf"
	})).Return(nil)

	p, err := svc.Add(context.Background(), "motor.pdf", "/data/motor.pdf", content)
	require.NoError(t, err)
	assert.Equal(t, "pending", p.Status)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestService_Add_DuplicateContentRejected(t *testing.T) {
	repo := new(MockRepository)
	pub := new(MockPublisher)
	svc := NewService(repo, pub, new(MockPurger))

	repo.On("ExistsByHash", mock.Anything, mock.Anything).Return(true, nil)

	_, err := svc.Add(context.Background(), "motor.pdf", "/data/motor.pdf", []byte("same bytes"))
	assert.ErrorIs(t, err, ErrDuplicate)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestService_Add_PublishFailureMarksFailed(t *testing.T) {
	repo := new(MockRepository)
	pub := new(MockPublisher)
	svc := NewService(repo, pub, new(MockPurger))

	repo.On("ExistsByHash", mock.Anything, mock.Anything).Return(false, nil)
	repo.On("Save", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*Policy).ID = "pol-1"
	}).Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nsqd unreachable"))
	repo.On("UpdateStatus", mock.Anything, "pol-1", "failed", 0).Return(nil)

	_, err := svc.Add(context.Background(), "motor.pdf", "/data/motor.pdf", []byte("policy text"))
	assert.Error(t, err)
	repo.AssertExpectations(t)
}

func TestService_Delete_PurgesChunks(t *testing.T) {
	repo := new(MockRepository)
	purger := new(MockPurger)
	svc := NewService(repo, new(MockPublisher), purger)

	repo.On("Get", mock.Anything, "pol-1").Return(&Policy{ID: "pol-1"}, nil)
	repo.On("SoftDelete", mock.Anything, "pol-1").Return(nil)
	purger.On("DeleteBySource", mock.Anything, "pol-1").Return(nil)

	err := svc.Delete(context.Background(), "pol-1")
	require.NoError(t, err)
	repo.AssertExpectations(t)
	purger.AssertExpectations(t)
}

func TestService_Delete_UnknownPolicy(t *testing.T) {
	repo := new(MockRepository)
	purger := new(MockPurger)
	svc := NewService(repo, new(MockPublisher), purger)

	repo.On("Get", mock.Anything, "missing").Return(nil, sql.ErrNoRows)

	err := svc.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	repo.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything)
	purger.AssertNotCalled(t, "DeleteBySource", mock.Anything, mock.Anything)
}

func TestService_Delete_PurgeFailureSurfaces(t *testing.T) {
	repo := new(MockRepository)
	purger := new(MockPurger)
	svc := NewService(repo, new(MockPublisher), purger)

	repo.On("Get", mock.Anything, "pol-1").Return(&Policy{ID: "pol-1"}, nil)
	repo.On("SoftDelete", mock.Anything, "pol-1").Return(nil)
	purger.On("DeleteBySource", mock.Anything, "pol-1").Return(errors.New("index unavailable"))

	err := svc.Delete(context.Background(), "pol-1")
	assert.Error(t, err)
}
