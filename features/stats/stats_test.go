package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCounter struct{ mock.Mock }

func (m *MockCounter) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestHandler_Overview(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(claims, docs, msgs, chunks *MockCounter)
		wantStatus int
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name: "Success",
			setupMocks: func(claims, docs, msgs, chunks *MockCounter) {
				claims.On("Count", mock.Anything).Return(10, nil)
				docs.On("Count", mock.Anything).Return(25, nil)
				msgs.On("Count", mock.Anything).Return(120, nil)
				chunks.On("Count", mock.Anything).Return(340, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.EqualValues(t, 10, data["claims"])
				assert.EqualValues(t, 25, data["documents"])
				assert.EqualValues(t, 120, data["messages"])
				assert.EqualValues(t, 340, data["indexed_chunks"])
			},
		},
		{
			name: "StoreFailure",
			setupMocks: func(claims, docs, msgs, chunks *MockCounter) {
				claims.On("Count", mock.Anything).Return(0, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				errObj := body["error"].(map[string]interface{})
				assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := new(MockCounter)
			docs := new(MockCounter)
			msgs := new(MockCounter)
			chunks := new(MockCounter)
			tt.setupMocks(claims, docs, msgs, chunks)

			h := NewHandler(NewService(claims, docs, msgs, chunks))

			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()
			h.Overview(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			tt.checkBody(t, body)
		})
	}
}
