package chat

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"claimscompanion/backend/internal/retrieval"
)

func newSendRequest(t *testing.T, claimID, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest("POST", "/claims/"+claimID+"/messages", strings.NewReader(body))
	req.SetPathValue("id", claimID)
	return req
}

func TestHandler_Send_Validation(t *testing.T) {
	h := NewHandler(NewService(new(MockRepository), new(MockClaimSource), nil, nil, nil))

	t.Run("BadClaimID", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Send(w, newSendRequest(t, "abc", `{"message_text": "hi"}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("MissingText", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Send(w, newSendRequest(t, "1", `{"message_text": "   "}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Send(w, newSendRequest(t, "1", `{`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_Send_ClaimNotFound(t *testing.T) {
	claims := new(MockClaimSource)
	claims.On("Describe", mock.Anything, int64(99)).Return(nil, sql.ErrNoRows)
	h := NewHandler(NewService(new(MockRepository), claims, nil, nil, nil))

	w := httptest.NewRecorder()
	h.Send(w, newSendRequest(t, "99", `{"message_text": "hello"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestHandler_Send_Created(t *testing.T) {
	repo := new(MockRepository)
	claims := new(MockClaimSource)
	pub := new(MockPublisher)
	rag, _ := ragWith([]retrieval.Result{})

	claims.On("Describe", mock.Anything, int64(1)).Return(testSummary(), nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	h := NewHandler(NewService(repo, claims, rag, nil, pub))

	w := httptest.NewRecorder()
	h.Send(w, newSendRequest(t, "1", `{"user_id": 7, "message_text": "hello"}`))
	assert.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Data Exchange `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Data.User)
	require.NotNil(t, body.Data.AI)
	assert.Equal(t, noContextReply, body.Data.AI.Text)
}

func TestHandler_History_OK(t *testing.T) {
	repo := new(MockRepository)
	claims := new(MockClaimSource)

	claims.On("Describe", mock.Anything, int64(1)).Return(testSummary(), nil)
	repo.On("List", mock.Anything, int64(1)).Return([]Message{{ID: 1, Role: RoleUser, Text: "hi"}}, nil)

	h := NewHandler(NewService(repo, claims, nil, nil, nil))

	req := httptest.NewRequest("GET", "/claims/1/messages", nil)
	req.SetPathValue("id", "1")
	w := httptest.NewRecorder()
	h.History(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	meta := body["meta"].(map[string]interface{})
	assert.EqualValues(t, 1, meta["count"])
}
