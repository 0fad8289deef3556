package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimscompanion/backend/features/chat"
	"claimscompanion/backend/features/claim"
	"claimscompanion/backend/features/user"
	"claimscompanion/backend/internal/testutils"
)

func TestChatRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.StartPostgres()
	defer s.Teardown()

	userRepo := user.NewPostgresRepo(s.DB)
	claimRepo := claim.NewPostgresRepo(s.DB)
	chatRepo := chat.NewPostgresRepo(s.DB)
	ctx := context.Background()

	u := &user.User{Email: "chat@example.com", FirstName: "Ada", Role: "claimant"}
	require.NoError(t, userRepo.Save(ctx, u))

	c := &claim.Claim{
		ClaimNumber: "CLM-CHAT000001",
		UserID:      u.ID,
		ClaimType:   "motor",
		Status:      claim.StatusSubmitted,
	}
	require.NoError(t, claimRepo.Save(ctx, c))

	// 1. First insert with a client message id wins.
	first := &chat.Message{
		ClaimID:         c.ID,
		UserID:          &u.ID,
		Role:            chat.RoleUser,
		Text:            "what is my excess",
		ClientMessageID: "client-abc",
	}
	require.NoError(t, chatRepo.Save(ctx, first))
	require.NotZero(t, first.ID)

	// 2. A repeat of the same client message id hits the partial unique
	// index and is reported as a duplicate, not an error row.
	repeat := &chat.Message{
		ClaimID:         c.ID,
		UserID:          &u.ID,
		Role:            chat.RoleUser,
		Text:            "what is my excess",
		ClientMessageID: "client-abc",
	}
	err := chatRepo.Save(ctx, repeat)
	assert.True(t, errors.Is(err, chat.ErrDuplicateMessage))

	// 3. Messages without a client id never collide.
	reply := &chat.Message{ClaimID: c.ID, Role: chat.RoleAI, Text: "reply one", ReplyTo: &first.ID}
	require.NoError(t, chatRepo.Save(ctx, reply))
	another := &chat.Message{ClaimID: c.ID, Role: chat.RoleUser, Text: "follow-up"}
	require.NoError(t, chatRepo.Save(ctx, another))

	// 4. Replay lookups find the stored exchange.
	found, err := chatRepo.FindByClientID(ctx, c.ID, "client-abc")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	storedReply, err := chatRepo.FindReply(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "reply one", storedReply.Text)
	require.NotNil(t, storedReply.ReplyTo)
	assert.Equal(t, first.ID, *storedReply.ReplyTo)

	// 5. History comes back in insertion order.
	messages, err := chatRepo.List(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, first.ID, messages[0].ID)

	// 6. Deleting the claim cascades to its conversation.
	_, err = s.DB.ExecContext(ctx, "DELETE FROM claims WHERE id = $1", c.ID)
	require.NoError(t, err)

	count, err := chatRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
