package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"claimscompanion/backend/internal/config"
	"claimscompanion/backend/internal/middleware"
	"claimscompanion/backend/internal/retrieval"

	"claimscompanion/backend/features/claim"
)

const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// Canned replies keep the endpoint deterministic when generation cannot run.
const (
	fallbackReply  = "I'm having trouble generating a response right now."
	noContextReply = "I don't have enough policy information to answer that yet. I can still help with your claim status, required documents, and next steps."
	chatTopK       = 3
	systemPreamble = "You are a helpful, concise insurance claims assistant. Use the provided context from policy documents to answer the user's question. Answer in plain English; keep replies short (2-5 sentences) unless the user asks for detail. If the user asks for status or next steps, be clear and actionable. Never invent policy information. If something is unknown, say what you can do next."
)

type Message struct {
	ID              int64  `json:"id"`
	ClaimID         int64  `json:"claim_id"`
	UserID          *int64 `json:"user_id,omitempty"`
	Role            string `json:"message_type"`
	Text            string `json:"message_text"`
	ClientMessageID string `json:"client_message_id,omitempty"`
	ReplyTo         *int64 `json:"reply_to,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// Exchange is one stored user message and the reply generated for it.
type Exchange struct {
	User *Message `json:"user_message"`
	AI   *Message `json:"ai_message"`
}

// Event is the broadcast payload published for every stored message.
type Event struct {
	ID            int64  `json:"id"`
	ClaimID       int64  `json:"claim_id"`
	MessageType   string `json:"message_type"`
	MessageText   string `json:"message_text"`
	CreatedAt     string `json:"created_at"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ErrDuplicateMessage reports a client message id that was already ingested.
var ErrDuplicateMessage = errors.New("client message id already ingested")

type Repository interface {
	Save(ctx context.Context, m *Message) error
	FindByClientID(ctx context.Context, claimID int64, clientMessageID string) (*Message, error)
	FindReply(ctx context.Context, replyTo int64) (*Message, error)
	List(ctx context.Context, claimID int64) ([]Message, error)
	Count(ctx context.Context) (int, error)
}

// ClaimSource provides the claim context injected into the prompt.
type ClaimSource interface {
	Describe(ctx context.Context, id int64) (*claim.Summary, error)
}

// Responder generates the assistant reply. A nil Responder degrades to the
// canned fallback.
type Responder interface {
	CompleteText(ctx context.Context, system, user string) (string, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo      Repository
	claims    ClaimSource
	rag       *retrieval.Service
	responder Responder
	pub       EventPublisher
}

func NewService(repo Repository, claims ClaimSource, rag *retrieval.Service, responder Responder, pub EventPublisher) *Service {
	return &Service{repo: repo, claims: claims, rag: rag, responder: responder, pub: pub}
}

// Send ingests a user message, generates a grounded reply, and stores and
// broadcasts both. A repeated client message id replays the stored exchange
// without generating again.
func (s *Service) Send(ctx context.Context, claimID, userID int64, text, clientMessageID string) (*Exchange, error) {
	summary, err := s.claims.Describe(ctx, claimID)
	if err != nil {
		return nil, err
	}

	if clientMessageID != "" {
		if replay, err := s.replay(ctx, claimID, clientMessageID); err == nil {
			slog.InfoContext(ctx, "replaying stored exchange", "claim_id", claimID, "client_message_id", clientMessageID)
			return replay, nil
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	userMsg := &Message{
		ClaimID:         claimID,
		UserID:          &userID,
		Role:            RoleUser,
		Text:            text,
		ClientMessageID: clientMessageID,
	}
	if err := s.repo.Save(ctx, userMsg); err != nil {
		if errors.Is(err, ErrDuplicateMessage) {
			// Lost the race on the unique index: the first writer owns
			// the exchange.
			return s.replay(ctx, claimID, clientMessageID)
		}
		return nil, err
	}
	s.broadcast(ctx, userMsg)

	reply := s.generate(ctx, summary, text)

	aiMsg := &Message{
		ClaimID: claimID,
		Role:    RoleAI,
		Text:    reply,
		ReplyTo: &userMsg.ID,
	}
	if err := s.repo.Save(ctx, aiMsg); err != nil {
		return nil, err
	}
	s.broadcast(ctx, aiMsg)

	return &Exchange{User: userMsg, AI: aiMsg}, nil
}

func (s *Service) History(ctx context.Context, claimID int64) ([]Message, error) {
	if _, err := s.claims.Describe(ctx, claimID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, claimID)
}

func (s *Service) replay(ctx context.Context, claimID int64, clientMessageID string) (*Exchange, error) {
	userMsg, err := s.repo.FindByClientID(ctx, claimID, clientMessageID)
	if err != nil {
		return nil, err
	}
	aiMsg, err := s.repo.FindReply(ctx, userMsg.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Exchange{User: userMsg}, nil
		}
		return nil, err
	}
	return &Exchange{User: userMsg, AI: aiMsg}, nil
}

func (s *Service) generate(ctx context.Context, summary *claim.Summary, userText string) string {
	chunks := s.rag.RetrieveHybrid(ctx, userText, chatTopK)
	if len(chunks) == 0 {
		return noContextReply
	}
	if s.responder == nil {
		return fallbackReply
	}

	reply, err := s.responder.CompleteText(ctx, systemPrompt(summary, chunks), userText)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate reply", "error", err)
		return fallbackReply
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return fallbackReply
	}
	return reply
}

func systemPrompt(summary *claim.Summary, chunks []retrieval.Result) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nClaim context:\n")
	fmt.Fprintf(&b, "- Claim number: %s\n", orUnknown(summary.ClaimNumber))
	fmt.Fprintf(&b, "- Claim type: %s\n", orUnknown(summary.ClaimType))
	fmt.Fprintf(&b, "- Status: %s\n", orUnknown(summary.Status))
	fmt.Fprintf(&b, "- Created: %s\n", orUnknown(summary.Created))
	fmt.Fprintf(&b, "- Incident description: %s\n", orUnknown(summary.Description))
	fmt.Fprintf(&b, "- Document checklist progress: %d%% (%s)\n",
		summary.ValidationProgress, orUnknown(summary.ValidationStatus))
	b.WriteString("\nRelevant policy/document context:\n")
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(c.Text)
	}
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func (s *Service) broadcast(ctx context.Context, m *Message) {
	event := Event{
		ID:            m.ID,
		ClaimID:       m.ClaimID,
		MessageType:   m.Role,
		MessageText:   m.Text,
		CreatedAt:     m.CreatedAt,
		CorrelationID: middleware.GetCorrelationID(ctx),
	}
	body, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal chat event", "error", err)
		return
	}
	if err := s.pub.Publish(config.TopicChatMessage, body); err != nil {
		slog.ErrorContext(ctx, "failed to publish chat event", "claim_id", m.ClaimID, "error", err)
	}
}
