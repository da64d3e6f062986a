package extensions

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/models"
	"github.com/xaenox/modmail/internal/storage"
)

// maxBufferedMessages caps how much conversation text the summarizer keeps
// per open thread.
const maxBufferedMessages = 50

// Summarizer collects a thread's messages while it is open and, when the
// thread closes, asks the chat-completion API for a short digest which it
// appends to the thread's notes.
type Summarizer struct {
	client    *openai.Client
	store     storage.Storage
	model     string
	maxTokens int
	logger    *zap.Logger

	mu       sync.Mutex
	buffered map[string][]string // threadID -> message contents
}

func NewSummarizer(apiKey, model string, maxTokens int, store storage.Storage, logger *zap.Logger) *Summarizer {
	return &Summarizer{
		client:    openai.NewClient(apiKey),
		store:     store,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
		buffered:  make(map[string][]string),
	}
}

func (s *Summarizer) OnThreadCreated(ctx context.Context, thread *models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffered[thread.ID] = nil
	return nil
}

func (s *Summarizer) OnMessageProcessed(ctx context.Context, msg models.MessageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffered[msg.ThreadID]
	if len(buf) >= maxBufferedMessages {
		return nil
	}
	s.buffered[msg.ThreadID] = append(buf, msg.Content)
	return nil
}

func (s *Summarizer) OnThreadClosed(ctx context.Context, thread *models.Thread, reason string) error {
	s.mu.Lock()
	messages := s.buffered[thread.ID]
	delete(s.buffered, thread.ID)
	s.mu.Unlock()

	if len(messages) == 0 {
		return nil
	}

	prompt := fmt.Sprintf(`Summarize the following support conversation in 2-3 sentences.
Close reason: %s

Conversation:
%s`, reason, strings.Join(messages, "\n"))

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return fmt.Errorf("requesting thread summary: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("empty completion response for thread %s", thread.ID)
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return nil
	}

	if _, err := s.store.UpdateThread(ctx, thread.GuildID, thread.ID, func(t *models.Thread) error {
		t.Notes = append(t.Notes, fmt.Sprintf("summary: %s", summary))
		return nil
	}); err != nil {
		return fmt.Errorf("saving thread summary: %w", err)
	}

	s.logger.Info("thread summarized",
		zap.String("thread_id", thread.ID),
		zap.Int("messages", len(messages)))
	return nil
}
