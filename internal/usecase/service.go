package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"storybook-agent/internal/domain"
	"storybook-agent/internal/story"
)

const (
	defaultPollInterval    = time.Second
	defaultMaxPollAttempts = 50
	defaultMaxMessageLen   = 2000
	defaultMaxTurns        = 50
	defaultStoryListLimit  = 20

	assistantIDKey = "config/assistant_id"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, key string) (string, error)
}

// Gateway is the remote assistant service.
type Gateway interface {
	CreateThread(ctx context.Context) (string, error)
	CreateRun(ctx context.Context, threadID, assistantID, instructions, userText string) (domain.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (domain.Run, error)
	ListMessages(ctx context.Context, threadID string) ([]domain.ThreadMessage, error)
	ListAllMessages(ctx context.Context, threadID string) ([]domain.ThreadMessage, error)
	Moderate(ctx context.Context, input string) (bool, error)
}

// StoryArchive keeps finished stories and turn counters.
type StoryArchive interface {
	GetConversationTurnCount(ctx context.Context, handle string) (int, error)
	RecordTurn(ctx context.Context, handle string) (int, error)
	SaveStory(ctx context.Context, s domain.ArchivedStory) error
	ListStories(ctx context.Context, handle string, limit int) ([]domain.ArchivedStory, error)
}

// Config holds the tunables read in main. Zero values select defaults.
type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	MaxMessageLen   int
	MaxTurns        int
	StoryListLimit  int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = defaultMaxPollAttempts
	}
	if c.MaxMessageLen <= 0 {
		c.MaxMessageLen = defaultMaxMessageLen
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = defaultMaxTurns
	}
	if c.StoryListLimit <= 0 {
		c.StoryListLimit = defaultStoryListLimit
	}
	return c
}

type Option func(*StoryService)

// WithSleeper replaces the wait between run polls.
func WithSleeper(sleep Sleeper) Option {
	return func(s *StoryService) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *StoryService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// StoryService runs one conversation turn against the assistant gateway and
// normalizes the reply.
type StoryService struct {
	params  ParamGetter
	gateway Gateway
	archive StoryArchive
	cfg     Config
	sleep   Sleeper
	logger  *slog.Logger

	cacheMu     sync.RWMutex
	assistantID string
}

type SendInput struct {
	ConversationHandle string
	Text               string
	StoryProfile       domain.StoryProfile
}

func NewStoryService(p ParamGetter, gw Gateway, archive StoryArchive, cfg Config, opts ...Option) (*StoryService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if gw == nil {
		return nil, errors.New("usecase: gateway must not be nil")
	}
	if archive == nil {
		return nil, errors.New("usecase: story archive must not be nil")
	}
	s := &StoryService{
		params:  p,
		gateway: gw,
		archive: archive,
		cfg:     cfg.withDefaults(),
		sleep:   sleepContext,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateConversation opens a new remote thread and returns its handle.
func (s *StoryService) CreateConversation(ctx context.Context) (string, error) {
	handle, err := s.gateway.CreateThread(ctx)
	if err != nil {
		return "", gatewayError("openai_create_thread_error", err)
	}
	return handle, nil
}

// SendMessage appends the user's text, runs the assistant and extracts the
// newest assistant reply.
func (s *StoryService) SendMessage(ctx context.Context, in SendInput) (domain.TurnResult, error) {
	handle := strings.TrimSpace(in.ConversationHandle)
	if handle == "" {
		return domain.TurnResult{}, invalidInput("missing_conversation_handle", "conversationHandle is required")
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return domain.TurnResult{}, invalidInput("empty_text", "text is required")
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxMessageLen {
		return domain.TurnResult{}, invalidInput("text_too_long", fmt.Sprintf("text must be at most %d characters", s.cfg.MaxMessageLen))
	}

	assistantID, err := s.ensureConfig(ctx)
	if err != nil {
		return domain.TurnResult{}, newError(ErrorConfiguration, "assistant_id_load_error", err)
	}

	turns, err := s.archive.GetConversationTurnCount(ctx, handle)
	if err != nil {
		s.logger.Warn("turn count unavailable", "conversation", handle, "err", err)
	} else if turns >= s.cfg.MaxTurns {
		return domain.TurnResult{}, invalidInput("conversation_turn_limit", "This story chat has reached its limit. Please start a new story.")
	}

	flagged, err := s.gateway.Moderate(ctx, text)
	if err != nil {
		return domain.TurnResult{}, gatewayError("moderation_error", err)
	}
	if flagged {
		return domain.TurnResult{}, newError(ErrorInvalidMessage, "moderation_flagged", nil)
	}

	run, err := s.gateway.CreateRun(ctx, handle, assistantID, buildRunInstructions(in.StoryProfile), text)
	if err != nil {
		return domain.TurnResult{}, gatewayError("openai_create_run_error", err)
	}
	if run.ThreadID == "" {
		run.ThreadID = handle
	}
	if _, err := s.awaitRun(ctx, run); err != nil {
		return domain.TurnResult{}, err
	}

	msgs, err := s.gateway.ListMessages(ctx, handle)
	if err != nil {
		return domain.TurnResult{}, gatewayError("openai_list_messages_error", err)
	}
	reply, ok := latestAssistantMessage(msgs)
	if !ok {
		return domain.TurnResult{}, newError(ErrorUpstream, "no_assistant_reply", nil)
	}

	result := story.Extract(reply.Text)
	s.archiveTurn(ctx, handle, in.StoryProfile, result)

	out := domain.TurnResult{
		Message:      result.RawMessage,
		StoryProfile: result.StoryProfile,
		IsComplete:   result.IsComplete,
		Success:      result.Success,
	}
	if result.IsComplete {
		out.Story = result.DisplayText
	}
	return out, nil
}

// History returns every thread message in chronological order, each run
// through the extractor on its own. The remote thread is not modified.
func (s *StoryService) History(ctx context.Context, handle string) ([]domain.HistoryMessage, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, invalidInput("missing_conversation_handle", "conversationHandle is required")
	}
	msgs, err := s.gateway.ListAllMessages(ctx, handle)
	if err != nil {
		return nil, gatewayError("openai_list_messages_error", err)
	}

	now := time.Now().UTC()
	history := make([]domain.HistoryMessage, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		history = append(history, toHistoryMessage(msgs[i], len(history), now))
	}
	return history, nil
}

// Stories lists archived stories for a conversation, newest first.
func (s *StoryService) Stories(ctx context.Context, handle string) ([]domain.ArchivedStory, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, invalidInput("missing_conversation_handle", "conversationHandle is required")
	}
	stories, err := s.archive.ListStories(ctx, handle, s.cfg.StoryListLimit)
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_list_stories_error", err)
	}
	return stories, nil
}

// archiveTurn records the turn and, for a finished story, stores it. The
// reply has already been produced, so failures are only logged.
func (s *StoryService) archiveTurn(ctx context.Context, handle string, known domain.StoryProfile, result domain.ExtractionResult) {
	if result.IsComplete && strings.TrimSpace(result.DisplayText) != "" {
		profile := domain.StoryProfile{}.Merge(known).Merge(result.StoryProfile)
		profile[domain.StoryTextKey] = result.DisplayText
		err := s.archive.SaveStory(ctx, domain.ArchivedStory{
			ConversationHandle: handle,
			StoryText:          result.DisplayText,
			Profile:            profile,
		})
		if err != nil {
			s.logger.Error("failed to archive story", "conversation", handle, "err", err)
		}
		return
	}
	if _, err := s.archive.RecordTurn(ctx, handle); err != nil {
		s.logger.Error("failed to record turn", "conversation", handle, "err", err)
	}
}

func (s *StoryService) ensureConfig(ctx context.Context) (string, error) {
	s.cacheMu.RLock()
	if s.assistantID != "" {
		id := s.assistantID
		s.cacheMu.RUnlock()
		return id, nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.assistantID != "" {
		return s.assistantID, nil
	}

	id, err := s.params.GetParameter(ctx, assistantIDKey)
	if err != nil {
		return "", fmt.Errorf("usecase: load assistant id: %w", err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("usecase: assistant id is empty")
	}
	s.assistantID = id
	return id, nil
}

// latestAssistantMessage picks the assistant message with the highest
// created_at. On equal timestamps the one listed first wins; the gateway
// lists newest first.
func latestAssistantMessage(msgs []domain.ThreadMessage) (domain.ThreadMessage, bool) {
	var (
		best  domain.ThreadMessage
		found bool
	)
	for _, m := range msgs {
		if m.Role != domain.RoleAssistant {
			continue
		}
		if !found || m.CreatedAt > best.CreatedAt {
			best = m
			found = true
		}
	}
	return best, found
}

// toHistoryMessage maps one thread message. A message without created_at is
// stamped with now.
func toHistoryMessage(m domain.ThreadMessage, idx int, now time.Time) domain.HistoryMessage {
	result := story.Extract(m.Text)

	id := m.ID
	if id == "" {
		id = strconv.Itoa(idx + 1)
	}
	createdAt := now
	if m.CreatedAt > 0 {
		createdAt = time.Unix(m.CreatedAt, 0).UTC()
	}
	text := m.Text
	if st := result.StoryProfile.StoryText(); st != "" {
		text = st
	}
	hm := domain.HistoryMessage{
		ChatMessage: domain.ChatMessage{
			ID:        id,
			Role:      m.Role,
			Text:      text,
			CreatedAt: createdAt,
		},
		StoryProfile: result.StoryProfile,
		IsComplete:   result.IsComplete,
	}
	if result.IsComplete {
		hm.Story = result.DisplayText
	}
	return hm
}
