package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"naszgpt-backend/internal/logger"
	"naszgpt-backend/internal/metrics"
	"naszgpt-backend/internal/models"
	"naszgpt-backend/internal/repository"
)

const (
	DefaultPersonality = `You are a helpful AI assistant who answers the user's questions in a way that is:
- Concise and easy to understand
- Factual and accurate
- Friendly and professional
- Adapted to the context of the conversation

If you receive a document for analysis, study it carefully and answer questions based on it.`

	documentHeader = "You have also received the following document for analysis:"

	traceName = "chat-completion"

	maxMessageChars     = 32000
	maxNameChars        = 100
	maxPersonalityChars = 8000
)

// RateSource provides the current USD exchange rate.
type RateSource interface {
	Current(ctx context.Context) (*models.ExchangeRate, error)
	Currency() string
}

// Notifier pushes state-change events to every open tab of a session.
type Notifier interface {
	NotifySession(sessionID string, msg models.WSMessage)
}

type ChatConfig struct {
	DefaultModel        string
	DefaultPersonality  string
	HistoryLimit        int
	MaxCompletionTokens int
	Temperature         float32
}

type ChatService struct {
	store       repository.ConversationStore
	completions *CompletionRouter
	catalog     *Catalog
	extractor   *FileExtractService
	rates       RateSource
	reporter    Reporter
	markdown    *MarkdownRenderer
	sessions    *SessionRegistry
	notifier    Notifier
	cfg         ChatConfig
	now         func() time.Time
}

func NewChatService(
	store repository.ConversationStore,
	completions *CompletionRouter,
	catalog *Catalog,
	extractor *FileExtractService,
	rates RateSource,
	reporter Reporter,
	sessions *SessionRegistry,
	cfg ChatConfig,
) *ChatService {
	if cfg.DefaultPersonality == "" {
		cfg.DefaultPersonality = DefaultPersonality
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 1
	}
	if reporter == nil {
		reporter = NoopReporter{}
	}
	return &ChatService{
		store:       store,
		completions: completions,
		catalog:     catalog,
		extractor:   extractor,
		rates:       rates,
		reporter:    reporter,
		markdown:    NewMarkdownRenderer(),
		sessions:    sessions,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetNotifier wires the websocket hub once it exists.
func (s *ChatService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *ChatService) notify(sessionID, event string, convID *uuid.UUID) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifySession(sessionID, models.WSMessage{
		Type: event,
		Payload: models.SessionUpdate{
			SessionID:      sessionID,
			ConversationID: convID,
			At:             s.now().UTC(),
		},
	})
}

// Models returns the catalog with availability of each provider filled in.
func (s *ChatService) Models() []models.ModelInfo {
	return lo.Map(s.catalog.Models(), func(m models.ModelInfo, _ int) models.ModelInfo {
		m.Available = s.completions.Supports(m.Provider)
		return m
	})
}

func (s *ChatService) defaultModel() string {
	return s.catalog.Default(s.cfg.DefaultModel)
}

// Session returns everything the UI needs for the session's current screen.
func (s *ChatService) Session(ctx context.Context, sessionID string) (*models.SessionView, error) {
	st := s.sessions.acquire(sessionID)
	defer s.sessions.release(st)

	conv, err := s.ensureActive(ctx, sessionID, st)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rate := s.currentRate(ctx, st)

	view := &models.SessionView{
		SessionID:     sessionID,
		Conversation:  s.conversationView(conv, rate),
		Conversations: list,
		ExchangeRate:  rate,
		Models:        s.Models(),
		DefaultModel:  s.defaultModel(),
	}
	if st.pending != nil {
		view.PendingAttachment = attachmentView(st.pending)
	}
	return view, nil
}

// SendMessage runs one chat turn: the user message and the assistant reply
// are stored together with their usage record, or nothing is stored.
func (s *ChatService) SendMessage(ctx context.Context, sessionID string, req models.ChatRequest) (*models.ChatResponse, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, &ValidationError{Fields: map[string]string{"message": "Message is required"}}
	}
	if len([]rune(text)) > maxMessageChars {
		return nil, &ValidationError{Fields: map[string]string{"message": fmt.Sprintf("Message must be at most %d characters", maxMessageChars)}}
	}

	st := s.sessions.acquire(sessionID)
	defer s.sessions.release(st)

	log := logger.FromContext(ctx)

	conv, err := s.ensureActive(ctx, sessionID, st)
	if err != nil {
		return nil, err
	}

	model := conv.Model
	info, ok := s.catalog.Get(model)
	if !ok {
		model = s.defaultModel()
		info, _ = s.catalog.Get(model)
	}

	user := models.NewMessage(models.RoleUser, text)
	if st.pending != nil {
		user.Attachment = st.pending
	}

	prompt := s.buildPrompt(conv, user)

	started := s.now()
	res, err := s.completions.Complete(ctx, CompletionRequest{
		Model:               model,
		Messages:            prompt,
		MaxCompletionTokens: s.cfg.MaxCompletionTokens,
		Temperature:         s.cfg.Temperature,
	})
	ended := s.now()

	tr := Trace{
		Name:           traceName,
		SessionID:      sessionID,
		ConversationID: conv.ID,
		Provider:       info.Provider,
		Model:          model,
		Input:          prompt,
		StartedAt:      started,
		EndedAt:        ended,
	}

	if err != nil {
		tr.Err = err
		SafeReport(ctx, s.reporter, tr)
		log.Warn("completion failed", "model", model, "error", err)

		var ce *CompletionError
		var ve *ValidationError
		if errors.As(err, &ce) || errors.As(err, &ve) {
			return nil, err
		}
		return nil, &CompletionError{Provider: info.Provider, Model: model, Err: err}
	}

	cost, cerr := s.catalog.Cost(model, res.PromptTokens, res.CompletionTokens)
	if cerr != nil {
		log.Warn("could not price completion", "model", model, "error", cerr)
	}

	tr.Output = res.Content
	tr.Truncated = res.Truncated
	tr.PromptTokens = res.PromptTokens
	tr.CompletionTokens = res.CompletionTokens
	tr.TotalTokens = res.TotalTokens
	tr.CostUSD = cost
	SafeReport(ctx, s.reporter, tr)

	reply := models.NewMessage(models.RoleAssistant, res.Content)
	reply.Truncated = res.Truncated

	rate := s.currentRate(ctx, st)
	usage := models.UsageRecord{
		ID:               uuid.New(),
		MessageID:        reply.ID,
		Model:            model,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		TotalTokens:      res.TotalTokens,
		ResponseTimeMs:   res.Latency.Milliseconds(),
		CostUSD:          cost,
		Currency:         s.rates.Currency(),
		CreatedAt:        s.now().UTC(),
	}
	if rate != nil {
		usage.ExchangeRate = decimal.NewNullDecimal(rate.Rate)
		usage.CostLocal = decimal.NewNullDecimal(cost.Mul(rate.Rate))
	}

	if err := s.store.AppendExchange(ctx, conv.ID, []models.Message{user, reply}, usage); err != nil {
		return nil, fmt.Errorf("failed to store exchange: %w", err)
	}
	st.pending = nil

	metrics.LLMCostUSD.WithLabelValues(model).Add(cost.InexactFloat64())
	log.Info("chat turn completed",
		"conversation_id", conv.ID,
		"model", model,
		"prompt_tokens", res.PromptTokens,
		"completion_tokens", res.CompletionTokens,
		"latency_ms", usage.ResponseTimeMs,
	)

	conv.Append(user, reply)
	conv.RecordUsage(usage)
	s.notify(sessionID, models.EventMessageAppended, &conv.ID)

	return &models.ChatResponse{
		UserMessage: s.messageView(conv, user),
		Reply:       s.messageView(conv, reply),
		Usage:       usage,
		Summary:     Summarize(conv.Usage, rate, s.rates.Currency()),
	}, nil
}

// buildPrompt assembles the system prompt and the recent history followed by
// the new user message.
func (s *ChatService) buildPrompt(conv *models.Conversation, user models.Message) []models.Message {
	system := conv.Personality
	if strings.TrimSpace(system) == "" {
		system = s.cfg.DefaultPersonality
	}

	doc := user.Attachment
	if doc == nil {
		doc = conv.LatestAttachment()
	}
	if doc != nil {
		system += "\n\n" + documentHeader + "\n\n" + doc.Text
	}

	history := conv.Window(s.cfg.HistoryLimit)
	msgs := make([]models.Message, 0, len(history)+2)
	msgs = append(msgs, models.NewMessage(models.RoleSystem, system))
	msgs = append(msgs, history...)
	msgs = append(msgs, user)
	return msgs
}

// AttachFile extracts filename's text and keeps it as the pending attachment
// of the session. The extension of filename selects the parser.
func (s *ChatService) AttachFile(ctx context.Context, sessionID, filename string, data []byte) (*models.AttachmentView, error) {
	att, err := s.extractor.Extract(filename, filepath.Ext(filename), data)
	if err != nil {
		return nil, err
	}

	st := s.sessions.acquire(sessionID)
	st.pending = att
	s.sessions.release(st)

	logger.FromContext(ctx).Info("attachment extracted", "name", att.Name, "chars", att.Chars)
	s.notify(sessionID, models.EventAttachmentChanged, nil)
	return attachmentView(att), nil
}

func (s *ChatService) ClearAttachment(ctx context.Context, sessionID string) {
	st := s.sessions.acquire(sessionID)
	st.pending = nil
	s.sessions.release(st)

	s.notify(sessionID, models.EventAttachmentChanged, nil)
}

func (s *ChatService) ListConversations(ctx context.Context, sessionID string) ([]models.ConversationSummary, error) {
	return s.store.ListBySession(ctx, sessionID)
}

func (s *ChatService) CreateConversation(ctx context.Context, sessionID string, req models.CreateConversationRequest) (*models.ConversationView, error) {
	name := strings.TrimSpace(req.Name)
	if len([]rune(name)) > maxNameChars {
		return nil, &ValidationError{Fields: map[string]string{"name": fmt.Sprintf("Name must be at most %d characters", maxNameChars)}}
	}

	st := s.sessions.acquire(sessionID)
	defer s.sessions.release(st)

	conv, err := s.newConversation(ctx, sessionID, name)
	if err != nil {
		return nil, err
	}
	st.active = conv.ID

	s.notify(sessionID, models.EventConversationChanged, &conv.ID)
	view := s.conversationView(conv, s.currentRate(ctx, st))
	return &view, nil
}

func (s *ChatService) newConversation(ctx context.Context, sessionID, name string) (*models.Conversation, error) {
	if name == "" {
		list, err := s.store.ListBySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		name = fmt.Sprintf("Conversation %d", len(list)+1)
	}

	conv := models.NewConversation(sessionID, name, s.cfg.DefaultPersonality, s.defaultModel())
	if err := s.store.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *ChatService) GetConversation(ctx context.Context, sessionID string, id uuid.UUID) (*models.ConversationView, error) {
	st := s.sessions.acquire(sessionID)
	defer s.sessions.release(st)

	conv, err := s.owned(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}
	view := s.conversationView(conv, s.currentRate(ctx, st))
	return &view, nil
}

// ActivateConversation makes id the conversation new messages go to.
func (s *ChatService) ActivateConversation(ctx context.Context, sessionID string, id uuid.UUID) (*models.ConversationView, error) {
	st := s.sessions.acquire(sessionID)
	defer s.sessions.release(st)

	conv, err := s.owned(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}
	st.active = conv.ID

	s.notify(sessionID, models.EventConversationChanged, &conv.ID)
	view := s.conversationView(conv, s.currentRate(ctx, st))
	return &view, nil
}

func (s *ChatService) UpdateConversation(ctx context.Context, sessionID string, id uuid.UUID, req models.UpdateConversationRequest) (*models.ConversationView, error) {
	fieldErrors := make(map[string]string)
	if req.Name != nil {
		n := strings.TrimSpace(*req.Name)
		switch {
		case n == "":
			fieldErrors["name"] = "Name is required"
		case len([]rune(n)) > maxNameChars:
			fieldErrors["name"] = fmt.Sprintf("Name must be at most %d characters", maxNameChars)
		}
	}
	if req.Personality != nil {
		p := strings.TrimSpace(*req.Personality)
		switch {
		case p == "":
			fieldErrors["personality"] = "Personality is required"
		case len([]rune(p)) > maxPersonalityChars:
			fieldErrors["personality"] = fmt.Sprintf("Personality must be at most %d characters", maxPersonalityChars)
		}
	}
	if req.Model != nil {
		if _, ok := s.catalog.Get(*req.Model); !ok {
			fieldErrors["model"] = fmt.Sprintf("Unknown model %q", *req.Model)
		}
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	st := s.sessions.acquire(sessionID)
	defer s.sessions.release(st)

	conv, err := s.owned(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		conv.Name = strings.TrimSpace(*req.Name)
	}
	if req.Personality != nil {
		conv.Personality = strings.TrimSpace(*req.Personality)
	}
	if req.Model != nil {
		conv.SelectModel(*req.Model)
	}
	if err := s.store.Update(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}

	s.notify(sessionID, models.EventConversationChanged, &conv.ID)
	view := s.conversationView(conv, s.currentRate(ctx, st))
	return &view, nil
}

// ClearConversation drops the history and usage of id but keeps its settings.
func (s *ChatService) ClearConversation(ctx context.Context, sessionID string, id uuid.UUID) (*models.ConversationView, error) {
	st := s.sessions.acquire(sessionID)
	defer s.sessions.release(st)

	conv, err := s.owned(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.ClearMessages(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to clear conversation: %w", err)
	}
	conv.Clear()

	s.notify(sessionID, models.EventConversationChanged, &conv.ID)
	view := s.conversationView(conv, s.currentRate(ctx, st))
	return &view, nil
}

// DeleteConversation removes id. When it was the active conversation the
// newest remaining one becomes active, or a fresh one is created. The active
// conversation after the delete is returned.
func (s *ChatService) DeleteConversation(ctx context.Context, sessionID string, id uuid.UUID) (*models.ConversationView, error) {
	st := s.sessions.acquire(sessionID)
	defer s.sessions.release(st)

	if _, err := s.owned(ctx, sessionID, id); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "Conversation not found"}
		}
		return nil, fmt.Errorf("failed to delete conversation: %w", err)
	}
	if st.active == id {
		st.active = uuid.Nil
	}

	conv, err := s.ensureActive(ctx, sessionID, st)
	if err != nil {
		return nil, err
	}

	s.notify(sessionID, models.EventConversationChanged, &conv.ID)
	view := s.conversationView(conv, s.currentRate(ctx, st))
	return &view, nil
}

func (s *ChatService) ConversationUsage(ctx context.Context, sessionID string, id uuid.UUID) (*models.UsageReport, error) {
	st := s.sessions.acquire(sessionID)
	defer s.sessions.release(st)

	conv, err := s.owned(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}
	return &models.UsageReport{
		ConversationID: conv.ID,
		Records:        conv.Usage,
		Summary:        Summarize(conv.Usage, s.currentRate(ctx, st), s.rates.Currency()),
	}, nil
}

// EndSession deletes every conversation of the session and forgets its state.
func (s *ChatService) EndSession(ctx context.Context, sessionID string) error {
	st := s.sessions.acquire(sessionID)
	defer s.sessions.release(st)

	if err := s.store.DeleteBySession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session conversations: %w", err)
	}
	st.active = uuid.Nil
	st.pending = nil
	st.rateOverride = nil
	s.sessions.forget(sessionID, st)

	logger.FromContext(ctx).Info("session ended")
	s.notify(sessionID, models.EventSessionEnded, nil)
	return nil
}

// SetRateOverride pins the exchange rate used for the session's local costs.
func (s *ChatService) SetRateOverride(ctx context.Context, sessionID string, rate decimal.Decimal) (*models.ExchangeRate, error) {
	if !rate.IsPositive() {
		return nil, &ValidationError{Fields: map[string]string{"rate": "Rate must be greater than zero"}}
	}

	st := s.sessions.acquire(sessionID)
	defer s.sessions.release(st)

	st.rateOverride = &rate
	s.notify(sessionID, models.EventRateChanged, nil)
	return s.currentRate(ctx, st), nil
}

// ClearRateOverride returns to the fetched rate, which may be nil when the
// rate service is unavailable.
func (s *ChatService) ClearRateOverride(ctx context.Context, sessionID string) *models.ExchangeRate {
	st := s.sessions.acquire(sessionID)
	defer s.sessions.release(st)

	st.rateOverride = nil
	s.notify(sessionID, models.EventRateChanged, nil)
	return s.currentRate(ctx, st)
}

// currentRate prefers the session override and falls back to the fetched
// rate. nil means no rate is available.
func (s *ChatService) currentRate(ctx context.Context, st *sessionState) *models.ExchangeRate {
	if st.rateOverride != nil {
		return &models.ExchangeRate{
			Base:       exchangeRateBase,
			Quote:      s.rates.Currency(),
			Rate:       *st.rateOverride,
			FetchedAt:  s.now().UTC(),
			Overridden: true,
		}
	}
	rate, err := s.rates.Current(ctx)
	if err != nil {
		return nil
	}
	return rate
}

// ensureActive returns the active conversation of the session, falling back
// to the newest one and finally creating a new conversation.
func (s *ChatService) ensureActive(ctx context.Context, sessionID string, st *sessionState) (*models.Conversation, error) {
	if st.active != uuid.Nil {
		conv, err := s.store.Get(ctx, st.active)
		switch {
		case err == nil && conv.SessionID == sessionID:
			return conv, nil
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}

	list, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		conv, err := s.store.Get(ctx, list[0].ID)
		if err != nil {
			return nil, err
		}
		st.active = conv.ID
		return conv, nil
	}

	conv, err := s.newConversation(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}
	st.active = conv.ID
	return conv, nil
}

// owned loads id and checks it belongs to the session. Conversations of
// other sessions are reported as not found.
func (s *ChatService) owned(ctx context.Context, sessionID string, id uuid.UUID) (*models.Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && conv.SessionID != sessionID) {
		return nil, &NotFoundError{Message: "Conversation not found"}
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ChatService) messageView(conv *models.Conversation, m models.Message) models.MessageView {
	v := models.MessageView{Message: m}
	if m.Role == models.RoleAssistant {
		v.ContentHTML = s.markdown.Render(m.Content)
		v.Usage = conv.UsageFor(m.ID)
	}
	return v
}

func (s *ChatService) conversationView(conv *models.Conversation, rate *models.ExchangeRate) models.ConversationView {
	return models.ConversationView{
		ID:          conv.ID,
		Name:        conv.Name,
		Personality: conv.Personality,
		Model:       conv.Model,
		Messages: lo.Map(conv.Messages, func(m models.Message, _ int) models.MessageView {
			return s.messageView(conv, m)
		}),
		Summary:   Summarize(conv.Usage, rate, s.rates.Currency()),
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}

func attachmentView(a *models.Attachment) *models.AttachmentView {
	return &models.AttachmentView{
		Attachment: *a,
		Preview:    a.Preview(PreviewChars),
	}
}
