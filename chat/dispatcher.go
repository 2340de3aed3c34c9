// Package chat implements the conversation dispatch pipeline: it turns one
// submitted user turn into durable message writes and exactly one completion
// call, preserving per-conversation message order under concurrency.
package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/semaphore"

	"github.com/hiwar-ai/hiwar/ai/llm"
	"github.com/hiwar-ai/hiwar/ai/prompt"
	"github.com/hiwar-ai/hiwar/store"
)

const (
	// defaultCompletionTimeout bounds a single completion call as seen by
	// the dispatcher, independent of the client's own request timeout.
	defaultCompletionTimeout = 75 * time.Second

	// jobWriteMargin is extra headroom on top of the completion timeout for
	// the persistence writes around it.
	jobWriteMargin = 15 * time.Second

	// defaultMaxConcurrentCompletions caps completion calls in flight
	// across all conversations.
	defaultMaxConcurrentCompletions = 4

	// pendingTurnLimit bounds queued turns per conversation; beyond it the
	// caller gets ErrConversationBusy instead of unbounded buffering.
	pendingTurnLimit = 16

	// queueIdleTimeout reaps the per-conversation worker after inactivity.
	queueIdleTimeout = 2 * time.Minute

	// titleMaxRunes bounds auto-derived conversation titles.
	titleMaxRunes = 48
)

// DispatchStore is the slice of the store the dispatcher needs.
type DispatchStore interface {
	CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error)
	GetConversation(ctx context.Context, find *store.FindConversation) (*store.Conversation, error)
	UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error)
	CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error)
	ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error)
	SaveAttachment(ctx context.Context, create *store.Attachment) (*store.Attachment, error)
}

// CreateConversation asks the dispatcher to open a new conversation as the
// submit target.
type CreateConversation struct {
	Title    string
	Locale   prompt.Locale
	Category *string
}

// SubmitRequest describes one user action: send this text, optionally with
// one image, in conversation ConversationID or a newly created one.
//
// Greeting is the explicit first-turn flag: it marks a conversation opened
// without a real question yet, which gets a canned assistant greeting and no
// completion call. It is never inferred from the title text.
type SubmitRequest struct {
	Text           string
	Image          []byte
	ImageMimeType  string
	ImageFilename  string
	Create         *CreateConversation
	OwnerID        int32
	ConversationID int32
	Greeting       bool
}

// Outcome reports what one submission did.
type Outcome struct {
	Err             error
	Reply           *store.Message
	UserMessage     *store.Message
	ConversationUID string
	ConversationID  int32
	Replied         bool
}

// Dispatcher serializes turn submissions per conversation and owns the
// pipeline's ordering and failure semantics.
type Dispatcher struct {
	store       DispatchStore
	completer   llm.Completer
	invalidator Invalidator
	metrics     *Metrics
	sem         *semaphore.Weighted

	completionTimeout time.Duration
	defaultLocale     prompt.Locale

	mu     sync.Mutex
	queues map[int32]*convQueue
}

// DispatcherConfig tunes the dispatcher; zero values select defaults.
type DispatcherConfig struct {
	CompletionTimeout        time.Duration
	MaxConcurrentCompletions int64
	DefaultLocale            prompt.Locale
	Metrics                  *Metrics
}

// NewDispatcher creates a dispatcher. The invalidator may be nil when no
// view layer is attached (tests, one-shot tools).
func NewDispatcher(st DispatchStore, completer llm.Completer, invalidator Invalidator, cfg DispatcherConfig) *Dispatcher {
	timeout := cfg.CompletionTimeout
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}
	maxConcurrent := cfg.MaxConcurrentCompletions
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentCompletions
	}
	locale := cfg.DefaultLocale
	if locale == "" {
		locale = prompt.LocaleEnglish
	}

	d := &Dispatcher{
		store:             st,
		completer:         completer,
		invalidator:       invalidator,
		metrics:           cfg.Metrics,
		sem:               semaphore.NewWeighted(maxConcurrent),
		completionTimeout: timeout,
		defaultLocale:     locale,
		queues:            make(map[int32]*convQueue),
	}
	return d
}

type dispatchJob struct {
	req    SubmitRequest
	conv   *store.Conversation
	result chan Outcome
}

type convQueue struct {
	conversationID int32
	jobs           chan *dispatchJob
}

// SubmitTurn runs the dispatch pipeline for one user action.
//
// The returned outcome carries the typed error taxonomy: ValidationError
// before any side effect, PersistenceError or ImageUploadError mid-pipeline,
// or a completion error after the user message is already durable.
//
// Cancelling ctx stops the wait, not the work: a turn already queued keeps
// executing under its own bounded context so the assistant reply is not
// lost when the caller navigates away.
func (d *Dispatcher) SubmitTurn(ctx context.Context, req SubmitRequest) Outcome {
	if err := validate(&req); err != nil {
		d.metrics.recordSubmit("validation_error")
		return Outcome{Err: err}
	}

	conv, err := d.resolveConversation(ctx, &req)
	if err != nil {
		d.metrics.recordSubmit(statusOf(err))
		return Outcome{Err: err}
	}

	job := &dispatchJob{
		req:    req,
		conv:   conv,
		result: make(chan Outcome, 1),
	}
	if err := d.enqueue(conv.ID, job); err != nil {
		d.metrics.recordSubmit("busy")
		return Outcome{ConversationID: conv.ID, ConversationUID: conv.UID, Err: err}
	}

	select {
	case out := <-job.result:
		return out
	case <-ctx.Done():
		// The job keeps running detached; its writes will land.
		return Outcome{ConversationID: conv.ID, ConversationUID: conv.UID, Err: ctx.Err()}
	}
}

func validate(req *SubmitRequest) error {
	if req.Create != nil && req.ConversationID != 0 {
		return &ValidationError{Reason: "target must be either an existing conversation or a creation request, not both"}
	}
	if req.Create == nil && req.ConversationID == 0 {
		return &ValidationError{Reason: "missing conversation target"}
	}
	if req.Greeting {
		if req.Create == nil {
			return &ValidationError{Reason: "greeting is only valid when creating a conversation"}
		}
		return nil
	}
	if strings.TrimSpace(req.Text) == "" {
		return &ValidationError{Reason: "text must be non-empty"}
	}
	if len(req.Image) > 0 && req.ImageMimeType == "" {
		return &ValidationError{Reason: "image mime type required"}
	}
	return nil
}

// resolveConversation creates or fetches the target conversation. Creation
// completes and is acknowledged before any message write is attempted.
func (d *Dispatcher) resolveConversation(ctx context.Context, req *SubmitRequest) (*store.Conversation, error) {
	if req.Create == nil {
		conv, err := d.store.GetConversation(ctx, &store.FindConversation{
			ID:        &req.ConversationID,
			CreatorID: &req.OwnerID,
		})
		if err != nil {
			return nil, &PersistenceError{Op: "get conversation", Err: err}
		}
		if conv == nil {
			return nil, ErrConversationNotFound
		}
		return conv, nil
	}

	locale := req.Create.Locale
	if locale == "" {
		locale = d.defaultLocale
	}
	title := strings.TrimSpace(req.Create.Title)
	if title == "" {
		title = prompt.DefaultTitle(locale)
	}

	now := time.Now().UnixMilli()
	conv, err := d.store.CreateConversation(ctx, &store.Conversation{
		UID:       shortuuid.New(),
		CreatorID: req.OwnerID,
		Title:     title,
		Locale:    string(locale),
		Category:  req.Create.Category,
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "create conversation", Err: err}
	}
	d.invalidate(conv.ID)
	return conv, nil
}

func (d *Dispatcher) enqueue(conversationID int32, job *dispatchJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[conversationID]
	if q == nil {
		q = &convQueue{
			conversationID: conversationID,
			jobs:           make(chan *dispatchJob, pendingTurnLimit),
		}
		d.queues[conversationID] = q
		d.metrics.setQueueDepth(len(d.queues))
		go d.runQueue(q)
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrConversationBusy
	}
}

// runQueue processes one conversation's turns strictly in arrival order.
// The worker reaps itself after an idle period; removal happens under the
// dispatcher lock so a concurrent enqueue either lands in the live queue or
// creates a fresh one.
func (d *Dispatcher) runQueue(q *convQueue) {
	idle := time.NewTimer(queueIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case job := <-q.jobs:
			job.result <- d.process(job)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(queueIdleTimeout)
		case <-idle.C:
			d.mu.Lock()
			if len(q.jobs) == 0 {
				delete(d.queues, q.conversationID)
				d.metrics.setQueueDepth(len(d.queues))
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(queueIdleTimeout)
		}
	}
}

// process executes one queued turn under a detached bounded context.
func (d *Dispatcher) process(job *dispatchJob) Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), d.completionTimeout+jobWriteMargin)
	defer cancel()

	out := d.run(ctx, job)
	d.metrics.recordSubmit(statusOf(out.Err))
	return out
}

func (d *Dispatcher) run(ctx context.Context, job *dispatchJob) Outcome {
	req, conv := &job.req, job.conv
	locale := prompt.ParseLocale(conv.Locale)
	out := Outcome{ConversationID: conv.ID, ConversationUID: conv.UID}

	// Bare new conversation: persist the canned greeting so the thread is
	// never visible with zero messages, and skip the completion service.
	if req.Greeting {
		greeting, err := d.store.CreateMessage(ctx, &store.Message{
			ConversationID: conv.ID,
			Role:           store.RoleAssistant,
			Content:        prompt.Greeting(locale),
			CreatedTs:      time.Now().UnixMilli(),
		})
		if err != nil {
			out.Err = &PersistenceError{Op: "persist greeting", Err: err}
			return out
		}
		d.invalidate(conv.ID)
		out.Reply = greeting
		out.Replied = true
		return out
	}

	// Upload the image before any message write so a failed upload leaves
	// no message pointing at a missing attachment.
	var imageRef *string
	var inline *llm.InlineImage
	if len(req.Image) > 0 {
		attachment, err := d.store.SaveAttachment(ctx, &store.Attachment{
			CreatorID: req.OwnerID,
			Filename:  req.ImageFilename,
			MimeType:  req.ImageMimeType,
			Blob:      req.Image,
		})
		if err != nil {
			out.Err = &ImageUploadError{Err: err}
			return out
		}
		ref := "/o/attachments/" + attachment.UID
		imageRef = &ref
		inline = &llm.InlineImage{
			MimeType: req.ImageMimeType,
			Base64:   base64.StdEncoding.EncodeToString(req.Image),
		}
	}

	// History is read before the new user message is inserted; per-queue
	// serialization guarantees no concurrent append for this conversation.
	history, err := d.store.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	if err != nil {
		out.Err = &PersistenceError{Op: "list history", Err: err}
		return out
	}

	userMsg, err := d.store.CreateMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        req.Text,
		ImageRef:       imageRef,
		CreatedTs:      afterTs(lastCreatedTs(history)),
	})
	if err != nil {
		out.Err = &PersistenceError{Op: "persist user message", Err: err}
		return out
	}
	out.UserMessage = userMsg
	d.invalidate(conv.ID)

	turns := AssembleHistory(history)
	turns = append(turns, llm.UserTurn(prompt.Augment(req.Text, locale)))

	if err := d.sem.Acquire(ctx, 1); err != nil {
		out.Err = &llm.Error{Kind: llm.KindTimeout, Err: err}
		return out
	}
	started := time.Now()
	reply, err := d.completer.Complete(ctx, turns, inline)
	d.sem.Release(1)
	d.metrics.recordCompletionLatency(time.Since(started))
	if err != nil {
		// The user message stays durable: "sent, no reply yet" is a valid,
		// recoverable terminal state.
		slog.Warn("completion failed, leaving turn unanswered",
			"conversation_id", conv.ID,
			"error", err,
		)
		out.Err = err
		return out
	}

	assistantMsg, err := d.store.CreateMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		Role:           store.RoleAssistant,
		Content:        reply,
		CreatedTs:      afterTs(userMsg.CreatedTs),
	})
	if err != nil {
		out.Err = &PersistenceError{Op: "persist assistant message", Err: err}
		return out
	}
	d.invalidate(conv.ID)

	d.touchConversation(ctx, conv, locale, history, req.Text)

	out.Reply = assistantMsg
	out.Replied = true
	return out
}

// touchConversation bumps updated_ts and, after the first real exchange,
// replaces a still-default title with one derived from the user's question.
func (d *Dispatcher) touchConversation(ctx context.Context, conv *store.Conversation, locale prompt.Locale, history []*store.Message, text string) {
	now := time.Now().UnixMilli()
	update := &store.UpdateConversation{ID: conv.ID, UpdatedTs: &now}

	if conv.Title == prompt.DefaultTitle(locale) && isGreetingOnly(history) {
		title := deriveTitle(text)
		update.Title = &title
	}

	if _, err := d.store.UpdateConversation(ctx, update); err != nil {
		slog.Warn("failed to update conversation after dispatch",
			"conversation_id", conv.ID,
			"error", err,
		)
		return
	}
	d.invalidate(conv.ID)
}

// isGreetingOnly reports whether the pre-turn history contains no user
// message yet (empty, or just the canned greeting).
func isGreetingOnly(history []*store.Message) bool {
	for _, m := range history {
		if m.Role == store.RoleUser {
			return false
		}
	}
	return true
}

// deriveTitle truncates the user's first question to a display title.
func deriveTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	runes := []rune(title)
	if len(runes) > titleMaxRunes {
		title = string(runes[:titleMaxRunes]) + "…"
	}
	return title
}

func lastCreatedTs(messages []*store.Message) int64 {
	var last int64
	for _, m := range messages {
		if m.CreatedTs > last {
			last = m.CreatedTs
		}
	}
	return last
}

// afterTs returns a timestamp strictly greater than prev, keeping message
// timestamps strictly increasing within a conversation even when several
// turns land in the same millisecond.
func afterTs(prev int64) int64 {
	now := time.Now().UnixMilli()
	if now <= prev {
		return prev + 1
	}
	return now
}

func (d *Dispatcher) invalidate(conversationID int32) {
	if d.invalidator == nil {
		return
	}
	d.invalidator.Invalidate(conversationID)
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case llm.KindOf(err) != "":
		return "completion_error"
	default:
		var ve *ValidationError
		var pe *PersistenceError
		var ie *ImageUploadError
		switch {
		case errors.As(err, &ve):
			return "validation_error"
		case errors.As(err, &pe):
			return "persistence_error"
		case errors.As(err, &ie):
			return "image_error"
		}
		return "error"
	}
}
