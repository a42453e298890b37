// Package chat implements the conversational front end over the RAG service:
// slash commands, per-user history and style-aware answers.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kk32340/SampleMLCode/engine/intent"
	"github.com/kk32340/SampleMLCode/engine/rag"
	"github.com/kk32340/SampleMLCode/engine/session"
)

// DefaultUser is used when a message carries no user id.
const DefaultUser = "default_user"

// ClearedMessage confirms /clear.
const ClearedMessage = "✅ Conversation history cleared! Starting fresh."

const helpMessage = `🤖 **Digital Agent Help**

**Available Commands:**
• /help - Show this help message
• /clear - Clear conversation history
• /status - Check bot status

**What I can do:**
✅ Answer questions from the indexed documents
✅ Maintain conversation context
✅ Adapt the tone of my answers to your question

**Tips:**
• I remember our conversation context
• Feel free to ask follow-up questions
• Use natural language - no special formatting needed

Just ask me anything! 😊`

// Asker answers a question with retrieved context.
type Asker interface {
	AskWith(ctx context.Context, req rag.AskRequest) (*rag.Answer, error)
}

// Classifier picks the response style of a message.
type Classifier interface {
	Classify(ctx context.Context, text string) (intent.Category, error)
}

// Counter reports how many entries an index holds.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Options configures a Bot. Every field is optional.
type Options struct {
	Classifier      Classifier
	Index           Counter
	Model           string
	TopK            int
	ContextMessages int
	Logger          *slog.Logger
}

// Bot turns user messages into replies. It never returns an error: every
// failure is reported in the reply text.
type Bot struct {
	asker    Asker
	sessions *session.Store
	opts     Options
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Bot answering through asker and remembering turns in sessions.
func New(asker Asker, sessions *session.Store, opts Options) *Bot {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ContextMessages <= 0 {
		opts.ContextMessages = session.DefaultContextMessages
	}
	return &Bot{asker: asker, sessions: sessions, opts: opts, log: opts.Logger, now: time.Now}
}

// Handle processes one message from userID and returns the reply.
func (b *Bot) Handle(ctx context.Context, userID, text string) string {
	if userID == "" {
		userID = DefaultUser
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "Please type a message. Send /help to see what I can do."
	}

	switch cmd := strings.ToLower(text); {
	case strings.HasPrefix(cmd, "/help"):
		return helpMessage
	case strings.HasPrefix(cmd, "/clear"):
		b.sessions.Clear(userID)
		return ClearedMessage
	case strings.HasPrefix(cmd, "/status"):
		return b.status(ctx)
	}

	req := rag.AskRequest{
		Query:   text,
		K:       b.opts.TopK,
		History: b.sessions.Context(userID, b.opts.ContextMessages),
	}
	var heading string
	if b.opts.Classifier != nil {
		cat, err := b.opts.Classifier.Classify(ctx, text)
		if err != nil {
			b.log.Warn("chat: classify failed, answering without style", "user_id", userID, "err", err)
		} else {
			req.Instruction = cat.Instruction()
			heading = cat.Heading()
		}
	}

	ans, err := b.asker.AskWith(ctx, req)
	if err != nil {
		b.log.Error("chat: ask failed", "user_id", userID, "err", err)
		return fmt.Sprintf("I encountered an error while processing your message. Please try again. Error: %v", err)
	}

	reply := ans.Answer
	if !ans.Degraded {
		reply = heading + reply
	}
	// A failed turn leaves no trace in the history.
	b.sessions.Append(userID, session.RoleUser, text)
	b.sessions.Append(userID, session.RoleAssistant, reply)
	return reply
}

func (b *Bot) status(ctx context.Context) string {
	model := "❌ Disconnected"
	if b.asker != nil {
		model = "✅ Connected"
		if b.opts.Model != "" {
			model += " (" + b.opts.Model + ")"
		}
	}

	index := "not configured"
	if b.opts.Index != nil {
		if n, err := b.opts.Index.Count(ctx); err != nil {
			index = "❌ " + err.Error()
		} else {
			index = fmt.Sprintf("✅ %d chunks", n)
		}
	}

	return fmt.Sprintf(`🔍 **Digital Agent Status**

**AI Model:** %s
**Vector Index:** %s
**Active Sessions:** %d
**Timestamp:** %s`, model, index, b.sessions.Sessions(), b.now().Format("2006-01-02 15:04:05"))
}
