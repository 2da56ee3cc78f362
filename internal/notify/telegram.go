// Package notify delivers status snapshots to operator channels. Telegram
// is the only backend; pushes are throttled per event so a 5-second status
// cadence does not flood the chat.
package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/cuecard/internal/types"
)

// minPushGap is the minimum time between Telegram messages per event.
const minPushGap = 60 * time.Second

// TelegramSink pushes status snapshots to a Telegram chat.
type TelegramSink struct {
	chatID int64
	logger *slog.Logger
	send   func(text string) error

	mu       sync.Mutex
	lastSent map[types.EventID]time.Time
	now      func() time.Time
}

// NewTelegramSink connects to the Telegram bot API. An empty token returns
// a nil sink, which disables notification pushes entirely.
func NewTelegramSink(token string, chatID int64, logger *slog.Logger) (*TelegramSink, error) {
	if token == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	logger.Info("telegram sink connected", "bot", bot.Self.UserName, "chat_id", chatID)

	sink := &TelegramSink{
		chatID:   chatID,
		logger:   logger,
		lastSent: make(map[types.EventID]time.Time),
		now:      time.Now,
	}
	sink.send = func(text string) error {
		msg := tgbotapi.NewMessage(chatID, text)
		_, err := bot.Send(msg)
		return err
	}
	return sink, nil
}

// PushStatus sends a formatted snapshot, throttled per event. Failures are
// logged and dropped; status delivery never blocks processing.
func (s *TelegramSink) PushStatus(snap *types.StatusSnapshot) {
	s.mu.Lock()
	last := s.lastSent[snap.EventID]
	if s.now().Sub(last) < minPushGap {
		s.mu.Unlock()
		return
	}
	s.lastSent[snap.EventID] = s.now()
	s.mu.Unlock()

	if err := s.send(formatSnapshot(snap)); err != nil {
		s.logger.Error("telegram push failed", "event_id", snap.EventID, "error", err)
	}
}

func formatSnapshot(snap *types.StatusSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "event %s [%s]\n", snap.EventID, snap.Status)
	fmt.Fprintf(&b, "seq: transcript=%d cards=%d facts=%d\n",
		snap.TranscriptLastSeq, snap.CardsLastSeq, snap.FactsLastSeq)
	fmt.Fprintf(&b, "stores: ring=%d facts=%d cards=%d\n",
		snap.RingLen, snap.FactCount, snap.CardCount)
	for _, agentType := range types.AgentTypes {
		state, ok := snap.Sessions[agentType]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: %s", agentType, state)
		if tm, ok := snap.Metrics[agentType]; ok {
			fmt.Fprintf(&b, " (%d tokens)", tm.Total)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
