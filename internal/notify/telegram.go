package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	dbmodels "github.com/Sdongmaker/emby-cdn-preheat/internal/db/models"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/db/repository"
	"github.com/Sdongmaker/emby-cdn-preheat/pkg/logger"
)

const (
	defaultAPIBase  = "https://api.telegram.org"
	pollTimeoutSecs = 25
	decisionBuffer  = 64
)

// StatsSource answers the reviewer chat commands from the ledger.
type StatsSource interface {
	CountsByStatus(ctx context.Context) (*repository.StatusCounts, error)
	ListPending(ctx context.Context, limit int) ([]*dbmodels.ReviewRequest, error)
}

// TelegramBot implements Channel and DecisionSource over the Telegram Bot
// API. Inline keyboard callbacks become Decision events; /stats and /pending
// commands are answered from the ledger.
type TelegramBot struct {
	token     string
	apiBase   string
	client    *http.Client
	stats     StatsSource
	decisions chan Decision
	admins    map[int64]bool
}

// NewTelegramBot builds the bot. An empty token or admin list is a
// configuration error; the caller disables the review channel rather than
// failing the process.
func NewTelegramBot(token string, adminChatIDs []string, stats StatsSource) (*TelegramBot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is not configured")
	}
	if len(adminChatIDs) == 0 {
		return nil, fmt.Errorf("telegram admin chat ids are not configured")
	}

	admins := make(map[int64]bool, len(adminChatIDs))
	for _, raw := range adminChatIDs {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin chat id %q: %w", raw, err)
		}
		admins[id] = true
	}

	return &TelegramBot{
		token:   token,
		apiBase: defaultAPIBase,
		// No client timeout: getUpdates long-polls; per-call deadlines
		// come from the context.
		client:    &http.Client{},
		stats:     stats,
		decisions: make(chan Decision, decisionBuffer),
		admins:    admins,
	}, nil
}

// Decisions returns the reviewer decision stream.
func (b *TelegramBot) Decisions() <-chan Decision {
	return b.decisions
}

// Send delivers one message with an inline keyboard to a single chat.
func (b *TelegramBot) Send(ctx context.Context, target string, text string, actions []Action) (Ref, error) {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid telegram target %q: %w", target, err)
	}

	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if len(actions) > 0 {
		payload["reply_markup"] = inlineKeyboard(actions)
	}

	var sent struct {
		MessageID int64 `json:"message_id"`
	}
	if err := b.call(ctx, "sendMessage", payload, &sent); err != nil {
		return "", err
	}

	return Ref(fmt.Sprintf("%d:%d", chatID, sent.MessageID)), nil
}

// Edit replaces the text of a previously delivered message, dropping its
// keyboard.
func (b *TelegramBot) Edit(ctx context.Context, ref Ref, text string) error {
	chatID, messageID, err := parseRef(ref)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "HTML",
	}
	return b.call(ctx, "editMessageText", payload, nil)
}

// Run long-polls getUpdates until the context is cancelled, translating
// callback queries into Decision events and answering chat commands.
func (b *TelegramBot) Run(ctx context.Context) {
	logger.Log.Info("Telegram bot polling started", zap.Int("admins", len(b.admins)))

	var offset int64
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Telegram bot polling stopped")
			return
		default:
		}

		updates, err := b.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Log.Warn("Telegram getUpdates failed", zap.Error(err))
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.handleUpdate(ctx, u)
		}
	}
}

type tgUpdate struct {
	UpdateID      int64            `json:"update_id"`
	Message       *tgMessage       `json:"message"`
	CallbackQuery *tgCallbackQuery `json:"callback_query"`
}

type tgMessage struct {
	MessageID int64   `json:"message_id"`
	Text      string  `json:"text"`
	Chat      tgChat  `json:"chat"`
	From      *tgUser `json:"from"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgUser struct {
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type tgCallbackQuery struct {
	ID      string     `json:"id"`
	Data    string     `json:"data"`
	From    tgUser     `json:"from"`
	Message *tgMessage `json:"message"`
}

func (u tgUser) displayName() string {
	if u.Username != "" {
		return fmt.Sprintf("%s (@%s)", u.FirstName, u.Username)
	}
	return u.FirstName
}

func (b *TelegramBot) handleUpdate(ctx context.Context, u tgUpdate) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleCommand(ctx, u.Message)
	}
}

func (b *TelegramBot) handleCallback(ctx context.Context, cq *tgCallbackQuery) {
	// Acknowledge the button press so the client stops its spinner.
	if err := b.call(ctx, "answerCallbackQuery", map[string]any{"callback_query_id": cq.ID}, nil); err != nil {
		logger.Log.Warn("Telegram answerCallbackQuery failed", zap.Error(err))
	}

	if cq.Message == nil || !b.admins[cq.Message.Chat.ID] {
		logger.Log.Warn("Telegram callback from unauthorized chat ignored", zap.String("data", cq.Data))
		return
	}

	decision := Decision{
		ActionID: cq.Data,
		Actor:    cq.From.displayName(),
		Ref:      Ref(fmt.Sprintf("%d:%d", cq.Message.Chat.ID, cq.Message.MessageID)),
	}

	select {
	case b.decisions <- decision:
	case <-ctx.Done():
	}
}

func (b *TelegramBot) handleCommand(ctx context.Context, msg *tgMessage) {
	if !b.admins[msg.Chat.ID] || b.stats == nil {
		return
	}

	command, _, _ := strings.Cut(strings.TrimSpace(msg.Text), " ")
	command, _, _ = strings.Cut(command, "@")

	switch command {
	case "/stats":
		b.replyStats(ctx, msg.Chat.ID)
	case "/pending":
		b.replyPending(ctx, msg.Chat.ID)
	}
}

func (b *TelegramBot) replyStats(ctx context.Context, chatID int64) {
	counts, err := b.stats.CountsByStatus(ctx)
	if err != nil {
		logger.Log.Error("Failed to load stats for /stats command", zap.Error(err))
		return
	}

	text := fmt.Sprintf(
		"📊 <b>CDN preheat review stats</b>\n\n⏳ Pending: %d\n✅ Approved: %d\n❌ Rejected: %d\n📝 Total: %d",
		counts.Pending, counts.Approved, counts.Rejected, counts.Total,
	)
	if _, err := b.Send(ctx, strconv.FormatInt(chatID, 10), text, nil); err != nil {
		logger.Log.Warn("Failed to answer /stats command", zap.Error(err))
	}
}

func (b *TelegramBot) replyPending(ctx context.Context, chatID int64) {
	pending, err := b.stats.ListPending(ctx, 10)
	if err != nil {
		logger.Log.Error("Failed to load pending list for /pending command", zap.Error(err))
		return
	}

	if len(pending) == 0 {
		if _, err := b.Send(ctx, strconv.FormatInt(chatID, 10), "✅ No pending review requests", nil); err != nil {
			logger.Log.Warn("Failed to answer /pending command", zap.Error(err))
		}
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "⏳ <b>Pending review requests</b> (latest %d)\n\n", len(pending))
	for _, req := range pending {
		fmt.Fprintf(&sb, "🆔 %d\n🎞 %s (%s)\n🔗 %s\n⏰ %s\n\n",
			req.ID, req.MediaName, req.MediaType, req.URL(), req.CreatedAt.Format(time.RFC3339))
	}

	if _, err := b.Send(ctx, strconv.FormatInt(chatID, 10), sb.String(), nil); err != nil {
		logger.Log.Warn("Failed to answer /pending command", zap.Error(err))
	}
}

func (b *TelegramBot) getUpdates(ctx context.Context, offset int64) ([]tgUpdate, error) {
	payload := map[string]any{
		"timeout":         pollTimeoutSecs,
		"offset":          offset,
		"allowed_updates": []string{"message", "callback_query"},
	}

	var updates []tgUpdate
	if err := b.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// call performs one Bot API method invocation and decodes result into out
// when non-nil.
func (b *TelegramBot) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", b.apiBase, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var apiResp struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram %s failed: %s", method, apiResp.Description)
	}

	if out != nil {
		if err := json.Unmarshal(apiResp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// inlineKeyboard lays out actions two per row, pairing each item's approve
// and reject buttons.
func inlineKeyboard(actions []Action) map[string]any {
	var rows [][]map[string]string
	for i := 0; i < len(actions); i += 2 {
		row := []map[string]string{
			{"text": actions[i].Label, "callback_data": actions[i].ID},
		}
		if i+1 < len(actions) {
			row = append(row, map[string]string{
				"text": actions[i+1].Label, "callback_data": actions[i+1].ID,
			})
		}
		rows = append(rows, row)
	}
	return map[string]any{"inline_keyboard": rows}
}

func parseRef(ref Ref) (chatID, messageID int64, err error) {
	chatPart, msgPart, ok := strings.Cut(string(ref), ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed notification ref %q", ref)
	}
	chatID, err = strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed chat id in ref %q: %w", ref, err)
	}
	messageID, err = strconv.ParseInt(msgPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed message id in ref %q: %w", ref, err)
	}
	return chatID, messageID, nil
}
