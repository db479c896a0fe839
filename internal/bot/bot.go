// Package bot implements the Telegram front-end: archive uploads and
// download links feed the import pipeline, /search queries the record
// store. Updates arrive either by long polling or through the HTTP
// webhook endpoint.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/seekdata/seekbot/internal/acquire"
	"github.com/seekdata/seekbot/internal/importer"
)

const helpText = `Send me an archive of CSV files (zip, rar, or 7z) or a direct download link and I will load it, replacing any previously loaded data.

Commands:
/search <keyword> - search the loaded records
/help - show this message`

// api is the slice of tgbotapi.BotAPI the bot relies on, split out so
// tests can swap in a fake.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot routes Telegram updates to the importer and the record store.
type Bot struct {
	api         api
	svc         *importer.Service
	searchLimit int

	// imports tracks in-flight import goroutines for shutdown.
	imports sync.WaitGroup
}

// New connects to the Telegram Bot API with the given token.
func New(token string, svc *importer.Service, searchLimit int) (*Bot, error) {
	tg, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	slog.Info("telegram bot authorized", "username", tg.Self.UserName)
	return newBot(tg, svc, searchLimit), nil
}

func newBot(a api, svc *importer.Service, searchLimit int) *Bot {
	if searchLimit <= 0 {
		searchLimit = 10
	}
	return &Bot{api: a, svc: svc, searchLimit: searchLimit}
}

// Run consumes updates by long polling until ctx is cancelled, then
// waits for any in-flight import to post its final status.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30

	updates := b.api.GetUpdatesChan(cfg)
	defer b.imports.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, upd)
		}
	}
}

// HandleUpdate feeds one raw webhook payload into the bot. Imports are
// started in the background so the webhook request returns promptly.
func (b *Bot) HandleUpdate(ctx context.Context, payload []byte) error {
	var upd tgbotapi.Update
	if err := json.Unmarshal(payload, &upd); err != nil {
		return fmt.Errorf("decoding update: %w", err)
	}
	b.dispatch(ctx, upd)
	return nil
}

// Wait blocks until all in-flight imports have finished.
func (b *Bot) Wait() {
	b.imports.Wait()
}

func (b *Bot) dispatch(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID

	switch {
	case msg.Document != nil:
		b.startDocumentImport(ctx, chatID, msg.Document)
	case msg.IsCommand():
		b.handleCommand(ctx, chatID, msg)
	case isLink(msg.Text):
		b.startImport(ctx, chatID, importer.Request{URL: strings.TrimSpace(msg.Text)})
	default:
		b.reply(chatID, helpText)
	}
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.reply(chatID, helpText)
	case "search":
		b.handleSearch(ctx, chatID, msg.CommandArguments())
	default:
		b.reply(chatID, "Unknown command. Use /help to see what I can do.")
	}
}

func (b *Bot) handleSearch(ctx context.Context, chatID int64, args string) {
	keyword := strings.TrimSpace(args)
	if keyword == "" {
		b.reply(chatID, "Usage: /search <keyword>")
		return
	}

	rows, total, err := b.svc.Store().Search(ctx, keyword, b.searchLimit)
	if err != nil {
		slog.Error("search failed", "keyword", keyword, "error", err)
		b.reply(chatID, "Search failed, please try again.")
		return
	}
	if len(rows) == 0 {
		b.reply(chatID, fmt.Sprintf("No matches for %q.", keyword))
		return
	}

	for _, row := range rows {
		b.reply(chatID, row)
	}
	if remaining := total - int64(len(rows)); remaining > 0 {
		b.reply(chatID, fmt.Sprintf("...and %d more matches. Narrow the keyword to see them.", remaining))
	}
}

func (b *Bot) startDocumentImport(ctx context.Context, chatID int64, doc *tgbotapi.Document) {
	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		slog.Error("resolving telegram file", "file_id", doc.FileID, "error", err)
		b.reply(chatID, "Could not fetch that file from Telegram, please resend it.")
		return
	}
	b.startImport(ctx, chatID, importer.Request{URL: url})
}

// startImport posts a progress message and runs the import in the
// background, editing that message with download progress and finally
// with exactly one terminal status.
func (b *Bot) startImport(ctx context.Context, chatID int64, req importer.Request) {
	if b.svc.Busy() {
		b.reply(chatID, importer.Describe(importer.ErrImportInProgress).String())
		return
	}

	progressID := b.send(tgbotapi.NewMessage(chatID, "Import started, downloading..."))

	// The update context dies with the webhook request; the import must
	// outlive it.
	runCtx := context.WithoutCancel(ctx)

	b.imports.Add(1)
	go func() {
		defer b.imports.Done()

		sink := acquire.SinkFunc(func(percent int) {
			b.edit(chatID, progressID, fmt.Sprintf("Downloading... %d%%", percent))
		})

		summary, err := b.svc.Run(runCtx, req, sink)

		var final string
		if err != nil {
			final = importer.Describe(err).String()
		} else {
			final = importer.DescribeSuccess(summary)
		}
		b.edit(chatID, progressID, final)
	}()
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

// send delivers a message and returns its ID, or 0 when delivery failed.
func (b *Bot) send(c tgbotapi.Chattable) int {
	sent, err := b.api.Send(c)
	if err != nil {
		slog.Error("sending telegram message", "error", err)
		return 0
	}
	return sent.MessageID
}

// edit updates a previously sent message, falling back to a fresh
// message when there is nothing to edit.
func (b *Bot) edit(chatID int64, messageID int, text string) {
	if messageID == 0 {
		b.reply(chatID, text)
		return
	}
	if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		slog.Error("editing telegram message", "message_id", messageID, "error", err)
	}
}

func isLink(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://")
}
