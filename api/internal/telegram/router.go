package telegram

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"ocr-relay/api/internal/ocr"
	"ocr-relay/api/internal/relay"
	"ocr-relay/api/internal/util"
)

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Extractor runs one upload through the OCR pipeline.
type Extractor interface {
	Process(ctx context.Context, up relay.Upload) (ocr.Result, error)
}

type Router struct {
	Bot      Bot
	Pipeline Extractor
	Log      *zap.Logger

	// Allowed lists the chats served; empty serves every chat.
	Allowed map[int64]bool
	// MaxBytes caps a downloaded file; 0 means defaultMaxDownload.
	MaxBytes int64
	// HTTPClient downloads files from Telegram; nil uses a 60s client.
	HTTPClient *http.Client
}

func NewRouter(bot Bot, pipeline Extractor, allowed []int64, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		Bot:      bot,
		Pipeline: pipeline,
		Log:      log,
	}
	if len(allowed) > 0 {
		r.Allowed = make(map[int64]bool, len(allowed))
		for _, id := range allowed {
			r.Allowed[id] = true
		}
	}
	return r
}

func (r *Router) allowed(chatID int64) bool {
	return len(r.Allowed) == 0 || r.Allowed[chatID]
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	cid := msg.Chat.ID
	if !r.allowed(cid) {
		r.Log.Warn("telegram.chat.refused", zap.Int64("chat_id", cid))
		r.send(cid, "Este chat no está autorizado para usar el bot.")
		return
	}

	if msg.IsCommand() {
		r.HandleCommand(msg)
		return
	}

	switch {
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, msg)
	case msg.Document != nil:
		r.acceptDocument(ctx, msg)
	default:
		r.send(cid, usageText)
	}
}

const usageText = "Envíame una foto o una imagen como documento y te devuelvo el texto que contiene.\nComandos: /health"

func (r *Router) HandleCommand(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.send(cid, usageText)
	case "health":
		r.send(cid, "✅ OK")
	default:
		r.send(cid, "Comando desconocido")
	}
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warn("telegram.send.failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) SendResult(chatID int64, res ocr.Result) {
	text := res.Text
	if text == "" {
		r.send(chatID, "No encontré texto en la imagen.")
		return
	}
	r.send(chatID, "📝 Texto reconocido:\n\n"+util.Truncate(text, maxReplyBytes))
}

func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, fmt.Sprintf("Error de OCR: %v", err))
}
