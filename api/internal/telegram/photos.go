package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"ocr-relay/api/internal/relay"
	"ocr-relay/api/internal/util"
)

var errTooLarge = errors.New("archivo demasiado grande")

const notImageText = "El documento debe ser una imagen."

func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	// sizes are ascending; the last one is the original resolution
	ph := msg.Photo[len(msg.Photo)-1]
	data, err := r.download(ctx, ph.FileID)
	if err != nil {
		r.Log.Warn("telegram.download.failed", zap.Int64("chat_id", cid), zap.Error(err))
		r.SendError(cid, err)
		return
	}

	r.run(ctx, cid, relay.Upload{
		Filename:    "photo_" + ph.FileUniqueID + ".jpg",
		ContentType: "image/jpeg",
		Data:        data,
	})
}

func (r *Router) acceptDocument(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	doc := msg.Document
	// clients often send images as untyped files; those are sniffed below
	untyped := doc.MimeType == "" || doc.MimeType == "application/octet-stream"
	if !untyped && !util.IsImageMIME(doc.MimeType) {
		r.send(cid, notImageText)
		return
	}
	if int64(doc.FileSize) > r.maxBytes() {
		r.SendError(cid, errTooLarge)
		return
	}
	data, err := r.download(ctx, doc.FileID)
	if err != nil {
		r.Log.Warn("telegram.download.failed", zap.Int64("chat_id", cid), zap.Error(err))
		r.SendError(cid, err)
		return
	}
	contentType := doc.MimeType
	if untyped {
		contentType = util.SniffMimeHTTP(data)
		if !util.IsImageMIME(contentType) {
			r.send(cid, notImageText)
			return
		}
	}
	r.run(ctx, cid, relay.Upload{
		Filename:    doc.FileName,
		ContentType: contentType,
		Data:        data,
	})
}

func (r *Router) run(ctx context.Context, chatID int64, up relay.Upload) {
	up.Source = relay.SourceTelegram
	res, err := r.Pipeline.Process(ctx, up)
	if err != nil {
		r.SendError(chatID, err)
		return
	}
	r.SendResult(chatID, res)
}

func (r *Router) maxBytes() int64 {
	if r.MaxBytes > 0 {
		return r.MaxBytes
	}
	return defaultMaxDownload
}

func (r *Router) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("download: status %d: %s", resp.StatusCode, string(b))
	}
	limit := r.maxBytes()
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}

func (r *Router) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}
