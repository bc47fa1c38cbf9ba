package telegram

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocr-relay/api/internal/ocr"
	"ocr-relay/api/internal/relay"
)

type fakeBot struct {
	mu    sync.Mutex
	sent  []string
	files map[string]string
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	if u, ok := b.files[fileID]; ok {
		return u, nil
	}
	return "", errors.New("file not found")
}

func (b *fakeBot) messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

type fakePipeline struct {
	mu    sync.Mutex
	calls []relay.Upload
	res   ocr.Result
	err   error
}

func (p *fakePipeline) Process(_ context.Context, up relay.Upload) (ocr.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, up)
	return p.res, p.err
}

func (p *fakePipeline) uploads() []relay.Upload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]relay.Upload(nil), p.calls...)
}

func pngOf(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fileServer serves the given blobs under /<fileID>.
func fileServer(t *testing.T, blobs map[string][]byte) (*httptest.Server, map[string]string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, ok := blobs[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)
	urls := make(map[string]string, len(blobs))
	for id := range blobs {
		urls[id] = srv.URL + "/" + id
	}
	return srv, urls
}

func command(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func TestCommands(t *testing.T) {
	bot := &fakeBot{}
	r := NewRouter(bot, &fakePipeline{}, nil, nil)

	r.HandleUpdate(context.Background(), command(1, "/start"))
	r.HandleUpdate(context.Background(), command(1, "/health"))
	r.HandleUpdate(context.Background(), command(1, "/nope"))

	got := bot.messages()
	require.Len(t, got, 3)
	assert.Equal(t, usageText, got[0])
	assert.Equal(t, "✅ OK", got[1])
	assert.Equal(t, "Comando desconocido", got[2])
}

func TestAllowListRefusesOtherChats(t *testing.T) {
	bot := &fakeBot{}
	p := &fakePipeline{}
	r := NewRouter(bot, p, []int64{42}, nil)

	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: 7},
		Photo: []tgbotapi.PhotoSize{{FileID: "x"}},
	}})

	assert.Empty(t, p.uploads())
	require.Len(t, bot.messages(), 1)
	assert.Contains(t, bot.messages()[0], "no está autorizado")
}

func TestPhotoUsesLargestSize(t *testing.T) {
	big := pngOf(t, 8, 8, color.Black)
	_, urls := fileServer(t, map[string][]byte{"small": []byte("tiny"), "big": big})
	bot := &fakeBot{files: urls}
	p := &fakePipeline{res: ocr.NewResult("Hola", "m")}
	r := NewRouter(bot, p, []int64{1}, nil)

	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: 1},
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", FileUniqueID: "s", Width: 90},
			{FileID: "big", FileUniqueID: "b", Width: 1280},
		},
	}})

	ups := p.uploads()
	require.Len(t, ups, 1)
	assert.Equal(t, big, ups[0].Data)
	assert.Equal(t, relay.SourceTelegram, ups[0].Source)
	assert.Equal(t, "photo_b.jpg", ups[0].Filename)
	require.Len(t, bot.messages(), 1)
	assert.Contains(t, bot.messages()[0], "Hola")
}

func TestDocumentMustBeImage(t *testing.T) {
	bot := &fakeBot{}
	p := &fakePipeline{}
	r := NewRouter(bot, p, nil, nil)

	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 1},
		Document: &tgbotapi.Document{FileID: "d", FileName: "a.pdf", MimeType: "application/pdf"},
	}})

	assert.Empty(t, p.uploads())
	assert.Equal(t, []string{"El documento debe ser una imagen."}, bot.messages())
}

func TestImageDocumentIsProcessed(t *testing.T) {
	_, urls := fileServer(t, map[string][]byte{"d": []byte("webp-bytes")})
	bot := &fakeBot{files: urls}
	p := &fakePipeline{res: ocr.NewResult("texto", "m")}
	r := NewRouter(bot, p, nil, nil)

	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 1},
		Document: &tgbotapi.Document{FileID: "d", FileName: "scan.webp", MimeType: "image/webp"},
	}})

	ups := p.uploads()
	require.Len(t, ups, 1)
	assert.Equal(t, "scan.webp", ups[0].Filename)
	assert.Equal(t, "image/webp", ups[0].ContentType)
}

func TestDownloadTooLarge(t *testing.T) {
	_, urls := fileServer(t, map[string][]byte{"big": bytes.Repeat([]byte("x"), 100)})
	bot := &fakeBot{files: urls}
	p := &fakePipeline{}
	r := NewRouter(bot, p, nil, nil)
	r.MaxBytes = 10

	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: 1},
		Photo: []tgbotapi.PhotoSize{{FileID: "big"}},
	}})

	assert.Empty(t, p.uploads())
	require.Len(t, bot.messages(), 1)
	assert.Contains(t, bot.messages()[0], errTooLarge.Error())
}

func TestPipelineErrorIsReported(t *testing.T) {
	_, urls := fileServer(t, map[string][]byte{"p": []byte("img")})
	bot := &fakeBot{files: urls}
	p := &fakePipeline{err: &ocr.UpstreamError{Engine: "gpt", StatusCode: 502, Body: "bad gateway"}}
	r := NewRouter(bot, p, nil, nil)

	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: 1},
		Photo: []tgbotapi.PhotoSize{{FileID: "p"}},
	}})

	require.Len(t, bot.messages(), 1)
	assert.Contains(t, bot.messages()[0], "bad gateway")
}

func TestSendResultTruncates(t *testing.T) {
	bot := &fakeBot{}
	r := NewRouter(bot, nil, nil, nil)

	r.SendResult(1, ocr.Result{Text: strings.Repeat("a", 5000)})
	r.SendResult(1, ocr.Result{})

	got := bot.messages()
	require.Len(t, got, 2)
	assert.True(t, strings.HasSuffix(got[0], "…"))
	assert.Less(t, len(got[0]), 4096)
	assert.Equal(t, "No encontré texto en la imagen.", got[1])
}

func TestUntypedDocumentIsSniffed(t *testing.T) {
	img := pngOf(t, 4, 4, color.White)
	_, urls := fileServer(t, map[string][]byte{"img": img, "txt": []byte("just some notes")})
	bot := &fakeBot{files: urls}
	p := &fakePipeline{res: ocr.NewResult("ok", "m")}
	r := NewRouter(bot, p, nil, nil)

	for _, doc := range []*tgbotapi.Document{
		{FileID: "img", FileName: "scan", MimeType: ""},
		{FileID: "txt", FileName: "notes", MimeType: "application/octet-stream"},
	} {
		r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
			Chat:     &tgbotapi.Chat{ID: 1},
			Document: doc,
		}})
	}

	ups := p.uploads()
	require.Len(t, ups, 1)
	assert.Equal(t, "scan", ups[0].Filename)
	assert.Equal(t, "image/png", ups[0].ContentType)
	assert.Equal(t, img, ups[0].Data)
	assert.Contains(t, bot.messages(), notImageText)
}
