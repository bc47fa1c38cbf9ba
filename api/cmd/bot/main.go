package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ocr-relay/api/internal/app"
	"ocr-relay/api/internal/config"
	"ocr-relay/api/internal/handle"
	"ocr-relay/api/internal/httpserver"
	"ocr-relay/api/internal/logging"
	"ocr-relay/api/internal/telegram"
	"ocr-relay/api/internal/util"
)

func main() {
	cfg, err := config.LoadBot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("bot.exit", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	bot.Debug = false
	log.Info("bot.authorized", zap.String("username", bot.Self.UserName))

	r := telegram.NewRouter(bot, p.Service, cfg.TelegramAllowedChats, log.Named("telegram"))
	r.MaxBytes = cfg.MaxUploadBytes

	// health endpoints from the HTTP service; the webhook path is added below
	h := handle.New(p.Service, cfg.MaxUploadBytes, log.Named("http"))
	router := mux.NewRouter()
	router.HandleFunc("/", h.Root).Methods(http.MethodGet)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	addr := "0.0.0.0:" + cfg.Port
	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		return runWebhook(ctx, addr, bot, r, router, webhookURL, log)
	}
	return runPollingMode(ctx, addr, bot, r, router, log)
}

// ---------------- Modes -----------------

func runWebhook(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router, router *mux.Router, baseURL string, log *zap.Logger) error {
	// secret path derived from the token
	path := "/webhook/" + util.SHA256Hex([]byte(bot.Token))[:16]
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	updates := make(chan tgbotapi.Update, bot.Buffer)
	router.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
		upd, err := bot.HandleUpdate(req)
		if err != nil {
			log.Warn("bot.webhook.bad_update", zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		select {
		case updates <- *upd:
		case <-req.Context().Done():
		}
	}).Methods(http.MethodPost)

	go func() {
		for {
			select {
			case upd := <-updates:
				go r.HandleUpdate(ctx, upd)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("bot.webhook", zap.String("addr", addr), zap.String("path", path))
	return httpserver.Serve(ctx, addr, handle.RequestID(router), log)
}

func runPollingMode(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router, router *mux.Router, log *zap.Logger) error {
	// delete a stale webhook, otherwise getUpdates is refused
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Warn("bot.delete_webhook.failed", zap.Error(err))
	}

	return pollWithHealth(ctx,
		func(ctx context.Context) error { return httpserver.Serve(ctx, addr, handle.RequestID(router), log) },
		func(ctx context.Context) { runPolling(ctx, bot, func(upd tgbotapi.Update) { r.HandleUpdate(ctx, upd) }, log) },
		log)
}

// pollWithHealth runs the health server and the polling loop side by side.
// A server failure stops polling and is returned.
func pollWithHealth(ctx context.Context, serve func(context.Context) error, poll func(context.Context), log *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		err := serve(ctx)
		if err != nil {
			log.Error("bot.http.failed", zap.Error(err))
		}
		cancel()
		errc <- err
	}()

	poll(ctx)
	cancel()
	return <-errc
}

// ---------------- Polling loop -----------------

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

type updateSource interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// runPolling reconnects to Telegram with backoff until ctx is done. Each
// update is handled in its own goroutine; in-flight handlers are awaited
// before returning.
func runPolling(ctx context.Context, src updateSource, onUpdate func(tgbotapi.Update), log *zap.Logger) {
	var wg sync.WaitGroup
	defer wg.Wait()

	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			log.Info("bot.polling.stopped")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := src.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			log.Warn("bot.polling.error", zap.Error(err), zap.Duration("retry_in", d))
			sleep(ctx, d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer wg.Done()
				onUpdate(upd)
			}(upd)
		}

		if len(updates) == 0 {
			sleep(ctx, 200*time.Millisecond)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
