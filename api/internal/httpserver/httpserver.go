package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"ocr-relay/api/internal/handle"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	// AccessKey guards /ocr; empty disables the check.
	AccessKey      string
	AllowedOrigins []string
	Log            *zap.Logger
}

// NewRouter wires the public routes. Unknown methods on known paths get 405.
func NewRouter(h *handle.Handle, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := mux.NewRouter()
	r.HandleFunc("/", h.Root).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	var ocr http.Handler = http.HandlerFunc(h.OCR)
	if opts.AccessKey != "" {
		ocr = handle.RequireAccessKey(opts.AccessKey, log)(ocr)
	}
	r.Handle("/ocr", ocr).Methods(http.MethodPost)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{handle.HeaderRequestID, "Content-Length", "Content-Type"},
	})
	// outside the router so 404 and 405 replies carry a request ID too
	return c.Handler(handle.RequestID(handle.AccessLog(log)(handle.Recover(log)(r))))
}

// Serve runs handler on addr until ctx is done, then drains in-flight
// requests.
func Serve(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serve(ctx, ln, handler, log)
}

func serve(ctx context.Context, ln net.Listener, handler http.Handler, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("http.listen", zap.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("http.shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
