package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/suspectuso/premium-bot/internal/billing"
	"github.com/suspectuso/premium-bot/internal/config"
)

// Reconciler applies verified payment events.
type Reconciler interface {
	Apply(ctx context.Context, ev billing.PaymentEvent) (billing.Outcome, error)
}

// Server handles incoming webhooks from Stripe and, in webhook mode, Telegram
type Server struct {
	reconciler Reconciler
	secret     string
	tolerance  time.Duration
	log        zerolog.Logger

	engine *gin.Engine
	server *http.Server
}

// NewServer creates a new webhook server. telegram may be nil when the bot polls.
func NewServer(cfg *config.Config, reconciler Reconciler, telegram http.Handler, log zerolog.Logger) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		reconciler: reconciler,
		secret:     cfg.Stripe.WebhookSecret,
		tolerance:  cfg.Stripe.Tolerance,
		log:        log,
	}

	r := gin.New()
	r.Use(RequestID(), RequestLogger(log), Recovery(log))

	r.GET("/health", s.handleHealth)
	r.GET("/", s.handleHealth)
	r.POST("/webhook/stripe", s.handleStripe)
	if telegram != nil {
		r.POST("/telegram/webhook", gin.WrapH(telegram))
	}

	s.engine = r
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the webhook server and stops it when ctx is done
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info().Int("port", port).Msg("starting webhook server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
