package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	pkgkafka "github.com/ctnfastfood/cart/pkg/kafka"
	"github.com/ctnfastfood/cart/pkg/logger"

	"github.com/ctnfastfood/cart/internal/notify"
)

// TopicCartChanged receives one event per cart mutation.
var TopicCartChanged = pkgkafka.Topic("cart", "changed")

// Aggregate type constant.
const AggregateTypeCart = "cart"

// SourceCartService identifies events originating from the cart service.
const SourceCartService = "cart-service"

// EventType returns the event type for a change action, e.g. "cart.add".
func EventType(action string) string {
	return AggregateTypeCart + "." + action
}

// Publisher publishes an event envelope to a topic. *pkgkafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// BreakerConfig configures the circuit breaker guarding the broker.
type BreakerConfig struct {
	Name string

	// MaxRequests is the number of trial publishes allowed while half-open.
	MaxRequests uint32

	// Interval clears the failure counts while closed. 0 never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before trying again.
	Timeout time.Duration

	// FailureRatio trips the breaker once MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns sensible defaults for the Kafka breaker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "kafka-cart-changed",
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Producer is a notify.Observer that forwards every cart change to Kafka.
// Publish failures are logged and never reach the store.
type Producer struct {
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker[struct{}]
	timeout   time.Duration
	logger    *slog.Logger
}

// NewProducer creates a producer publishing through publisher. Each publish
// is bounded by timeout when it is positive.
func NewProducer(publisher Publisher, cfg BreakerConfig, timeout time.Duration, log *slog.Logger) *Producer {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}
	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &Producer{
		publisher: publisher,
		breaker:   gobreaker.NewCircuitBreaker[struct{}](settings),
		timeout:   timeout,
		logger:    log,
	}
}

// OnChange implements notify.Observer.
func (p *Producer) OnChange(ctx context.Context, change notify.Change) {
	if err := p.Publish(ctx, change); err != nil {
		level := slog.LevelError
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			level = slog.LevelDebug
		}
		p.logger.Log(ctx, level, "failed to publish cart change",
			slog.String("action", change.Action),
			slog.String("cart_key", change.CartKey),
			slog.String("error", err.Error()),
		)
	}
}

// Publish sends change to TopicCartChanged through the breaker.
func (p *Producer) Publish(ctx context.Context, change notify.Change) error {
	var opts []pkgkafka.EventOption
	if !change.At.IsZero() {
		opts = append(opts, pkgkafka.WithTimestamp(change.At))
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		opts = append(opts, pkgkafka.WithCorrelationID(id))
	}
	event, err := pkgkafka.NewEvent(EventType(change.Action), change.CartKey, AggregateTypeCart, SourceCartService, change, opts...)
	if err != nil {
		return fmt.Errorf("create %s event: %w", EventType(change.Action), err)
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		pctx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		return struct{}{}, p.publisher.Publish(pctx, TopicCartChanged, event)
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.EventType, err)
	}
	return nil
}

// State returns the current breaker state.
func (p *Producer) State() gobreaker.State {
	return p.breaker.State()
}
