package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ctnfastfood/cart/internal/app"
	"github.com/ctnfastfood/cart/internal/config"
	"github.com/ctnfastfood/cart/internal/event"
	"github.com/ctnfastfood/cart/internal/idgen"
	"github.com/ctnfastfood/cart/internal/notify"
	"github.com/ctnfastfood/cart/internal/session"
	"github.com/ctnfastfood/cart/internal/storage"
	"github.com/ctnfastfood/cart/internal/store"
	pkgkafka "github.com/ctnfastfood/cart/pkg/kafka"
	"github.com/ctnfastfood/cart/pkg/logger"
)

// deps are the process-level collaborators, swapped out in tests.
type deps struct {
	environ     func() []string
	openStorage func(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Storage, func(), error)
	newReader   func(cfg pkgkafka.ConsumerConfig) pkgkafka.MessageReader
	// newPublisher is only called when KAFKA_ENABLED is set.
	newPublisher func(cfg *config.Config, log *slog.Logger) (event.Publisher, func() error)
}

func defaultDeps() deps {
	return deps{
		environ: os.Environ,
		openStorage: func(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Storage, func(), error) {
			return app.OpenStorage(ctx, cfg, log, nil)
		},
		newReader: func(cfg pkgkafka.ConsumerConfig) pkgkafka.MessageReader {
			return pkgkafka.NewReader(cfg)
		},
		newPublisher: func(cfg *config.Config, log *slog.Logger) (event.Publisher, func() error) {
			p := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), log)
			return p, p.Close
		},
	}
}

// cli holds the persistent flags shared by every subcommand.
type cli struct {
	deps      deps
	sessionID string
	sets      []string
	verbose   bool
}

func newRootCmd(d deps) *cobra.Command {
	c := &cli{deps: d}

	root := &cobra.Command{
		Use:   "cartctl",
		Short: "Inspect and edit CtN FastFood carts",
		Long: `cartctl works on cart snapshots in the storage configured for the cart
service (STORAGE_DRIVER, REDIS_*, POSTGRES_*, CART_STORAGE_KEY).

Without --session it operates on the base cart key; with --session it
operates on that browser session's cart.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&c.sessionID, "session", "s", "", "browser session id")
	root.PersistentFlags().StringArrayVar(&c.sets, "set", nil, "override a configuration variable (KEY=VALUE, repeatable)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log storage and consumer activity to stderr")

	root.AddCommand(
		c.showCmd(),
		c.exportCmd(),
		c.importCmd(),
		c.clearCmd(),
		c.watchCmd(),
	)
	return root
}

// config loads the service configuration from the environment with the
// --set overrides applied on top.
func (c *cli) config() (*config.Config, error) {
	vars := make(map[string]string)
	for _, kv := range c.deps.environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	for _, kv := range c.sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q: want KEY=VALUE", kv)
		}
		vars[k] = v
	}
	return config.LoadFrom(vars)
}

func (c *cli) logger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	if !c.verbose {
		return logger.NewNop()
	}
	return logger.NewWithWriter("cartctl", cfg.LogLevel, cmd.ErrOrStderr())
}

// openStore loads the selected cart. Changes are logged, and published to
// Kafka when KAFKA_ENABLED is set. The returned function releases the
// storage connection and the producer.
func (c *cli) openStore(cmd *cobra.Command) (*store.CartStore, func(), error) {
	cfg, err := c.config()
	if err != nil {
		return nil, nil, err
	}
	log := c.logger(cmd, cfg)
	ctx := cmd.Context()

	st, closeStorage, err := c.deps.openStorage(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	bus := notify.NewBus(log)
	bus.Subscribe(event.NewLogObserver(log))

	closeFn := closeStorage
	if cfg.KafkaEnabled {
		pub, closePub := c.deps.newPublisher(cfg, log)
		bus.Subscribe(event.NewProducer(pub, event.DefaultBreakerConfig(), cfg.KafkaPublishTimeout, log))
		closeFn = func() {
			if err := closePub(); err != nil {
				log.Error("kafka producer close error", slog.String("error", err.Error()))
			}
			closeStorage()
		}
	}

	ids := idgen.ByName(cfg.IDGenerator)

	if c.sessionID == "" {
		return store.New(ctx, st, store.Options{Key: cfg.BaseKey(), IDs: ids, Bus: bus, Logger: log}), closeFn, nil
	}

	s, err := session.NewRegistry(st, cfg.BaseKey(), ids, bus, log).Get(ctx, c.sessionID)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return s, closeFn, nil
}
