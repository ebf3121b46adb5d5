package event

import (
	"context"
	"log/slog"

	"github.com/ctnfastfood/cart/pkg/logger"

	"github.com/ctnfastfood/cart/internal/notify"
)

// LogObserver writes a debug line for every cart change.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver writing to l.
func NewLogObserver(l *slog.Logger) *LogObserver {
	return &LogObserver{logger: l}
}

// OnChange implements notify.Observer.
func (o *LogObserver) OnChange(ctx context.Context, change notify.Change) {
	attrs := []any{
		slog.String("action", change.Action),
		slog.String("cart_key", change.CartKey),
		slog.Int("item_count", change.ItemCount),
		slog.String("total", change.Total.StringFixed(2)),
	}
	if change.ItemID != "" {
		attrs = append(attrs, slog.String("item_id", change.ItemID))
	}
	if change.Name != "" {
		attrs = append(attrs, slog.String("name", change.Name))
	}
	if change.Quantity > 0 {
		attrs = append(attrs, slog.Int("quantity", change.Quantity))
	}
	logger.WithContext(ctx, o.logger).DebugContext(ctx, "cart updated", attrs...)
}
