package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctnfastfood/cart/internal/config"
	"github.com/ctnfastfood/cart/internal/event"
	"github.com/ctnfastfood/cart/internal/notify"
	"github.com/ctnfastfood/cart/internal/storage"
	"github.com/ctnfastfood/cart/internal/storage/memory"
	pkgkafka "github.com/ctnfastfood/cart/pkg/kafka"
)

const sampleSnapshot = `[
  {"id": 1712345678901.42, "name": "Burger", "category": "Burgers", "price": 5.5, "image": "img/burger.jpg", "quantity": 2},
  {"id": "fries-1", "name": "Fries", "category": "Sides", "price": "2.00", "image": "img/fries.jpg", "quantity": "1"}
]`

// fakeReader serves msgs in order and then reports io.EOF.
type fakeReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (r *fakeReader) FetchMessage(context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }
func (r *fakeReader) Close() error                                           { return nil }

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	events []*pkgkafka.Event
	closed bool
}

func (p *fakePublisher) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, e)
	return nil
}

type harness struct {
	storage    *memory.Storage
	env        []string
	reader     *fakeReader
	publisher  *fakePublisher
	publishers int
	lastCfg    *config.Config
	consumer   pkgkafka.ConsumerConfig
}

func newHarness() *harness {
	return &harness{
		storage:   memory.New(),
		env:       []string{"ID_GENERATOR=sequence"},
		reader:    &fakeReader{},
		publisher: &fakePublisher{},
	}
}

func (h *harness) deps() deps {
	return deps{
		environ: func() []string { return h.env },
		openStorage: func(_ context.Context, cfg *config.Config, _ *slog.Logger) (storage.Storage, func(), error) {
			h.lastCfg = cfg
			return h.storage, func() {}, nil
		},
		newReader: func(cfg pkgkafka.ConsumerConfig) pkgkafka.MessageReader {
			h.consumer = cfg
			return h.reader
		},
		newPublisher: func(*config.Config, *slog.Logger) (event.Publisher, func() error) {
			h.publishers++
			return h.publisher, func() error {
				h.publisher.closed = true
				return nil
			}
		},
	}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(h.deps())
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestShow_EmptyCart(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "", "show")

	require.NoError(t, err)
	assert.Equal(t, "Cart is empty.\n", out)
}

func TestImportThenShow(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, sampleSnapshot, "import", "-")
	require.NoError(t, err)
	assert.Equal(t, "imported 2 items (3 units), total Rs 13.00\n", out)

	out, err = h.run(t, "", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "1712345678901.42")
	assert.Contains(t, out, "Burger")
	assert.Contains(t, out, "11.00")
	assert.Contains(t, out, "Total: Rs 13.00 (3 items)")
}

func TestShow_JSON(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, sampleSnapshot, "import", "-")
	require.NoError(t, err)

	out, err := h.run(t, "", "show", "--json")

	require.NoError(t, err)
	assert.Contains(t, out, `"total_display": "13.00"`)
	assert.Contains(t, out, `"item_count": 3`)
}

func TestImport_InvalidPayloadLeavesCart(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, sampleSnapshot, "import", "-")
	require.NoError(t, err)

	_, err = h.run(t, `"not an array"`, "import", "-")
	require.Error(t, err)

	out, err := h.run(t, "", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "(3 items)")
}

func TestExport_ToFileAndBack(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, sampleSnapshot, "import", "-")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cart.json")
	_, err = h.run(t, "", "export", "--out", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "[\n  {"))

	// Import the export into a session cart.
	out, err := h.run(t, "", "--session", "tab-1", "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "total Rs 13.00")

	_, err = h.storage.Get(context.Background(), "ctn-fastfood-cart:tab-1")
	assert.NoError(t, err)
}

func TestExport_Stdout(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "", "export")

	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestClear(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, sampleSnapshot, "import", "-")
	require.NoError(t, err)

	_, err = h.run(t, "", "clear")
	require.ErrorContains(t, err, "--yes")

	out, err := h.run(t, "", "clear", "--yes")
	require.NoError(t, err)
	assert.Equal(t, "cleared ctn-fastfood-cart\n", out)

	_, err = h.run(t, "", "clear", "--yes")
	assert.ErrorContains(t, err, "cart is already empty")
}

func TestImport_PublishesToKafkaWhenEnabled(t *testing.T) {
	h := newHarness()
	h.env = append(h.env, "KAFKA_ENABLED=true")

	_, err := h.run(t, sampleSnapshot, "import", "-")
	require.NoError(t, err)

	assert.Equal(t, 1, h.publishers)
	assert.True(t, h.publisher.closed)
	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, []string{event.TopicCartChanged}, h.publisher.topics)
	assert.Equal(t, event.EventType(notify.ActionImport), h.publisher.events[0].EventType)
	assert.Equal(t, "ctn-fastfood-cart", h.publisher.events[0].AggregateID)

	var change notify.Change
	require.NoError(t, h.publisher.events[0].UnmarshalData(&change))
	assert.Equal(t, 3, change.ItemCount)
}

func TestImport_NoPublisherWhenKafkaDisabled(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, sampleSnapshot, "import", "-")
	require.NoError(t, err)

	assert.Equal(t, 0, h.publishers)
	assert.Empty(t, h.publisher.events)
}

func TestSetOverridesEnvironment(t *testing.T) {
	h := newHarness()
	h.env = append(h.env, "CART_STORAGE_KEY=from-env")

	_, err := h.run(t, "", "--set", "CART_STORAGE_KEY=from-flag", "show")

	require.NoError(t, err)
	require.NotNil(t, h.lastCfg)
	assert.Equal(t, "from-flag", h.lastCfg.BaseKey())
}

func TestSetRejectsMalformed(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, "", "--set", "NOEQUALS", "show")

	assert.ErrorContains(t, err, "KEY=VALUE")
}

func TestInvalidSessionID(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, "", "--session", "has space", "show")

	assert.ErrorContains(t, err, "session id")
}

func changeMessage(t *testing.T, change notify.Change) kafka.Message {
	t.Helper()
	e, err := pkgkafka.NewEvent(event.EventType(change.Action), change.CartKey, event.AggregateTypeCart, event.SourceCartService, change)
	require.NoError(t, err)
	raw, err := e.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: event.TopicCartChanged, Value: raw}
}

func TestWatch_PrintsChanges(t *testing.T) {
	h := newHarness()
	at := time.Date(2026, 10, 19, 12, 30, 0, 0, time.UTC)
	h.reader.msgs = []kafka.Message{
		changeMessage(t, notify.Change{Action: notify.ActionAdd, CartKey: "ctn-fastfood-cart:tab-1", Name: "Burger", ItemCount: 1, Total: decimal.RequireFromString("5.5"), At: at}),
		changeMessage(t, notify.Change{Action: notify.ActionClear, CartKey: "ctn-fastfood-cart:tab-2", At: at}),
	}

	out, err := h.run(t, "", "--set", "KAFKA_BROKERS=kafka-1:9092", "watch")

	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092"}, h.consumer.Brokers)
	assert.Equal(t, event.TopicCartChanged, h.consumer.Topic)
	assert.Equal(t, "cartctl-watch", h.consumer.GroupID)
	assert.Equal(t, kafka.LastOffset, h.consumer.StartOffset)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `12:30:00  add     ctn-fastfood-cart:tab-1  items=1 total=5.50 item="Burger"`, lines[0])
	assert.Equal(t, `12:30:00  clear   ctn-fastfood-cart:tab-2  items=0 total=0.00`, lines[1])
}

func TestWatch_FiltersBySession(t *testing.T) {
	h := newHarness()
	h.reader.msgs = []kafka.Message{
		changeMessage(t, notify.Change{Action: notify.ActionAdd, CartKey: "ctn-fastfood-cart:tab-1"}),
		changeMessage(t, notify.Change{Action: notify.ActionAdd, CartKey: "ctn-fastfood-cart:tab-2"}),
	}

	out, err := h.run(t, "", "--session", "tab-2", "watch")

	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "tab-2")
}
