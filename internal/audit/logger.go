package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/basefn/internal/apierr"
	"github.com/vyrodovalexey/basefn/internal/observability"
)

// ErrThrottled is returned when an event exceeds the write budget.
var ErrThrottled = errors.New("audit event throttled")

// Metrics contains audit metrics.
type Metrics struct {
	eventsTotal  *prometheus.CounterVec
	droppedTotal prometheus.Counter
}

// NewMetrics creates unregistered audit metrics.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = observability.DefaultNamespace
	}
	return &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "events_total",
				Help:      "Total number of audit events written per sink",
			},
			[]string{"sink", "outcome"},
		),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Total number of audit events dropped by throttling",
		}),
	}
}

// Register registers the metrics with r, ignoring duplicates.
func (m *Metrics) Register(r prometheus.Registerer) {
	_ = r.Register(m.eventsTotal)
	_ = r.Register(m.droppedTotal)
}

// Option configures a Logger.
type Option func(*Logger)

// WithLogger sets the observability logger.
func WithLogger(l observability.Logger) Option {
	return func(lg *Logger) {
		lg.logger = l
	}
}

// WithSink adds a sink.
func WithSink(s Sink) Option {
	return func(lg *Logger) {
		lg.sinks = append(lg.sinks, s)
	}
}

// WithWriter replaces the configured output with w.
func WithWriter(w io.Writer) Option {
	return func(lg *Logger) {
		lg.writer = NewWriterSink(w)
	}
}

// WithRegisterer registers the audit metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(lg *Logger) {
		lg.registerer = r
	}
}

// Logger records audit events. It implements apierr.Auditor.
type Logger struct {
	config     Config
	sinks      []Sink
	writer     *WriterSink
	limiter    *rate.Limiter
	logger     observability.Logger
	metrics    *Metrics
	registerer prometheus.Registerer
}

var _ apierr.Auditor = (*Logger)(nil)

// NewLogger creates an audit logger. Unless WithWriter is given, the
// writer sink is opened from cfg.Output.
func NewLogger(cfg Config, opts ...Option) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audit config: %w", err)
	}
	cfg = cfg.normalized()

	l := &Logger{
		config:  cfg,
		logger:  observability.NopLogger(),
		metrics: NewMetrics(observability.DefaultNamespace),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.writer == nil && cfg.Output != OutputNone {
		w, err := OpenWriterSink(cfg.Output)
		if err != nil {
			return nil, err
		}
		l.writer = w
	}
	if l.writer != nil {
		l.sinks = append([]Sink{l.writer}, l.sinks...)
	}

	l.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	if l.registerer != nil {
		l.metrics.Register(l.registerer)
	}
	return l, nil
}

// Record implements apierr.Auditor. Events over the write budget are
// dropped with ErrThrottled. Sink failures are joined into the result
// after every sink has been tried.
func (l *Logger) Record(ctx context.Context, entry apierr.AuditEntry) error {
	if !l.config.Enabled {
		return nil
	}
	if !l.limiter.Allow() {
		l.metrics.droppedTotal.Inc()
		return ErrThrottled
	}

	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	ev := NewEvent(ctx, entry)
	ev.Details = redact(ev.Details, l.config.RedactFields)

	var errs []error
	for _, s := range l.sinks {
		if err := s.Write(ctx, ev); err != nil {
			l.metrics.eventsTotal.WithLabelValues(s.Name(), "failure").Inc()
			l.logger.Warn("audit sink write failed",
				observability.String("sink", s.Name()),
				observability.String("event_id", ev.ID),
				observability.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
			continue
		}
		l.metrics.eventsTotal.WithLabelValues(s.Name(), "success").Inc()
	}
	return errors.Join(errs...)
}

// Close closes sinks that hold resources.
func (l *Logger) Close() error {
	var errs []error
	for _, s := range l.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
