package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/ports"
)

// Prometheus implements the activity and outbox metric ports.
type Prometheus struct {
	entries      *prometheus.CounterVec
	pageItems    *prometheus.HistogramVec
	renderErrors *prometheus.CounterVec
	dispatched   *prometheus.CounterVec
}

func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activitylog",
			Name:      "entries_recorded_total",
			Help:      "Activity entries appended, by subject kind and event type.",
		}, []string{"kind", "event_type"}),
		pageItems: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "activitylog",
			Name:      "page_items",
			Help:      "Items rendered per activity page.",
			Buckets:   []float64{0, 1, 10, 25, 50, 100, 250, 1000},
		}, []string{"kind"}),
		renderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activitylog",
			Name:      "render_failures_total",
			Help:      "Activity pages that failed because an entry could not be rendered.",
		}, []string{"kind"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activitylog",
			Name:      "outbox_dispatch_total",
			Help:      "Outbox dispatch attempts by result.",
		}, []string{"result"}),
	}
	for _, c := range []prometheus.Collector{p.entries, p.pageItems, p.renderErrors, p.dispatched} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) EntryRecorded(kind domain.SubjectKind, eventType domain.EventType) {
	p.entries.WithLabelValues(string(kind), eventType.String()).Inc()
}

func (p *Prometheus) PageRendered(kind domain.SubjectKind, items int) {
	p.pageItems.WithLabelValues(string(kind)).Observe(float64(items))
}

func (p *Prometheus) RenderFailed(kind domain.SubjectKind) {
	p.renderErrors.WithLabelValues(string(kind)).Inc()
}

func (p *Prometheus) Dispatched(result string) {
	p.dispatched.WithLabelValues(result).Inc()
}

var (
	_ ports.ActivityMetrics = (*Prometheus)(nil)
	_ ports.OutboxMetrics   = (*Prometheus)(nil)
)
