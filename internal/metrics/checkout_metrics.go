package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики подбора точки, заказов, платежей и вебхуков.
// Методы безопасно вызывать на nil-значении.
type CheckoutMetrics struct {
	// Счётчики заказов и платежей
	ordersCreated     prometheus.Counter
	paymentsInitiated prometheus.Counter
	providerErrors    prometheus.Counter
	statusTransitions *prometheus.CounterVec

	// Вебхуки провайдера
	callbacks        *prometheus.CounterVec
	amountMismatches prometheus.Counter

	referralRewards prometheus.Counter

	// Гистограммы времени выполнения
	geoLookupDuration *prometheus.HistogramVec
	providerDuration  prometheus.Histogram

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewCheckoutMetrics создаёт метрики в глобальном реестре Prometheus.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer создаёт метрики в указанном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "outlet_orders_created_total",
			Help: "Total number of orders created",
		}),
		paymentsInitiated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "outlet_payments_initiated_total",
			Help: "Total number of payments initiated with the provider",
		}),
		providerErrors: registerCounter(registerer, prometheus.CounterOpts{
			Name: "outlet_payment_provider_errors_total",
			Help: "Total number of failed payment provider calls",
		}),
		statusTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "outlet_order_status_transitions_total",
			Help: "Total number of applied order status transitions",
		}, []string{"status"}),
		callbacks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "outlet_payment_callbacks_total",
			Help: "Total number of payment callbacks grouped by result",
		}, []string{"result"}),
		amountMismatches: registerCounter(registerer, prometheus.CounterOpts{
			Name: "outlet_payment_amount_mismatches_total",
			Help: "Total number of callbacks whose amount differs from the order total",
		}),
		referralRewards: registerCounter(registerer, prometheus.CounterOpts{
			Name: "outlet_referral_rewards_total",
			Help: "Total number of referral rewards granted",
		}),
		geoLookupDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "outlet_geo_lookup_duration_seconds",
			Help:    "Duration of outlet lookups in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"operation"}),
		providerDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "outlet_payment_provider_duration_seconds",
			Help:    "Duration of payment provider calls in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "outlet_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "outlet_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *CheckoutMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordPaymentInitiated увеличивает счётчик открытых платежей.
func (m *CheckoutMetrics) RecordPaymentInitiated() {
	if m == nil {
		return
	}
	m.paymentsInitiated.Inc()
}

// RecordProviderCall записывает длительность вызова провайдера и ошибку, если была.
func (m *CheckoutMetrics) RecordProviderCall(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.providerDuration.Observe(duration.Seconds())
	if err != nil {
		m.providerErrors.Inc()
	}
}

// RecordStatusTransition увеличивает счётчик переходов в статус.
func (m *CheckoutMetrics) RecordStatusTransition(status string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(status).Inc()
}

// RecordCallback увеличивает счётчик вебхуков по результату обработки.
func (m *CheckoutMetrics) RecordCallback(result string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(result).Inc()
}

// RecordAmountMismatch фиксирует расхождение суммы в вебхуке.
func (m *CheckoutMetrics) RecordAmountMismatch() {
	if m == nil {
		return
	}
	m.amountMismatches.Inc()
}

// RecordReferralReward увеличивает счётчик выданных реферальных бонусов.
func (m *CheckoutMetrics) RecordReferralReward() {
	if m == nil {
		return
	}
	m.referralRewards.Inc()
}

// RecordGeoLookup записывает время подбора точки.
func (m *CheckoutMetrics) RecordGeoLookup(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.geoLookupDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
