package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OfflineFetchTotal counts edge fetch decisions by strategy and the source that answered.
	OfflineFetchTotal *prometheus.CounterVec
	// OfflineLifecycleTotal counts install/activate outcomes of the offline worker.
	OfflineLifecycleTotal *prometheus.CounterVec
	// OfflineRevalidateTotal counts background revalidation outcomes.
	OfflineRevalidateTotal *prometheus.CounterVec
	// UPIGenerateTotal counts UPI link generation outcomes.
	UPIGenerateTotal *prometheus.CounterVec
	// InvoiceTotalComputations counts invoice total computations served over HTTP.
	InvoiceTotalComputations prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OfflineFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_fetch_total",
			Help:      "Count of offline edge fetches by strategy and answering source.",
		}, []string{"strategy", "source"})
		OfflineLifecycleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_lifecycle_total",
			Help:      "Count of offline worker lifecycle phases by outcome.",
		}, []string{"phase", "result"})
		OfflineRevalidateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_revalidate_total",
			Help:      "Count of stale-while-revalidate background refreshes by outcome.",
		}, []string{"result"})
		UPIGenerateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upi_generate_total",
			Help:      "Count of UPI payment link generations by outcome.",
		}, []string{"result"})
		InvoiceTotalComputations = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_total_computations_total",
			Help:      "Total number of invoice totals computed over HTTP.",
		})

		OfflineFetchTotal = registerOrReuse(reg, OfflineFetchTotal)
		OfflineLifecycleTotal = registerOrReuse(reg, OfflineLifecycleTotal)
		OfflineRevalidateTotal = registerOrReuse(reg, OfflineRevalidateTotal)
		UPIGenerateTotal = registerOrReuse(reg, UPIGenerateTotal)
		InvoiceTotalComputations = registerOrReuse(reg, InvoiceTotalComputations)
	})
}

// RecordOfflineFetch increments the offline fetch counter when metrics are registered.
func RecordOfflineFetch(strategy, source string) {
	if OfflineFetchTotal != nil {
		OfflineFetchTotal.WithLabelValues(strategy, source).Inc()
	}
}

// RecordOfflineLifecycle increments the lifecycle counter when metrics are registered.
func RecordOfflineLifecycle(phase, result string) {
	if OfflineLifecycleTotal != nil {
		OfflineLifecycleTotal.WithLabelValues(phase, result).Inc()
	}
}

// RecordRevalidate increments the revalidation counter when metrics are registered.
func RecordRevalidate(result string) {
	if OfflineRevalidateTotal != nil {
		OfflineRevalidateTotal.WithLabelValues(result).Inc()
	}
}

// RecordUPIGenerate increments the UPI generation counter when metrics are registered.
func RecordUPIGenerate(result string) {
	if UPIGenerateTotal != nil {
		UPIGenerateTotal.WithLabelValues(result).Inc()
	}
}
