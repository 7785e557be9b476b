package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

const (
	MetricsNamespace = "op_explorer"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "builds_total",
		Help:      "Count of solution builds by result",
	}, []string{
		"result",
	})

	syncsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tree_syncs_total",
		Help:      "Count of tree synchronizations",
	})

	treeNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "tree_nodes",
		Help:      "Number of nodes in the test tree",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of test runs",
	}, []string{
		"solution",
	})

	testsExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_executed_total",
		Help:      "Count of executed tests by outcome",
	}, []string{
		"outcome",
	})

	routingMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "routing_misses_total",
		Help:      "Count of test events whose path matched no tree node",
	})

	runProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_progress",
		Help:      "Fraction of the current run that has executed",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the last test run",
	}, []string{
		"solution",
	})

	enrichDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "enrichment_duration_seconds",
		Help:      "Time spent resolving stored results for the tree",
		Buckets:   prometheus.DefBuckets,
	})

	enrichResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "enrichment_results_total",
		Help:      "Count of leaves looked up during enrichment",
	}, []string{
		"found",
	})

	storeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "result_store_requests_total",
		Help:      "Count of result store requests",
	}, []string{
		"backend",
		"op",
		"result",
	})

	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "api_requests_total",
		Help:      "Count of API requests",
	}, []string{
		"route",
		"code",
	})

	websocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "websocket_clients",
		Help:      "Number of connected event stream clients",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordBuild(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	buildsTotal.WithLabelValues(result).Inc()
}

func RecordSync(nodes int) {
	if Debug {
		log.Debug("metric set", "m", "tree_nodes", "nodes", nodes)
	}
	syncsTotal.Inc()
	treeNodes.Set(float64(nodes))
}

func RecordRunStarted(solution string) {
	runsTotal.WithLabelValues(solution).Inc()
	runProgress.Set(0)
}

func RecordTestExecuted(outcome types.TestState) {
	if Debug {
		log.Debug("metric inc",
			"m", "tests_executed_total",
			"outcome", outcome)
	}
	testsExecutedTotal.WithLabelValues(outcome.String()).Inc()
}

func RecordRoutingMiss() {
	routingMissesTotal.Inc()
}

func RecordProgress(fraction float64) {
	runProgress.Set(fraction)
}

func RecordRunFinished(solution string, duration time.Duration) {
	runProgress.Set(1)
	runDuration.WithLabelValues(solution).Set(duration.Seconds())
}

func RecordEnrichment(duration time.Duration, found, total int) {
	enrichDuration.Observe(duration.Seconds())
	enrichResultsTotal.WithLabelValues("true").Add(float64(found))
	enrichResultsTotal.WithLabelValues("false").Add(float64(total - found))
}

// RecordStoreRequest labels a result store call as hit, miss or error.
func RecordStoreRequest(backend, op, result string) {
	storeRequestsTotal.WithLabelValues(backend, op, result).Inc()
}

func RecordAPIRequest(route string, code int) {
	apiRequestsTotal.WithLabelValues(route, fmt.Sprintf("%d", code)).Inc()
}

func SetWebsocketClients(n int) {
	websocketClients.Set(float64(n))
}
