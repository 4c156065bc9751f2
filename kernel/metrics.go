package kernel

import "github.com/prometheus/client_golang/prometheus"

// kernelMetrics exposes the live object counts of a Kernel as Prometheus
// gauges, registered under the "p2goemu" namespace. The original has no
// equivalent (pSOS+ diagnostics were limited to t_mode's rn_getconfig-style
// snapshot and DIAG_PRINTFS), but client_golang is already the convention
// for exporting counts like these, and the object tables already make the
// bookkeeping free, so it is carried here as the natural Go-native
// replacement for rn_getconfig.
type kernelMetrics struct {
	tasks       prometheus.Gauge
	queues      prometheus.Gauge
	vqueues     prometheus.Gauge
	semaphores  prometheus.Gauge
	partitions  prometheus.Gauge
	schedLocks  prometheus.Counter
	timeouts    prometheus.Counter
}

func newKernelMetrics(reg prometheus.Registerer, instance string) *kernelMetrics {
	labels := prometheus.Labels{"instance": instance}
	m := &kernelMetrics{
		tasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "p2goemu",
			Subsystem:   "tasks",
			Name:        "live",
			Help:        "Number of task control blocks currently allocated.",
			ConstLabels: labels,
		}),
		queues: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "p2goemu",
			Subsystem:   "queues",
			Name:        "live",
			Help:        "Number of fixed-length message queues currently allocated.",
			ConstLabels: labels,
		}),
		vqueues: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "p2goemu",
			Subsystem:   "vqueues",
			Name:        "live",
			Help:        "Number of variable-length message queues currently allocated.",
			ConstLabels: labels,
		}),
		semaphores: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "p2goemu",
			Subsystem:   "semaphores",
			Name:        "live",
			Help:        "Number of counting semaphores currently allocated.",
			ConstLabels: labels,
		}),
		partitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "p2goemu",
			Subsystem:   "partitions",
			Name:        "live",
			Help:        "Number of fixed-block partitions currently allocated.",
			ConstLabels: labels,
		}),
		schedLocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "p2goemu",
			Subsystem:   "scheduler",
			Name:        "locks_total",
			Help:        "Number of top-level (non-reentrant) scheduler lock acquisitions.",
			ConstLabels: labels,
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "p2goemu",
			Subsystem:   "waits",
			Name:        "timeouts_total",
			Help:        "Number of timed waits (q_receive/q_vreceive/ev_receive/sm_p with a deadline) that expired.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.tasks, m.queues, m.vqueues, m.semaphores, m.partitions, m.schedLocks, m.timeouts)
	}
	return m
}
