// Command p2boot is the privileged bootstrap entry point for a p2goemu
// program: it registers its own main goroutine as the root task at maximum
// priority, which then calls the registered Sysroot function to create
// whatever tasks, queues,
// semaphores and partitions the application needs, and exits once that
// function returns (spec.md section 6, "System entry").
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/xxha/p2goemu"
	"github.com/xxha/p2goemu/kernel"
	"github.com/xxha/p2goemu/vlog"
)

// Sysroot is the user-provided root procedure. Applications embedding
// p2boot register one with SetSysroot before calling Main.
var Sysroot func()

// SetSysroot registers the root procedure p2boot's bootstrap task runs.
func SetSysroot(f func()) { Sysroot = f }

var (
	instanceName = pflag.String("instance", "default", "name of this kernel instance, used to label metrics")
	tick         = pflag.Duration("tick", 10*time.Millisecond, "duration of one timed-wait tick")
	maxTasks     = pflag.Uint32("max-tasks", 256, "maximum number of live tasks")
	metricsAddr  = pflag.String("metrics-addr", "", "if non-empty, serve Prometheus metrics on this address")
)

func main() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
	if err := vlog.ConfigureLibraryLoggerFromFlags(); err != nil {
		fmt.Fprintln(os.Stderr, "p2boot: configuring logger:", err)
		os.Exit(1)
	}
	defer vlog.FlushLog()

	reg := prometheus.NewRegistry()
	p2goemu.Default = kernel.New(kernel.Config{
		Instance:      *instanceName,
		MaxTasks:      *maxTasks,
		MaxQueues:     64,
		MaxVQueues:    64,
		MaxSemaphores: 128,
		MaxPartitions: 32,
		Tick:          *tick,
		Registerer:    reg,
	})

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				vlog.Errorf("p2boot: metrics server exited: %v", err)
			}
		}()
	}

	if Sysroot == nil {
		fmt.Fprintln(os.Stderr, "p2boot: no Sysroot registered, nothing to run")
		os.Exit(1)
	}

	p2goemu.Boot("ROOT")
	Sysroot()
}
