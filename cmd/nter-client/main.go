package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/nter/pkg/client"
	"github.com/m-lab/nter/pkg/nter1/spec"
)

var (
	flagServer      = flag.String("server", "", "Server hostname or IP address")
	flagPort        = flag.Int("port", spec.DefaultPort, "Server port")
	flagBuffer      = flag.Int("buffer", spec.DefaultSendBufferSize, "Size of each write in bytes")
	flagInterval    = flag.Duration("interval", spec.DefaultIntervalDuration, "Duration of each run")
	flagIntervals   = flag.Int("intervals", spec.DefaultIntervals, "Number of runs (0 to run until interrupted)")
	flagLatency     = flag.Int("latency", spec.DefaultLatencySamples, "Number of latency samples (0 to disable)")
	flagLatencyAddr = flag.String("latency-addr", "", "Address/port of the echo listener (default: server and echo port)")
	flagUnit        = flag.String("unit", string(spec.Mbps), "Throughput unit (Mbps or Gbps)")
	flagRate        = flag.Int("rate", 0, "Maximum sending rate in bytes per second (0 for no limit)")
	flagCC          = flag.String("cc", "", "Congestion control algorithm to use (empty for the system default)")
	flagDebug       = flag.Bool("debug", false, "Print debug information")
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")

	if *flagDebug {
		log.SetLevel(log.DebugLevel)
	}
	if *flagServer == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *flagBuffer <= 0 || *flagInterval <= 0 || *flagIntervals < 0 || *flagLatency < 0 {
		log.Error("Invalid configuration: -buffer and -interval must be positive, -intervals and -latency non-negative")
		os.Exit(2)
	}
	unit, err := spec.ParseUnit(*flagUnit)
	rtx.Must(err, "Invalid -unit")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cl := client.New(client.Config{
		Server:            *flagServer,
		Port:              *flagPort,
		BufferSize:        *flagBuffer,
		IntervalDuration:  *flagInterval,
		Intervals:         *flagIntervals,
		LatencySamples:    *flagLatency,
		LatencyAddr:       *flagLatencyAddr,
		Unit:              unit,
		RateLimit:         *flagRate,
		CongestionControl: *flagCC,
		Emitter:           client.HumanReadable{Debug: *flagDebug, Unit: unit},
	})
	if _, err := cl.Run(ctx); err != nil {
		os.Exit(1)
	}
}
