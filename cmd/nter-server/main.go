package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/nter/internal/handler"
	"github.com/m-lab/nter/internal/session"
	"github.com/m-lab/nter/pkg/nter1/spec"
	"github.com/m-lab/nter/pkg/version"
	"golang.org/x/sync/errgroup"
)

var (
	flagAddr        = flag.String("addr", ":"+strconv.Itoa(spec.DefaultPort), "Listen address/port for the main listener")
	flagMode        = flag.String("mode", string(spec.ModeThroughput), "Behavior of the main listener (throughput or echo)")
	flagEchoAddr    = flag.String("echo-addr", ":"+strconv.Itoa(spec.DefaultEchoPort), "Listen address/port for latency round trips (empty to disable)")
	flagBuffer      = flag.Int("buffer", spec.DefaultReceiveBufferSize, "Size of the read buffer in bytes")
	flagInterval    = flag.Duration("interval", spec.DefaultReportInterval, "Interval sampling cadence (0 for one interval per run)")
	flagSplitMarker = flag.Bool("split-marker", true, "Recognize end markers split across two reads")
	flagReadLimit   = flag.Int("read-limit", 0, "Maximum read rate per connection in bytes per second (0 for no limit)")
	flagCC          = flag.String("cc", "", "Congestion control algorithm to use (empty for the system default)")
	flagUnit        = flag.String("unit", string(spec.Gbps), "Unit for logged throughput values (Mbps or Gbps)")
	flagResultsAddr = flag.String("results-addr", "", "Listen address/port for the results HTTP endpoint (empty to disable)")
	flagResultsTTL  = flag.Duration("results-ttl", handler.DefaultResultTTL, "How long connection results are kept in memory")
	flagDebug       = flag.Bool("debug", false, "Enable debug logging")
)

// httpServer creates a new *http.Server with explicit Read and Write
// timeouts, the provided address and handler.
func httpServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")

	// Initialize logging and metrics.
	log.SetReportCaller(true)
	log.SetReportTimestamp(true)
	if *flagDebug {
		log.SetLevel(log.DebugLevel)
	}

	mode, err := spec.ParseMode(*flagMode)
	rtx.Must(err, "Invalid -mode")
	unit, err := spec.ParseUnit(*flagUnit)
	rtx.Must(err, "Invalid -unit")
	if *flagBuffer <= 0 {
		log.Fatal("Invalid -buffer", "buffer", *flagBuffer)
	}

	// Context for the whole program.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	registry := handler.NewRegistry(*flagResultsTTL)
	defer registry.Stop()
	h := handler.New(handler.Config{
		BufferSize:        *flagBuffer,
		ReportInterval:    *flagInterval,
		DetectSplitMarker: *flagSplitMarker,
		CongestionControl: *flagCC,
		Unit:              unit,
	}, registry)
	opts := session.Options{ReadLimit: *flagReadLimit}

	g, ctx := errgroup.WithContext(ctx)

	ln, err := session.Listen(ctx, *flagAddr, opts)
	rtx.Must(err, "Failed to create listener")
	log.Info("About to listen for tests", "version", version.Version,
		"endpoint", ln.Addr(), "mode", mode)
	g.Go(func() error {
		return session.Serve(ctx, ln, h.ForMode(mode))
	})

	// A throughput listener gets an echo listener for latency round trips.
	if mode == spec.ModeThroughput && *flagEchoAddr != "" {
		echoLn, err := session.Listen(ctx, *flagEchoAddr, session.Options{})
		rtx.Must(err, "Failed to create echo listener")
		log.Info("About to listen for latency round trips", "endpoint", echoLn.Addr())
		g.Go(func() error {
			return session.Serve(ctx, echoLn, h.ForMode(spec.ModeEcho))
		})
	}

	if *flagResultsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc(spec.ResultPath, h.Result)
		mux.HandleFunc(spec.ResultsPath, h.Results)
		srv := httpServer(*flagResultsAddr, mux)
		l, err := net.Listen("tcp", srv.Addr)
		rtx.Must(err, "Failed to create results listener")
		log.Info("About to serve results", "endpoint", l.Addr())
		g.Go(func() error {
			err := srv.Serve(l)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("Server stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
