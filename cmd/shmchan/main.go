// Command shmchan produces, consumes and inspects shared memory channels.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/srediag/shmchan/internal/health"
	"github.com/srediag/shmchan/internal/logging"
	"github.com/srediag/shmchan/pkg/loadgen"
	"github.com/srediag/shmchan/pkg/shm"
	"github.com/srediag/shmchan/pkg/transport"
)

const defaultPath = "/dev/shm/shmchan.dat"

var logger = logging.New("shmchan", os.Stderr)

type options struct {
	mode        string
	id          int
	count       int
	path        string
	capacity    uint32
	interval    time.Duration
	producers   int
	consumers   int
	print       bool
	wait        time.Duration
	metricsAddr string
	healthAddr  string
	logLevel    int
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := pflag.NewFlagSet("shmchan", pflag.ContinueOnError)
	fs.StringVarP(&o.mode, "mode", "m", "produce", "Mode: produce | consume | bench | stat | close | remove")
	fs.IntVarP(&o.id, "id", "i", 0, "Producer/Consumer ID")
	fs.IntVarP(&o.count, "count", "c", 10, "Number of messages per producer")
	fs.StringVarP(&o.path, "ipc", "f", defaultPath, "Shared memory file path or bare name under /dev/shm")
	fs.Uint32Var(&o.capacity, "capacity", shm.DefaultCapacity, "Ring capacity in bytes, must match across processes")
	fs.DurationVar(&o.interval, "interval", 0, "Delay between messages of one producer")
	fs.IntVar(&o.producers, "producers", 1, "Producers in bench mode")
	fs.IntVar(&o.consumers, "consumers", 1, "Consumers in bench mode")
	fs.BoolVar(&o.print, "print", false, "Print every message")
	fs.DurationVar(&o.wait, "wait", 10*time.Second, "How long consume and stat wait for the channel to appear")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.StringVar(&o.healthAddr, "health-addr", "", "Serve /live and /ready on this address")
	fs.IntVar(&o.logLevel, "log-level", -1, "Log level 0 (trace) to 5 (silent); -1 keeps "+logging.EnvLogLevel)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch o.mode {
	case "produce", "consume", "bench", "stat", "close", "remove":
	default:
		return nil, fmt.Errorf("unknown mode: %s", o.mode)
	}
	if o.count < 0 {
		return nil, fmt.Errorf("count must not be negative, got %d", o.count)
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if o.logLevel >= 0 {
		shm.SetLogLevel(o.logLevel)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, o); err != nil {
		logger.Errorf("%s: %v", o.mode, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o *options) error {
	if o.mode == "remove" {
		if err := shm.Remove(o.path); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", shm.RegionPath(o.path))
		return nil
	}

	config := shm.DefaultConfig()
	config.Capacity = o.capacity
	opts := transport.Options{Path: o.path, Config: config}
	switch o.mode {
	case "consume", "stat", "close":
		config.AttachOnly = true
		opts.AttachWait = o.wait
	}
	tr := transport.NewShmTransport(opts)
	if err := tr.StartContext(ctx); err != nil {
		return err
	}
	ch := tr.Channel()

	servers := serve(o, ch)
	defer shutdown(servers)

	switch o.mode {
	case "produce":
		return produce(ctx, o, tr)
	case "consume":
		return consume(ctx, o, tr)
	case "bench":
		defer tr.Stop() //nolint:errcheck
		return bench(ctx, o, tr)
	case "stat":
		defer tr.Stop() //nolint:errcheck
		return stat(ch)
	default:
		defer tr.Stop() //nolint:errcheck
		return tr.Shutdown()
	}
}

func produce(ctx context.Context, o *options, tr *transport.ShmTransport) error {
	var conn loadgen.Conn = tr
	var rep *loadgen.Reporter
	if o.print {
		rep = loadgen.NewReporter(os.Stdout, fmt.Sprintf("[Producer %d] Sent: ", o.id), 0)
		conn = printingConn{Conn: tr, rep: rep}
	}
	var sent atomic.Int64
	finished, err := untilDone(ctx, func() error {
		n, err := loadgen.Produce(ctx, conn, o.id, o.count, o.interval, true)
		sent.Store(int64(n))
		return err
	})
	if finished {
		_ = tr.Stop()
	}
	if rep != nil {
		_ = rep.Close()
	}
	fmt.Printf("[Producer %d] Done, sent %d\n", o.id, sent.Load())
	return ignoreInterrupt(err)
}

// ignoreInterrupt treats a stop by signal as a clean exit.
func ignoreInterrupt(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// untilDone runs f and waits for it or for ctx. f may stay parked inside the
// region after ctx is done; the process exits without detaching then.
func untilDone(ctx context.Context, f func() error) (finished bool, err error) {
	done := make(chan error, 1)
	go func() { done <- f() }()
	select {
	case err = <-done:
		return true, err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// printingConn echoes every sent message.
type printingConn struct {
	loadgen.Conn
	rep *loadgen.Reporter
}

func (c printingConn) Send(data []byte) error {
	if err := c.Conn.Send(data); err != nil {
		return err
	}
	c.rep.Print(data)
	return nil
}

// consume reads until the channel is closed. End markers are counted but do
// not stop the consumer, since other producers may still be running.
func consume(ctx context.Context, o *options, tr *transport.ShmTransport) error {
	var rep *loadgen.Reporter
	if o.print {
		rep = loadgen.NewReporter(os.Stdout, fmt.Sprintf("[Consumer %d] Got: ", o.id), 0)
	}
	tally := loadgen.NewTally()
	var ends atomic.Int64
	finished, err := untilDone(ctx, func() error {
		for {
			msg, err := tr.Receive()
			if err != nil {
				return err
			}
			if rep != nil {
				rep.Print(msg)
			}
			if string(msg) == loadgen.EndMarker {
				ends.Add(1)
				continue
			}
			tally.Add(msg)
		}
	})
	if finished {
		_ = tr.Stop()
	}
	if errors.Is(err, shm.ErrShutdown) {
		err = nil
	}
	if rep != nil {
		_ = rep.Close()
	}
	r := tally.Report(0, 0)
	fmt.Printf("[Consumer %d] received %d messages, %d end markers\n", o.id, r.Received, ends.Load())
	return ignoreInterrupt(err)
}

func bench(ctx context.Context, o *options, tr *transport.ShmTransport) error {
	var onMessage func([]byte)
	var rep *loadgen.Reporter
	if o.print {
		rep = loadgen.NewReporter(os.Stdout, "[Bench] Got: ", 0)
		onMessage = rep.Print
	}
	r, err := loadgen.Bench(ctx, tr, loadgen.Config{
		Producers: o.producers,
		Consumers: o.consumers,
		Messages:  o.count,
		Interval:  o.interval,
	}, onMessage)
	if rep != nil {
		_ = rep.Close()
	}
	fmt.Println(r.String())
	if err != nil {
		return err
	}
	if !r.OK() {
		return errors.New("messages lost or duplicated")
	}
	return nil
}

func stat(ch *shm.Channel) error {
	st, err := ch.Stats()
	if err != nil {
		return err
	}
	frames, verr := ch.Verify()
	fmt.Printf("path:     %s\n", ch.Path())
	fmt.Printf("capacity: %d\n", st.Capacity)
	fmt.Printf("head:     %d\n", st.Head)
	fmt.Printf("tail:     %d\n", st.Tail)
	fmt.Printf("used:     %d\n", st.Used)
	fmt.Printf("free:     %d\n", st.Free)
	fmt.Printf("closed:   %t\n", st.Closed)
	if verr != nil {
		fmt.Printf("frames:   invalid (%v)\n", verr)
		return verr
	}
	fmt.Printf("frames:   %d\n", frames)
	return nil
}

func serve(o *options, ch *shm.Channel) []*http.Server {
	var servers []*http.Server
	reg := prometheus.NewRegistry()
	if o.metricsAddr != "" {
		reg.MustRegister(shm.NewCollector(ch, prometheus.Labels{"mode": o.mode}))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		servers = append(servers, listen(o.metricsAddr, mux))
	}
	if o.healthAddr != "" {
		hopts := health.Options{}
		if o.metricsAddr != "" {
			hopts.Registerer = reg
			hopts.Namespace = "shmchan"
		}
		servers = append(servers, listen(o.healthAddr, health.NewHandler(ch, hopts)))
	}
	return servers
}

func listen(addr string, h http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("listen %s: %v", addr, err)
		}
	}()
	return srv
}

func shutdown(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			_ = srv.Shutdown(ctx)
		}(srv)
	}
	wg.Wait()
}
