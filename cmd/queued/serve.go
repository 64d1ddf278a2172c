package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loopwire/queued/internal/broker"
	"github.com/loopwire/queued/internal/metrics"
	"github.com/loopwire/queued/internal/reactor"
	"github.com/loopwire/queued/pkg/queue"
)

func newServeCommand() *cobra.Command {
	var v = viper.New()
	var cmd = &cobra.Command{
		Use:   "serve",
		Short: "Listen for client connections and serve queue requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(v)
		},
	}

	cmd.Flags().String("listen-addr", "0.0.0.0:7790", "address to accept client connections on")
	cmd.Flags().Int("shards", 1, "number of independent reactor/listener instances sharing one queue set (>1 forces the concurrent queue backend)")
	cmd.Flags().Int("slab-capacity", 4096, "max simultaneously registered connections per shard")
	cmd.Flags().Duration("default-timeout", 30*time.Second, "redelivery timeout applied when a Read request specifies timeout_ms=0")
	cmd.Flags().Int("queue-capacity", 10000, "max buffered messages per queue when using the concurrent backend")
	cmd.Flags().Duration("poll-timeout", 100*time.Millisecond, "upper bound on each reactor tick's blocking poll")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9790", "address to serve Prometheus metrics on; empty disables it")
	cmd.Flags().String("log-level", "info", "logrus level: debug, info, warn, error")

	for _, name := range []string{
		"listen-addr", "shards", "slab-capacity", "default-timeout",
		"queue-capacity", "poll-timeout", "metrics-addr", "log-level",
	} {
		bindFlag(v, cmd, name)
	}
	return cmd
}

func runServe(v *viper.Viper) error {
	var level, err = log.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	var reg = prometheus.NewRegistry()
	var collectors = metrics.NewCollectors(reg)

	if addr := v.GetString("metrics-addr"); addr != "" {
		var mux = http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			log.WithField("addr", addr).Info("serving metrics")
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.WithField("error", err).Error("metrics server exited")
			}
		}()
	}

	var shards = v.GetInt("shards")
	if shards < 1 {
		shards = 1
	}

	var queues queue.Set
	if shards > 1 {
		queues = queue.NewConcurrent(v.GetInt("queue-capacity"))
	} else {
		queues = queue.NewSinglethread()
	}

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	var servers = make([]*broker.Server, 0, shards)
	for i := 0; i < shards; i++ {
		var rcfg = reactor.DefaultConfig()
		rcfg.SlabCapacity = v.GetInt("slab-capacity")
		rcfg.PollTimeout = v.GetDuration("poll-timeout")

		var srv, serr = broker.NewServer(broker.ServerConfig{
			ListenAddr:       v.GetString("listen-addr"),
			Reactor:          rcfg,
			DefaultTimeout:   v.GetDuration("default-timeout"),
			RecentHistoryCap: v.GetInt("slab-capacity"),
			Queues:           queues,
			Metrics:          collectors,
		})
		if serr != nil {
			return serr
		}
		if serr := srv.Serve(ctx); serr != nil {
			return serr
		}
		servers = append(servers, srv)
	}
	log.WithField("shards", shards).Info("broker serving")

	var sig = make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	for _, srv := range servers {
		if serr := srv.Shutdown(); serr != nil {
			log.WithField("error", serr).Warn("error during shutdown")
		}
	}
	return nil
}
