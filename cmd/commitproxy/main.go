// Command commitproxy runs one commit-proxy process: the client-facing
// CommitTransaction surface, the commit batcher, and the five-phase
// commit pipeline (internal/commitproxy). Wiring follows the teacher's
// unistore-server/main.go shape: flags layered over a TOML config,
// signal-driven graceful shutdown, and a keepalive-tuned gRPC server.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/juju/ratelimit"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.etcd.io/etcd/clientv3"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/pingcap-incubator/txnproxy/internal/adminserver"
	"github.com/pingcap-incubator/txnproxy/internal/batcher"
	"github.com/pingcap-incubator/txnproxy/internal/clients"
	"github.com/pingcap-incubator/txnproxy/internal/commitproxy"
	"github.com/pingcap-incubator/txnproxy/internal/config"
	"github.com/pingcap-incubator/txnproxy/internal/logging"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/pingcap-incubator/txnproxy/internal/txnstate"
)

var (
	configPath  = pflag.String("config", "", "config file path")
	masterAddr  = pflag.String("master-addr", "", "master (version oracle) address")
	resolverAddrs = pflag.StringSlice("resolver-addrs", nil, "resolver addresses, in resolver-id order")
	logAddr     = pflag.String("log-addr", "", "log system address")
	rateKeeperAddr = pflag.String("rate-keeper-addr", "", "rate keeper address")
	remoteLogAddrs = pflag.StringSlice("remote-log-addrs", nil, "remote-region log system addresses to poll for pop monitoring")
	locality    = pflag.String("locality", "", "this proxy's locality, passed to PopTxs")
	remotePopInterval = pflag.Duration("remote-pop-interval", 5*time.Second, "remote-log pop monitor poll interval")
)

func main() {
	pflag.Parse()
	cfg := config.NewDefaultConfig()
	if *configPath != "" {
		if err := config.LoadFile(*configPath, cfg); err != nil {
			panic(err)
		}
	}
	cfg.RegisterFlags(pflag.CommandLine)
	pflag.Parse()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	if err := logging.Init(cfg.LogLevel); err != nil {
		panic(err)
	}

	master := dialMaster(*masterAddr)
	resolverClients := dialResolvers(*resolverAddrs)
	logSystem := dialLogSystem(*logAddr)

	pipeline := commitproxy.New(commitproxy.Config{
		ResolverCount:                    cfg.ResolverCount,
		MaxReadTransactionLifeVersions:   cfg.MaxReadTransactionLifeVersions,
		MaxWriteTransactionLifeVersions:  cfg.MaxWriteTransactionLifeVersions,
		ResolverCoalesceTime:             cfg.ResolverCoalesceTime,
		CommitSampleCost:                 cfg.CommitSampleCost,
	}, master, resolverClients, logSystem)

	server := commitproxy.NewServer(pipeline, batcher.Config{
		MaxBatchInterval:            cfg.MaxBatchInterval,
		CommitBatchIntervalFromIdle: cfg.CommitBatchIntervalFromIdle,
		MinCommitBatchInterval:      cfg.MinCommitBatchInterval,
		MaxCommitBatchInterval:      cfg.MaxCommitBatchInterval,
		TransactionSizeLimit:        int(cfg.TransactionSizeLimitBytes()),
		MaxBatchCount:               cfg.MaxBatchCount,
		MemBytesLimit:               cfg.MemBytesLimitBytes(),
		LargeTransactionThreshold:   int(cfg.TransactionSizeLimitBytes()) / 4,
	}, 10000)

	stop := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	go server.Run(ctx, stop)
	go runCoordinatorsWatch(ctx, cfg, pipeline)
	go runTagCostReporter(ctx, stop, pipeline, *rateKeeperAddr)
	if remoteLogs := dialRemoteLogs(*remoteLogAddrs); len(remoteLogs) > 0 {
		monitor := commitproxy.NewRemotePopMonitor(pipeline, remoteLogs, *locality, *remotePopInterval)
		go monitor.Run(ctx, stop)
	}

	grpcServer := newGRPCServer()
	grpcServer.RegisterService(&commitproxy.ServiceDesc, server)

	l, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Fatal("commitproxy: listen", zap.Error(err))
	}

	go serveAdmin(cfg.AdminAddr, pipeline)

	handleSignal(grpcServer, stop, cancel)
	log.Info("commitproxy: listening", zap.String("addr", cfg.ListenAddr))
	if err := grpcServer.Serve(l); err != nil {
		log.Fatal("commitproxy: serve", zap.Error(err))
	}
}

// newGRPCServer mirrors the teacher's unistore-server/main.go keepalive
// tuning, with grpc-ecosystem/go-grpc-prometheus instrumenting every
// unary call.
func newGRPCServer() *grpc.Server {
	alivePolicy := keepalive.EnforcementPolicy{
		MinTime:             2 * time.Second,
		PermitWithoutStream: true,
	}
	srv := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(alivePolicy),
		grpc.InitialWindowSize(1<<30),
		grpc.InitialConnWindowSize(1<<30),
		grpc.MaxRecvMsgSize(10*1024*1024),
		grpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
	)
	grpc_prometheus.Register(srv)
	return srv
}

func serveAdmin(addr string, pipeline *commitproxy.Pipeline) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", adminserver.New(pipeline.Epoch(), inFlightStatus{pipeline.Epoch()}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("commitproxy: admin server", zap.Error(err))
	}
}

type inFlightStatus struct{ epoch interface {
	CommittedVersion() int64
	MinKnownCommittedVersion() int64
	Locked() bool
} }

func (s inFlightStatus) CommittedVersion() int64         { return s.epoch.CommittedVersion() }
func (s inFlightStatus) MinKnownCommittedVersion() int64 { return s.epoch.MinKnownCommittedVersion() }
func (s inFlightStatus) Locked() bool                     { return s.epoch.Locked() }
func (s inFlightStatus) InFlightBatches() int             { return 0 }

func dialMaster(addr string) clients.MasterClient {
	if addr == "" {
		return nil
	}
	conn, err := grpc.Dial(addr, clients.DialOptions()...)
	if err != nil {
		log.Fatal("commitproxy: dial master", zap.Error(err))
	}
	return clients.NewMasterClient(conn)
}

func dialResolvers(addrs []string) []clients.ResolverClient {
	out := make([]clients.ResolverClient, 0, len(addrs))
	for _, addr := range addrs {
		conn, err := grpc.Dial(addr, clients.DialOptions()...)
		if err != nil {
			log.Fatal("commitproxy: dial resolver", zap.String("addr", addr), zap.Error(err))
		}
		out = append(out, clients.NewResolverClient(conn))
	}
	return out
}

func dialRemoteLogs(addrs []string) []clients.LogSystemClient {
	out := make([]clients.LogSystemClient, 0, len(addrs))
	for _, addr := range addrs {
		conn, err := grpc.Dial(addr, clients.DialOptions()...)
		if err != nil {
			log.Error("commitproxy: dial remote log", zap.String("addr", addr), zap.Error(err))
			continue
		}
		out = append(out, clients.NewLogSystemClient(conn))
	}
	return out
}

func dialLogSystem(addr string) clients.LogSystemClient {
	if addr == "" {
		return nil
	}
	conn, err := grpc.Dial(addr, clients.DialOptions()...)
	if err != nil {
		log.Fatal("commitproxy: dial log system", zap.Error(err))
	}
	return clients.NewLogSystemClient(conn)
}

// runCoordinatorsWatch mirrors the cluster's coordinator set into the
// pipeline's txnStateStore from etcd, when etcd-endpoints is
// configured (spec.md section 4, "coordinators_changed" terminal
// error).
func runCoordinatorsWatch(ctx context.Context, cfg *config.Config, pipeline *commitproxy.Pipeline) {
	if len(cfg.EtcdEndpoints) == 0 {
		return
	}
	client, err := clientv3.New(clientv3.Config{Endpoints: cfg.EtcdEndpoints, DialTimeout: 5 * time.Second})
	if err != nil {
		log.Error("commitproxy: etcd dial", zap.Error(err))
		return
	}
	defer client.Close()

	watcher := txnstate.NewCoordinatorWatcher(client, cfg.CoordinatorsKey, pipeline.State(), func(change txnstate.CoordinatorsChange) {
		log.Warn("commitproxy: coordinators changed", zap.Strings("old", change.Old), zap.Strings("new", change.New))
	})
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("commitproxy: coordinators watch exited (coordinators_changed)", zap.Error(err))
	}
}

// runTagCostReporter flushes the pipeline's sampled per-(server, tag)
// write costs to the rate keeper at a fixed cadence, paced with
// juju/ratelimit's token bucket so a rate-keeper outage cannot turn
// this into a tight retry loop (spec.md section 4.5; reportTxnTagCommitCost
// per SPEC_FULL.md's supplemented feature list).
func runTagCostReporter(ctx context.Context, stop <-chan struct{}, pipeline *commitproxy.Pipeline, rateKeeperAddr string) {
	if rateKeeperAddr == "" {
		return
	}
	conn, err := grpc.Dial(rateKeeperAddr, clients.DialOptions()...)
	if err != nil {
		log.Error("commitproxy: dial rate keeper", zap.Error(err))
		return
	}
	rateKeeper := clients.NewRateKeeperClient(conn)

	bucket := ratelimit.NewBucketWithRate(1, 1)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			bucket.Wait(1)
			costs := pipeline.DrainSampledCosts()
			if len(costs) == 0 {
				continue
			}
			if err := rateKeeper.ReportTagCosts(ctx, &txnpb.TagCostReport{Costs: costs}); err != nil {
				log.Warn("commitproxy: report tag costs", zap.Error(err))
			}
		}
	}
}

func handleSignal(grpcServer *grpc.Server, stop chan struct{}, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		log.Info("commitproxy: got signal, exiting", zap.String("signal", sig.String()))
		close(stop)
		cancel()
		grpcServer.GracefulStop()
	}()
}
