// Command grvproxy runs one read-version-proxy process: the
// client-facing GetReadVersion and GetKeyServerLocations surfaces plus
// the priority-queue scheduler (internal/grv). Wiring mirrors
// cmd/commitproxy/main.go's shape, generalized to the RVP's simpler
// single-RPC-type surface.
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
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/pingcap-incubator/txnproxy/internal/adminserver"
	"github.com/pingcap-incubator/txnproxy/internal/clients"
	"github.com/pingcap-incubator/txnproxy/internal/clock"
	"github.com/pingcap-incubator/txnproxy/internal/config"
	"github.com/pingcap-incubator/txnproxy/internal/grv"
	"github.com/pingcap-incubator/txnproxy/internal/keyinfo"
	"github.com/pingcap-incubator/txnproxy/internal/logging"
	"github.com/pingcap-incubator/txnproxy/internal/queue"
)

var (
	configPath     = pflag.String("config", "", "config file path")
	masterAddr     = pflag.String("master-addr", "", "master (version oracle) address")
	rateKeeperAddr = pflag.String("rate-keeper-addr", "", "rate keeper address")
	keyLocationQueueSize = pflag.Int("key-location-max-queue-size", 100, "KEY_LOCATION_MAX_QUEUE_SIZE")
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
	epoch := clock.NewEpochState()
	q := queue.NewGRVQueue()

	proxy := grv.New(grv.Config{
		GRVBatchTime:       cfg.GRVBatchTime,
		GRVProxyCount:      cfg.GRVProxyCount,
		MaxRequestsToStart: cfg.MaxRequestsToStart,
		MaxQueueSize:       1000,
	}, q, epoch, master)
	server := grv.NewServer(proxy)
	keyLocations := grv.NewKeyLocationServer(keyinfo.New(), *keyLocationQueueSize)

	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan struct{})

	go server.Run(ctx, stop)
	go runRateKeeperPoll(ctx, stop, proxy, *rateKeeperAddr)

	grpcServer := newGRPCServer()
	grpcServer.RegisterService(&grv.ServiceDesc, server)
	grpcServer.RegisterService(&grv.KeyLocationServiceDesc, keyLocations)

	l, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Fatal("grvproxy: listen", zap.Error(err))
	}

	go serveAdmin(cfg.AdminAddr, epoch)

	handleSignal(grpcServer, stop, cancel)
	log.Info("grvproxy: listening", zap.String("addr", cfg.ListenAddr))
	if err := grpcServer.Serve(l); err != nil {
		log.Fatal("grvproxy: serve", zap.Error(err))
	}
}

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

func serveAdmin(addr string, epoch *clock.EpochState) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", adminserver.New(epoch, zeroInFlight{epoch}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("grvproxy: admin server", zap.Error(err))
	}
}

type zeroInFlight struct{ epoch *clock.EpochState }

func (z zeroInFlight) CommittedVersion() int64         { return z.epoch.CommittedVersion() }
func (z zeroInFlight) MinKnownCommittedVersion() int64 { return z.epoch.MinKnownCommittedVersion() }
func (z zeroInFlight) Locked() bool                     { return z.epoch.Locked() }
func (z zeroInFlight) InFlightBatches() int              { return 0 }

func dialMaster(addr string) clients.MasterClient {
	if addr == "" {
		return nil
	}
	conn, err := grpc.Dial(addr, clients.DialOptions()...)
	if err != nil {
		log.Fatal("grvproxy: dial master", zap.Error(err))
	}
	return clients.NewMasterClient(conn)
}

// runRateKeeperPoll renews (rate, batchRate) at leaseDuration/2 cadence
// (spec.md section 4.5), paced by golang.org/x/time/rate so a
// misconfigured lease duration cannot turn this into a tight poll
// loop against the rate keeper.
func runRateKeeperPoll(ctx context.Context, stop <-chan struct{}, proxy *grv.Proxy, addr string) {
	if addr == "" {
		return
	}
	conn, err := grpc.Dial(addr, clients.DialOptions()...)
	if err != nil {
		log.Error("grvproxy: dial rate keeper", zap.Error(err))
		return
	}
	rateKeeper := clients.NewRateKeeperClient(conn)

	const leaseDuration = 10 * time.Second
	limiter := rate.NewLimiter(rate.Every(leaseDuration/2), 1)
	ticker := time.NewTicker(leaseDuration / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			update, err := rateKeeper.GetRate(ctx, proxy.DrainTagCounts())
			if err != nil {
				log.Warn("grvproxy: get rate", zap.Error(err))
				continue
			}
			proxy.ApplyRateUpdate(update, leaseDuration)
		}
	}
}

func handleSignal(grpcServer *grpc.Server, stop chan struct{}, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		log.Info("grvproxy: got signal, exiting", zap.String("signal", sig.String()))
		close(stop)
		cancel()
		grpcServer.GracefulStop()
	}()
}
