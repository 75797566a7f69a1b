// Package health publishes the compaction controller's state over the
// standard gRPC health protocol.
package health

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
	"github.com/cameronsims/DynamicPopulationDensity/internal/timeutil"
)

// ServiceName is the health service reported for the compaction job.
const ServiceName = "dpd.compaction"

// DefaultPollInterval is how often Watch re-evaluates the checker.
const DefaultPollInterval = 15 * time.Second

// Checker reports whether the watched component is healthy.
type Checker interface {
	Healthy() bool
}

// Server hosts grpc.health.v1 for ServiceName and the overall server.
type Server struct {
	addr    string
	checker Checker
	clock   timeutil.Clock

	hs      *health.Server
	grpc    *grpc.Server
	lis     net.Listener
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewServer returns a health server that will listen on addr.
func NewServer(addr string, checker Checker, clock timeutil.Clock) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Server{
		addr:    addr,
		checker: checker,
		clock:   clock,
		hs:      health.NewServer(),
	}
	s.hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if s.running.Load() {
		return fmt.Errorf("health server already running")
	}
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.lis = lis
	s.grpc = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.hs)
	s.Update()
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitoring.Logf("gRPC health listening on %s", lis.Addr())
		if err := s.grpc.Serve(lis); err != nil && s.running.Load() {
			monitoring.Logf("gRPC health server error: %v", err)
		}
	}()
	return nil
}

// Addr is the bound address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Update sets the serving status from the checker once.
func (s *Server) Update() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.checker != nil && s.checker.Healthy() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.hs.SetServingStatus(ServiceName, status)
	return status
}

// Watch calls Update every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	t := s.clock.NewTicker(interval)
	defer t.Stop()
	last := s.Update()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if st := s.Update(); st != last {
				monitoring.Logf("health: %s is now %s", ServiceName, st)
				last = st
			}
		}
	}
}

// Stop marks every service NOT_SERVING and drains open calls.
func (s *Server) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.hs.Shutdown()
	s.grpc.GracefulStop()
	s.wg.Wait()
}
