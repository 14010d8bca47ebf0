package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakeDB struct {
	down atomic.Bool
}

func (f *fakeDB) PingContext(context.Context) error {
	if f.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewHealthServer("127.0.0.1:0", logging.Nop(), &fakeDB{}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewHealthServer("127.0.0.1:99999", logging.Nop(), &fakeDB{}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

func startBufconn(t *testing.T, db Pinger, interval time.Duration) healthpb.HealthClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewHealthServer("bufconn", logging.Nop(), db, interval)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient error: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return healthpb.NewHealthClient(conn)
}

func statusOf(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q) error: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealth_ServingWhileDatabaseAnswers(t *testing.T) {
	t.Parallel()

	c := startBufconn(t, &fakeDB{}, time.Hour)

	if got := statusOf(t, c, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall status = %v, want SERVING", got)
	}
	if got := statusOf(t, c, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("%s status = %v, want SERVING", ServiceName, got)
	}
}

func TestHealth_FollowsDatabase(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	db.down.Store(true)
	c := startBufconn(t, db, 20*time.Millisecond)

	if got := statusOf(t, c, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %v, want NOT_SERVING", got)
	}

	db.down.Store(false)

	deadline := time.Now().Add(2 * time.Second)
	for statusOf(t, c, "") != healthpb.HealthCheckResponse_SERVING {
		if time.Now().After(deadline) {
			t.Fatal("status did not recover to SERVING")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
