package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	startErr error
	stopErr  error
	started  atomic.Bool
	stopped  atomic.Bool
}

func (f *fakeService) Start(context.Context) error {
	f.started.Store(true)
	return f.startErr
}

func (f *fakeService) Stop(context.Context) error {
	f.stopped.Store(true)
	return f.stopErr
}

func freeAddr(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	return addr
}

func run(ctx context.Context, opts *ServerOptions) <-chan error {
	done := make(chan error, 1)
	go func() { done <- RunServer(ctx, opts) }()

	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(ShutdownTimeout + 5*time.Second):
		t.Fatal("RunServer did not return")
		return nil
	}
}

func TestRunServer_ServesHTTPUntilCancelled(t *testing.T) {
	svc := &fakeService{}
	addr := freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())

	done := run(ctx, &ServerOptions{
		HTTPAddr: addr,
		HTTPHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "ok")
		}),
		GRPCAddr:    freeAddr(t),
		ServiceName: "test",
		Service:     svc,
	})

	url := fmt.Sprintf("http://%s/", addr)

	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:gosec,noctx // test server
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, svc.started.Load())

	cancel()

	require.NoError(t, wait(t, done))
	assert.True(t, svc.stopped.Load())
}

func TestRunServer_Signal(t *testing.T) {
	svc := &fakeService{}

	done := run(context.Background(), &ServerOptions{
		ServiceName: "test",
		Service:     svc,
		Signals:     []os.Signal{syscall.SIGUSR1},
	})

	require.Eventually(t, svc.started.Load, time.Second, 5*time.Millisecond)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	require.NoError(t, wait(t, done))
	assert.True(t, svc.stopped.Load())
}

func TestRunServer_StartError(t *testing.T) {
	svc := &fakeService{startErr: errors.New("no upstream")}

	err := RunServer(context.Background(), &ServerOptions{Service: svc})
	require.Error(t, err)
	assert.False(t, svc.stopped.Load())
}

func TestRunServer_ListenErrorShutsDown(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer lis.Close()

	svc := &fakeService{}

	err = wait(t, run(context.Background(), &ServerOptions{
		HTTPAddr:    lis.Addr().String(),
		HTTPHandler: http.NotFoundHandler(),
		Service:     svc,
	}))
	require.Error(t, err)
	assert.True(t, svc.stopped.Load())
}

func TestRunServer_StopError(t *testing.T) {
	svc := &fakeService{stopErr: errors.New("stuck")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunServer(ctx, &ServerOptions{Service: svc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck")
}

func TestRunServer_NoService(t *testing.T) {
	assert.ErrorIs(t, RunServer(context.Background(), &ServerOptions{}), errNoService)
}
