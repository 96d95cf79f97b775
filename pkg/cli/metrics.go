package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/metrics"
)

// metricsServer exposes a Recorder over HTTP for the duration of a run.
type metricsServer struct {
	srv  *http.Server
	addr string
}

func serveMetrics(addr string, rec *metrics.Recorder, log *zap.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	m := &metricsServer{srv: srv, addr: ln.Addr().String()}
	log.Info("serving metrics", zap.String("addr", m.addr))
	return m, nil
}

func (m *metricsServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.srv.Shutdown(ctx)
}
