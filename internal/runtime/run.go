//go:build linux

// Package runtime wires together the engine, transport, and status
// server into a running daemon, following the teacher's
// errCh/select-on-ctx.Done bootstrap idiom.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ripdaemon/ripd/internal/engine"
	"github.com/ripdaemon/ripd/internal/iface"
	"github.com/ripdaemon/ripd/internal/status"
	"github.com/ripdaemon/ripd/internal/transport"
)

// Run starts the protocol engine, the inbound multicast listener, and
// the status HTTP server (served over a unix socket at sockFile), and
// blocks until ctx is cancelled or a component fails.
func Run(ctx context.Context, eng *engine.Engine, ifaces *iface.NetlinkProvider, tr *transport.UDPTransport, sockFile string) error {
	errCh := make(chan error, 3)

	if err := ifaces.Refresh(); err != nil {
		return fmt.Errorf("runtime: initial interface refresh: %w", err)
	}
	metricInterfacesWatched.Set(float64(ifaces.Count()))
	if err := eng.Init(ctx, ifaces, tr); err != nil {
		return fmt.Errorf("runtime: engine init: %w", err)
	}
	if err := tr.JoinAll(ifaces.Count()); err != nil {
		return fmt.Errorf("runtime: join multicast groups: %w", err)
	}

	slog.Info("runtime: starting inbound listener")
	go func() {
		errCh <- tr.Serve(ctx, eng.HandlePacket)
	}()

	slog.Info("runtime: starting interface watcher")
	go func() {
		err := ifaces.Watch(ctx, func(index int, stateChanged, costChanged bool) {
			eng.HandleInterfaceChanged(uint32(index), stateChanged, costChanged)
		})
		errCh <- err
	}()

	mux := status.NewMux(eng)
	lis, err := net.Listen("unix", sockFile)
	if err != nil {
		return fmt.Errorf("runtime: create status listener: %w", err)
	}
	defer unix.Unlink(sockFile) //nolint

	if err := os.Chmod(sockFile, 0666); err != nil {
		slog.Error("runtime: set socket file perms failed", "err", err)
	}

	srv := &http.Server{Handler: mux}
	slog.Info("runtime: starting status server", "socket", sockFile)
	go func() {
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		slog.Info("runtime: shutting down")
		eng.Close()
		_ = srv.Close()
		return nil
	case err := <-errCh:
		eng.Close()
		_ = srv.Close()
		return err
	}
}
