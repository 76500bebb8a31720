package main

import (
	"errors"
	"fmt"
	"net"

	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/ipc"
	"github.com/backkem/hace/pkg/session"
	"github.com/backkem/hace/pkg/transport"
	"github.com/pion/logging"
)

// daemon wires an engine, a session manager and an IPC server onto one
// datagram endpoint.
type daemon struct {
	engine *hace.SoftEngine
	m      *session.Manager
	srv    *ipc.Server
	udp    *transport.UDP
	log    logging.LeveledLogger
}

// newDaemon builds a daemon serving conn, or cfg.Listen when conn is nil.
func newDaemon(cfg Config, lf logging.LoggerFactory, conn net.PacketConn) (*daemon, error) {
	engine, err := hace.NewSoftEngine(hace.SoftEngineConfig{
		CompletionPolls: cfg.CompletionPolls,
		LoggerFactory:   lf,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	m, err := session.New(engine, session.ManagerConfig{
		MaxSessions:   cfg.MaxSessions,
		MaxPolls:      cfg.MaxPolls,
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, fmt.Errorf("create session manager: %w", err)
	}

	srv, err := ipc.NewServer(ipc.ServerConfig{
		Manager:       m,
		MaxTransfer:   cfg.MaxTransfer,
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}

	udp, err := transport.NewUDP(transport.UDPConfig{
		Conn:          conn,
		ListenAddr:    cfg.Listen,
		Handler:       srv.HandleDatagram,
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	return &daemon{
		engine: engine,
		m:      m,
		srv:    srv,
		udp:    udp,
		log:    lf.NewLogger("hace-digestd"),
	}, nil
}

func (d *daemon) start() error {
	if err := d.udp.Start(); err != nil {
		return err
	}
	d.log.Infof("serving %d sessions on %v", d.m.MaxSessions(), d.udp.LocalAddr())
	return nil
}

// stop closes the endpoint and cancels the sessions left open.
func (d *daemon) stop() error {
	open := d.srv.SessionCount()
	err := errors.Join(d.udp.Stop(), d.srv.Close())

	st := d.udp.Stats()
	sw := d.m.SwitchStats()
	es := d.engine.Stats()
	d.log.Infof("stopped: %d open sessions cancelled, %d datagrams in, %d out, %d dropped, %d context switches, %d engine commands",
		open, st.Received, st.Sent, st.Dropped, sw.Switches, es.Commands)
	return err
}
