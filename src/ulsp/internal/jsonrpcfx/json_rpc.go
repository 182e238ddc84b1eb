package jsonrpcfx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber/project-lsp/src/ulsp/internal/serverinfofile"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	_configKey = "jsonrpc"
	_outputKey = "lsp-address"
)

// Module is an fx module to handle JSON-RPC requests.
var Module = fx.Provide(New)

// JSONRPCModule represents a module to manage JSON-RPC requests.
type JSONRPCModule interface {
	OnStart(ctx context.Context) error
	ServeStream(ctx context.Context, conn jsonrpc2.Conn) error
	RegisterConnectionManager(connectionManager ConnectionManager) error
}

// Router serves as the interface through which handling of requests will be implemented.
type Router interface {
	HandleReq(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error
	UUID() uuid.UUID
}

// ConnectionManager will manage each active connection and its corresponding Router throughout the lifecycle of a connection.
type ConnectionManager interface {
	NewConnection(ctx context.Context, conn *jsonrpc2.Conn) (router Router, err error)
	RemoveConnection(ctx context.Context, id uuid.UUID)
}

// Config selects the transport. With Stdio set, a single client speaks over the process's standard streams
// and the daemon stops when that client goes away; otherwise any number of clients connect to Address.
type Config struct {
	Address string `yaml:"address"`
	Stdio   bool   `yaml:"stdio"`
}

type module struct {
	cfg Config

	connectionMgr  ConnectionManager
	ln             net.Listener
	logger         *zap.SugaredLogger
	serverInfoFile serverinfofile.ServerInfoFile
	shutdowner     fx.Shutdowner

	stdin  io.ReadCloser
	stdout io.WriteCloser

	stopMu   sync.Mutex
	stopping bool
}

// Params define values to be used by JsonRpcHandler.
type Params struct {
	fx.In

	Config         config.Provider
	Lifecycle      fx.Lifecycle
	Logger         *zap.SugaredLogger
	ServerInfoFile serverinfofile.ServerInfoFile
	Shutdowner     fx.Shutdowner
}

// New creates a new server to handle JSON-RPC requests on the configured transport.
func New(p Params) (JSONRPCModule, error) {
	if p.Lifecycle == nil || p.Config == nil {
		return nil, errors.New("required parameters are missing")
	}

	m := &module{
		logger:         p.Logger,
		serverInfoFile: p.ServerInfoFile,
		shutdowner:     p.Shutdowner,
		stdin:          os.Stdin,
		stdout:         os.Stdout,
	}

	if err := m.processConfig(p.Config); err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: m.OnStart,
		OnStop:  m.OnStop,
	})

	return m, nil
}

// OnStart will initialize a JSON-RPC handler and then begin handling incoming connections.
func (m *module) OnStart(ctx context.Context) error {
	if m.cfg.Stdio {
		go m.serveStdio()
		return nil
	}

	if err := m.setup(); err != nil {
		return err
	}

	go m.start()
	return nil
}

// OnStop closes the listener so that no new clients are accepted.
func (m *module) OnStop(ctx context.Context) error {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	m.stopping = true

	if m.ln != nil {
		return m.ln.Close()
	}
	return nil
}

// ServeStream is called when a new connection is initiated. Requests received via the connection will be routed to the handler, and answered via the connection's replier.
func (m *module) ServeStream(ctx context.Context, conn jsonrpc2.Conn) error {
	if m.connectionMgr == nil {
		m.logger.Errorf("cannot serve connection, no connection manager set")
		return errors.New("cannot serve connection, no connection manager set")
	}

	// Start handling the connection.
	handler, err := m.connectionMgr.NewConnection(ctx, &conn)
	if err != nil {
		return err
	}
	m.logger.Infow("client connected", zap.Stringer("uuid", handler.UUID()))
	conn.Go(ctx, handler.HandleReq)

	// Block indefinitely until connection closed.
	<-conn.Done()

	// Cleanup after connection.
	m.connectionMgr.RemoveConnection(ctx, handler.UUID())
	m.logger.Infow("client disconnected", zap.Stringer("uuid", handler.UUID()))

	return conn.Err()
}

// RegisterConnectionManager sets the connection manager, which keeps track of current active connections and provides a Router implementation.
func (m *module) RegisterConnectionManager(connectionMgr ConnectionManager) error {
	if m.connectionMgr != nil {
		return errors.New("cannot register a duplicate connection manager")
	}
	m.connectionMgr = connectionMgr
	return nil
}

// setup should be called after creation of a new handler to set initial values.
func (m *module) setup() error {
	if m.cfg.Address == "" {
		return errors.New("setup called before address is set")
	}

	ln, err := net.Listen("tcp", m.cfg.Address)
	if err != nil {
		return err
	}
	m.ln = ln
	return nil
}

// start serves TCP connections until the listener is closed.
func (m *module) start() {
	address := m.ln.Addr().String()
	if err := m.serverInfoFile.UpdateField(_outputKey, address); err != nil {
		m.logger.Errorw("publishing server address", zap.Error(err))
	}

	m.logger.Infow("started JSON-RPC inbound", zap.String("address", address))
	err := jsonrpc2.Serve(context.Background(), m.ln, m, 0)
	if m.isStopping() {
		return
	}
	m.logger.Errorw("JSON-RPC inbound stopped", zap.Error(err))
	m.shutdown()
}

// serveStdio serves the single client attached to the standard streams, then stops the application.
func (m *module) serveStdio() {
	m.logger.Infow("started JSON-RPC inbound", zap.String("transport", "stdio"))
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(&stdioStream{in: m.stdin, out: m.stdout}))
	if err := m.ServeStream(context.Background(), conn); err != nil && !errors.Is(err, io.EOF) {
		m.logger.Warnw("stdio connection closed", zap.Error(err))
	}
	if !m.isStopping() {
		m.shutdown()
	}
}

func (m *module) isStopping() bool {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	return m.stopping
}

func (m *module) shutdown() {
	if m.shutdowner == nil {
		return
	}
	if err := m.shutdowner.Shutdown(); err != nil {
		m.logger.Errorw("requesting shutdown", zap.Error(err))
	}
}

// processConfig will parse the configuration for any values required by this module.
func (m *module) processConfig(cfg config.Provider) error {
	if err := cfg.Get(_configKey).Populate(&m.cfg); err != nil {
		// incorrectly formatted config
		return fmt.Errorf("getting config field %q: %w", _configKey, err)
	}

	if m.cfg.Address == "" && !m.cfg.Stdio {
		// yaml is missing either the key or value
		return fmt.Errorf("missing field %q in config", _configKey+".address")
	}

	return nil
}

// stdioStream joins the process's standard streams into one connection.
type stdioStream struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (s *stdioStream) Read(p []byte) (int, error) {
	return s.in.Read(p)
}

func (s *stdioStream) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *stdioStream) Close() error {
	return multierr.Append(s.in.Close(), s.out.Close())
}
