package ipc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"log/slog"

	"keygate/internal/api"
	"keygate/internal/daemon"
	"keygate/internal/drm"
	"keygate/internal/ledger"
	"keygate/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Keygate", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun keygate daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

// DecodeInitData converts wire entries into the container init data map.
func DecodeInitData(entries []InitDataEntry) (drm.InitData, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	initData := make(drm.InitData, len(entries))
	for _, entry := range entries {
		schemeID, err := drm.SchemeByName(entry.Scheme)
		if err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(entry.Data)
		if err != nil {
			return nil, fmt.Errorf("decode init data for scheme %s: %w", entry.Scheme, err)
		}
		initData[schemeID] = drm.SchemeInitData{
			MimeType: entry.MimeType,
			Data:     data,
		}
	}
	return initData, nil
}

// EncodeInitData converts the container init data map into wire entries.
func EncodeInitData(initData drm.InitData) []InitDataEntry {
	if len(initData) == 0 {
		return nil
	}
	entries := make([]InitDataEntry, 0, len(initData))
	for schemeID, data := range initData {
		entries = append(entries, InitDataEntry{
			Scheme:   drm.SchemeName(schemeID),
			MimeType: data.MimeType,
			Data:     base64.StdEncoding.EncodeToString(data.Data),
		})
	}
	return entries
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockFilePath
	resp.LedgerDBPath = status.LedgerDBPath
	resp.APIAddr = s.daemon.APIAddr()
	resp.Sessions = status.Sessions
	resp.LedgerTotal = status.Ledger.Total
	resp.LedgerFailed = status.Ledger.Failures
	return nil
}

func (s *service) SessionOpen(req SessionOpenRequest, resp *SessionOpenResponse) error {
	contentID := strings.TrimSpace(req.ContentID)
	s.log().Debug("session open requested",
		logging.String(logging.FieldContent, contentID),
		logging.String(logging.FieldScheme, req.Scheme))
	initData, err := DecodeInitData(req.InitData)
	if err != nil {
		return err
	}
	view, err := s.daemon.OpenSession(contentID, req.Scheme, initData)
	if err != nil {
		return err
	}
	resp.Session = view
	return nil
}

func (s *service) SessionClose(req SessionCloseRequest, resp *SessionCloseResponse) error {
	contentID := strings.TrimSpace(req.ContentID)
	s.log().Debug("session close requested", logging.String(logging.FieldContent, contentID))
	view, err := s.daemon.CloseSession(contentID)
	if err != nil {
		return err
	}
	resp.Session = view
	resp.Released = view.OpenCount == 0
	return nil
}

func (s *service) SessionList(_ SessionListRequest, resp *SessionListResponse) error {
	resp.Sessions = s.daemon.ListSessions()
	return nil
}

func (s *service) SessionDescribe(req SessionDescribeRequest, resp *SessionDescribeResponse) error {
	view, err := s.daemon.DescribeSession(strings.TrimSpace(req.ContentID))
	if err != nil {
		return err
	}
	resp.Session = view
	return nil
}

func (s *service) LedgerList(req LedgerListRequest, resp *LedgerListResponse) error {
	if contentID := strings.TrimSpace(req.ContentID); contentID != "" {
		records, err := s.daemon.ExchangesByContent(s.ctx, contentID)
		if err != nil {
			return err
		}
		resp.Exchanges = api.FromLedgerRecords(records)
		return nil
	}

	kinds := make([]ledger.Kind, 0, len(req.Kinds))
	for _, value := range req.Kinds {
		kind := ledger.Kind(strings.TrimSpace(value))
		if !ledger.ValidKind(kind) {
			return fmt.Errorf("unknown ledger kind %q", value)
		}
		kinds = append(kinds, kind)
	}
	records, err := s.daemon.Exchanges(s.ctx, kinds)
	if err != nil {
		return err
	}
	resp.Exchanges = api.FromLedgerRecords(records)
	return nil
}

func (s *service) LedgerClear(_ LedgerClearRequest, resp *LedgerClearResponse) error {
	s.log().Debug("ledger clear requested")
	removed, err := s.daemon.ClearLedger(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("ledger cleared",
		logging.String(logging.FieldEventType, "ledger_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) LedgerHealth(_ LedgerHealthRequest, resp *LedgerHealthResponse) error {
	health, err := s.daemon.LedgerHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Exchanges = health.Exchanges
	resp.Events = health.Events
	resp.Failures = health.Failures
	if health.LastFailed != nil {
		resp.LastError = health.LastFailed.ErrorMessage
	}
	return nil
}
