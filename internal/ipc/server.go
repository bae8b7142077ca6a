package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/1broseidon/resctl/internal/display"
	"github.com/1broseidon/resctl/internal/runtimepath"
	"github.com/1broseidon/resctl/internal/safetynet"
	"github.com/1broseidon/resctl/internal/session"
)

// Server handles IPC requests from clients
type Server struct {
	socketPath   string
	listener     net.Listener
	sess         *session.Session
	logger       *slog.Logger
	startTime    time.Time
	reloadChan   chan struct{}
	shuttingDown bool
	shutdownMu   sync.Mutex
	wg           sync.WaitGroup
}

// NewServer creates a new IPC server over sess. An empty socketPath uses the
// default runtime location.
func NewServer(socketPath string, sess *session.Session, reloadChan chan struct{}, logger *slog.Logger) (*Server, error) {
	if socketPath == "" {
		p, err := runtimepath.SocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
		socketPath = p
	}
	if logger == nil {
		logger = slog.Default()
	}

	// A live socket means another daemon owns it; a dead one is stale.
	if conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond); err == nil {
		conn.Close()
		return nil, fmt.Errorf("daemon already running on %s", socketPath)
	}
	os.Remove(socketPath)

	return &Server{
		socketPath: socketPath,
		sess:       sess,
		logger:     logger,
		startTime:  time.Now(),
		reloadChan: reloadChan,
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("ipc server listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			stopping := s.shuttingDown
			s.shutdownMu.Unlock()
			if stopping || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("ipc accept error", "error", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection serves one request: a JSON object on a single line.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Warn("ipc read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	resp := s.handleCommand(req)

	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal response", "command", string(req.Command), "error", err)
		return
	}
	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Warn("failed to send response", "error", err)
	}
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(req *Request) *Response {
	s.logger.Debug("ipc command", "command", string(req.Command))
	switch req.Command {
	case CommandPing:
		return ok(nil)
	case CommandReload:
		return s.handleReload()
	case CommandGetStatus:
		return s.statusResponse()
	case CommandRefresh:
		return s.handleRefresh()
	case CommandSetMode:
		return s.handleSetMode(req.Payload)
	case CommandSetOrientation:
		return s.handleSetOrientation(req.Payload)
	case CommandApply:
		return s.handleApply()
	case CommandConfirm:
		return s.handleConfirm()
	case CommandRevert:
		return s.handleRevert()
	case CommandListProfiles:
		return ok(ProfilesData{Profiles: s.sess.Profiles()})
	case CommandSaveProfile:
		return s.handleSaveProfile(req.Payload)
	case CommandLoadProfile:
		return s.handleLoadProfile(req.Payload)
	case CommandDeleteProfile:
		return s.handleDeleteProfile(req.Payload)
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func ok(data interface{}) *Response {
	resp, err := NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

// handleReload asks the daemon to reload its configuration.
func (s *Server) handleReload() *Response {
	if s.reloadChan == nil {
		return NewErrorResponse("reload is not supported by this server")
	}
	select {
	case s.reloadChan <- struct{}{}:
	default:
	}
	return ok(nil)
}

func (s *Server) statusResponse() *Response {
	return ok(StatusData{
		View:          s.sess.View(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		DaemonRunning: true,
	})
}

func (s *Server) handleRefresh() *Response {
	if _, err := s.sess.Refresh(); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to refresh: %v", err))
	}
	return s.statusResponse()
}

func (s *Server) handleSetMode(payload json.RawMessage) *Response {
	var req SetModePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid set mode payload: %v", err))
	}
	if req.MonitorID == "" || req.Width <= 0 || req.Height <= 0 {
		return NewErrorResponse("monitor_id, width and height are required")
	}

	if req.Frequency == 0 {
		res, err := s.sess.SetMode(req.MonitorID, req.Width, req.Height)
		if err != nil {
			return NewErrorResponse(err.Error())
		}
		return ok(SetModeData{Staged: res})
	}

	res := display.Resolution{Width: req.Width, Height: req.Height, Frequency: req.Frequency, BitsPerPixel: req.BitsPerPixel}
	if res.BitsPerPixel == 0 {
		if m, found := display.FindMonitor(s.sess.Monitors(), req.MonitorID); found {
			res.BitsPerPixel = m.Current.BitsPerPixel
		}
	}
	if err := s.sess.SetResolution(req.MonitorID, res); err != nil {
		return NewErrorResponse(err.Error())
	}
	return ok(SetModeData{Staged: res})
}

func (s *Server) handleSetOrientation(payload json.RawMessage) *Response {
	var req SetOrientationPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid set orientation payload: %v", err))
	}
	o, err := display.ParseOrientation(req.Orientation)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	if err := s.sess.SetOrientation(req.MonitorID, o); err != nil {
		return NewErrorResponse(err.Error())
	}
	return ok(nil)
}

func (s *Server) handleApply() *Response {
	data, err := s.apply(s.sess.RequestApply)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return ok(data)
}

func (s *Server) apply(fn func() (session.ApplyResult, error)) (*ApplyData, error) {
	res, err := fn()
	if err != nil && !errors.Is(err, safetynet.ErrNothingApplied) {
		return nil, err
	}
	data := &ApplyData{
		Armed:     res.Armed,
		Errors:    applyErrors(res.Errors),
		SafetyNet: res.Status,
	}
	if err != nil {
		data.Message = err.Error()
	}
	return data, nil
}

func (s *Server) handleConfirm() *Response {
	if err := s.sess.ConfirmKeep(); err != nil {
		return NewErrorResponse(err.Error())
	}
	return ok(nil)
}

func (s *Server) handleRevert() *Response {
	res, err := s.sess.RequestRevert()
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return ok(RevertData{
		Reason:   string(res.Reason),
		Restored: res.Restored,
		Errors:   applyErrors(res.Report.Errors),
	})
}

func parseProfilePayload(payload json.RawMessage) (ProfilePayload, error) {
	var req ProfilePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("invalid profile payload: %v", err)
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return req, fmt.Errorf("name is required")
	}
	return req, nil
}

func (s *Server) handleSaveProfile(payload json.RawMessage) *Response {
	req, err := parseProfilePayload(payload)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	p, err := s.sess.SaveProfile(req.Name)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to save profile: %v", err))
	}
	return ok(p)
}

func (s *Server) handleLoadProfile(payload json.RawMessage) *Response {
	req, err := parseProfilePayload(payload)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	staged, err := s.sess.LoadProfile(req.Name)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	data := LoadProfileData{Staged: staged}
	if req.Apply {
		applied, err := s.apply(s.sess.RequestApply)
		if err != nil {
			return NewErrorResponse(err.Error())
		}
		data.Apply = applied
	}
	return ok(data)
}

func (s *Server) handleDeleteProfile(payload json.RawMessage) *Response {
	req, err := parseProfilePayload(payload)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	if err := s.sess.DeleteProfile(req.Name); err != nil {
		return NewErrorResponse(err.Error())
	}
	return ok(nil)
}

// sendError sends an error response
func (s *Server) sendError(conn net.Conn, errMsg string) {
	resp := NewErrorResponse(errMsg)
	data, _ := resp.Marshal()
	data = append(data, '\n')
	conn.Write(data)
}

// Stop gracefully shuts down the IPC server
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}
