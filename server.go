package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"i4.energy/across/ncp/modem"
)

//go:generate go tool mockgen -source=server.go -destination=mock_ncp_test.go -package=main

// NCP is the part of *modem.Client the daemon drives.
type NCP interface {
	On() error
	Off() error
	Enable() error
	Disable()
	Connect(conf modem.NetworkConfig) error
	Disconnect() error
	ProcessEvents() error
	State() modem.NcpState
	ConnectionState() modem.ConnectionState
	Phase() string
	Session() string
	FirmwareVersion() (string, error)
	IMEI() (string, error)
	ICCID() (string, error)
	SignalQuality() (modem.SignalQuality, error)
	CellularIdentity(dst *modem.CellularIdentity) error
}

// Server handles incoming HTTP requests for inspecting and controlling
// the configured modem
type Server struct {
	Logger *slog.Logger
	NCP    NCP
	// Network is used by POST /connect when the request names no APN.
	Network modem.NetworkConfig
	// Supervisor, when set, follows the operator's power and connect
	// requests.
	Supervisor *Supervisor
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /signal", s.handleSignal)
	mux.HandleFunc("GET /identity", s.handleIdentity)
	mux.HandleFunc("POST /ncp/on", s.handleOn)
	mux.HandleFunc("POST /ncp/off", s.handleOff)
	mux.HandleFunc("POST /ncp/enable", s.handleEnable)
	mux.HandleFunc("POST /ncp/disable", s.handleDisable)
	mux.HandleFunc("POST /connect", s.handleConnect)
	mux.HandleFunc("POST /disconnect", s.handleDisconnect)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, ErrorResponse{Message: message}, statusCode)
}

// sendModemError maps a client error to a status code by its kind.
func (s *Server) sendModemError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch modem.KindOf(err) {
	case modem.KindState:
		status = http.StatusConflict
	case modem.KindTimeout:
		status = http.StatusGatewayTimeout
	case modem.KindHardware, modem.KindResource:
		status = http.StatusServiceUnavailable
	case modem.KindProtocol:
		status = http.StatusBadGateway
	}

	type ErrorResponse struct {
		Message string `json:"message"`
		Kind    string `json:"kind"`
		Code    int    `json:"code"`
	}
	s.sendJSON(w, ErrorResponse{
		Message: err.Error(),
		Kind:    modem.KindOf(err).String(),
		Code:    modem.Code(err),
	}, status)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Debug("Failed to write response", "error", err)
	}
}

// StatusResponse is the body of GET /status. The identifiers are only
// reported while the modem is on.
type StatusResponse struct {
	NCP        string `json:"ncp"`
	Connection string `json:"connection"`
	Phase      string `json:"phase"`
	Session    string `json:"session,omitempty"`
	Firmware   string `json:"firmware,omitempty"`
	IMEI       string `json:"imei,omitempty"`
	ICCID      string `json:"iccid,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.NCP.State()
	resp := StatusResponse{
		NCP:        state.String(),
		Connection: s.NCP.ConnectionState().String(),
		Phase:      s.NCP.Phase(),
		Session:    s.NCP.Session(),
	}

	if state == modem.NcpStateOn {
		for _, q := range []struct {
			name  string
			query func() (string, error)
			dst   *string
		}{
			{"firmware", s.NCP.FirmwareVersion, &resp.Firmware},
			{"imei", s.NCP.IMEI, &resp.IMEI},
			{"iccid", s.NCP.ICCID, &resp.ICCID},
		} {
			v, err := q.query()
			if err != nil {
				s.Logger.Warn("Status query failed", "query", q.name, "error", err)
				continue
			}
			*q.dst = v
		}
	}

	s.sendJSON(w, resp, http.StatusOK)
}

// SignalResponse is the body of GET /signal.
type SignalResponse struct {
	AccessTechnology string `json:"access_technology"`
	Strength         int    `json:"strength"`
	StrengthUnits    string `json:"strength_units"`
	Quality          int    `json:"quality"`
	QualityUnits     string `json:"quality_units"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	q, err := s.NCP.SignalQuality()
	if err != nil {
		s.Logger.Error("Failed to read signal quality", "error", err)
		s.sendModemError(w, err)
		return
	}

	s.sendJSON(w, SignalResponse{
		AccessTechnology: q.AccessTechnology.String(),
		Strength:         q.Strength,
		StrengthUnits:    q.StrengthUnits.String(),
		Quality:          q.Quality,
		QualityUnits:     q.QualityUnits.String(),
	}, http.StatusOK)
}

// IdentityResponse is the body of GET /identity.
type IdentityResponse struct {
	MCC    string `json:"mcc"`
	MNC    string `json:"mnc"`
	LAC    uint16 `json:"lac"`
	CellID uint32 `json:"cell_id"`
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	id := modem.NewCellularIdentity()
	if err := s.NCP.CellularIdentity(&id); err != nil {
		s.Logger.Error("Failed to read cellular identity", "error", err)
		s.sendModemError(w, err)
		return
	}

	s.sendJSON(w, IdentityResponse{
		MCC:    formatMCC(id.MobileCountryCode),
		MNC:    id.MNC(),
		LAC:    id.LocationAreaCode,
		CellID: id.CellID,
	}, http.StatusOK)
}

func formatMCC(mcc uint16) string {
	b := []byte{'0', '0', '0'}
	for i := 2; i >= 0; i-- {
		b[i] += byte(mcc % 10)
		mcc /= 10
	}
	return string(b)
}

func (s *Server) handleOn(w http.ResponseWriter, r *http.Request) {
	s.keepUp(true)
	s.control(w, "on", s.NCP.On)
}

func (s *Server) handleOff(w http.ResponseWriter, r *http.Request) {
	s.keepUp(false)
	s.control(w, "off", s.NCP.Off)
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	s.control(w, "enable", s.NCP.Enable)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	s.keepUp(false)
	s.NCP.Disable()
	s.Logger.Info("Modem disabled")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	conf := s.Network
	var req modem.NetworkConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.APN != "" {
		conf = req
	} else if req.User != "" || req.Password != "" {
		s.sendError(w, "credentials require an 'apn' field", http.StatusBadRequest)
		return
	}

	s.keepUp(true)
	s.control(w, "connect", func() error { return s.NCP.Connect(conf) })
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.keepUp(false)
	s.control(w, "disconnect", s.NCP.Disconnect)
}

func (s *Server) control(w http.ResponseWriter, op string, f func() error) {
	if err := f(); err != nil {
		s.Logger.Error("Modem request failed", "op", op, "error", err)
		s.sendModemError(w, err)
		return
	}
	s.Logger.Info("Modem request completed", "op", op, "state", s.NCP.State().String(), "connection", s.NCP.ConnectionState().String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) keepUp(up bool) {
	if s.Supervisor != nil {
		s.Supervisor.KeepUp(up)
	}
}
