// Package httpapi exposes the bench over HTTP so any client with an
// HTTP library can drive it: connect instruments, run sequences, pull
// the operations log, trigger exports, and watch the simulated trace.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/sirupsen/logrus"

	"github.com/converter-bench/benchtop/bench"
	"github.com/converter-bench/benchtop/config"
	"github.com/converter-bench/benchtop/export"
	"github.com/converter-bench/benchtop/instrument"
	"github.com/converter-bench/benchtop/sequence"
	"github.com/converter-bench/benchtop/session"
	"github.com/converter-bench/benchtop/waveform"
)

// Server binds the bench collaborators to HTTP routes.
type Server struct {
	Manager    *bench.Manager
	Controller *sequence.Controller
	Log        *session.Log
	Cfg        config.Config
	Logger     *logrus.Logger

	// cmdMu serializes every handler that touches the manager,
	// controller, or log: instrument commands, safety checks, and log
	// writes share one logical control flow.
	cmdMu sync.Mutex

	mu        sync.Mutex
	lastMeta  session.Metadata
	monitor   *waveform.Monitor
	lastFrame waveform.Trace
}

// Routes builds the router for the server.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/connect", s.connect)
	r.Post("/disconnect", s.disconnect)
	r.Get("/status", s.status)
	r.Post("/run", s.run)
	r.Post("/estop", s.emergencyStop)
	r.Get("/log", s.getLog)
	r.Post("/export/workbook", s.exportWorkbook)
	r.Post("/export/transcript", s.exportTranscript)
	r.Post("/monitor/start", s.monitorStart)
	r.Post("/monitor/stop", s.monitorStop)
	r.Get("/trace", s.trace)
	r.Get("/sim/commands", s.simCommands)
	return r
}

func encodeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type connectReq struct {
	Role      string `json:"role"`
	Addr      string `json:"addr"`
	Simulated bool   `json:"simulated"`
}

type handleView struct {
	Role      string `json:"role"`
	Addr      string `json:"addr"`
	Status    string `json:"status"`
	Simulated bool   `json:"simulated"`
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	var req connectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	role, err := instrument.ParseRole(req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Addr == "" {
		// fall back to the configured address for the role
		switch role {
		case instrument.Oscilloscope:
			req.Addr = s.Cfg.OscilloscopeIP
		case instrument.PowerSupply:
			req.Addr = s.Cfg.PowerSupplyIP
		}
	}
	h, err := s.Manager.Connect(role, req.Addr, req.Simulated)
	if err != nil {
		s.Logger.WithError(err).Warnf("connect %s at %s failed", role, req.Addr)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.Logger.Infof("connected %s at %s (simulated=%v)", role, h.Addr, h.Simulated)
	encodeJSON(w, http.StatusOK, handleView{
		Role:      h.Role.String(),
		Addr:      h.Addr,
		Status:    h.Status.String(),
		Simulated: h.Simulated,
	})
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	s.Manager.DisconnectAll()
	s.Logger.Info("all instruments disconnected")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	handles := s.Manager.Connected()
	views := make([]handleView, len(handles))
	for i, h := range handles {
		views[i] = handleView{
			Role:      h.Role.String(),
			Addr:      h.Addr,
			Status:    h.Status.String(),
			Simulated: h.Simulated,
		}
	}
	encodeJSON(w, http.StatusOK, views)
}

type stepReq struct {
	Role    string  `json:"role"`
	Op      string  `json:"op"`
	Volts   float64 `json:"volts,omitempty"`
	Amps    float64 `json:"amps,omitempty"`
	Hz      float64 `json:"hz,omitempty"`
	Channel int     `json:"channel,omitempty"`
}

type runReq struct {
	Technician string    `json:"technician"`
	Steps      []stepReq `json:"steps,omitempty"`

	// Convenience form of the classic DC/DC source run; used when
	// Steps is empty.
	AmplitudeV  float64 `json:"amplitude_v,omitempty"`
	FrequencyHz float64 `json:"frequency_hz,omitempty"`
}

// Stock bench parameters, applied when a request leaves them unset.
const (
	defaultAmplitudeV  = 5.0
	defaultFrequencyHz = 50e3
)

type runResp struct {
	State  string `json:"state"`
	Step   int    `json:"step"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	var req runReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	meta, err := session.NewMetadata(req.Technician)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	steps, err := buildSteps(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, st := range steps {
		switch st.Op {
		case sequence.OpSetAmplitude:
			meta.AmplitudeV = st.Volts
		case sequence.OpSetFrequency:
			meta.FrequencyHz = st.Hz
		}
	}
	if h, ok := s.Manager.Resolve(instrument.Oscilloscope); ok {
		meta.ScopeAddr = h.Addr
	}
	if h, ok := s.Manager.Resolve(instrument.PowerSupply); ok {
		meta.SupplyAddr = h.Addr
	}

	// the session banner marks a run that actually starts; a run the
	// controller would abort or reject gets only its objection entry
	if _, ok := s.Controller.Precheck(steps); ok {
		s.Log.Append("%s", meta.Banner())
	}
	result := s.Controller.Run(steps)
	s.mu.Lock()
	s.lastMeta = meta
	s.mu.Unlock()
	s.Logger.Infof("sequence for %s: %s", meta.Technician, result)
	encodeJSON(w, http.StatusOK, runResp{
		State:  result.State.String(),
		Step:   result.Step,
		Reason: result.Reason,
	})
}

func buildSteps(req runReq) ([]sequence.Step, error) {
	if len(req.Steps) == 0 {
		if req.AmplitudeV == 0 {
			req.AmplitudeV = defaultAmplitudeV
		}
		if req.FrequencyHz == 0 {
			req.FrequencyHz = defaultFrequencyHz
		}
		return []sequence.Step{
			sequence.SetAmplitude(req.AmplitudeV),
			sequence.SetFrequency(req.FrequencyHz),
			sequence.EnableOutput(),
		}, nil
	}
	steps := make([]sequence.Step, len(req.Steps))
	for i, sr := range req.Steps {
		role, err := instrument.ParseRole(sr.Role)
		if err != nil {
			return nil, err
		}
		op, err := sequence.ParseOp(sr.Op)
		if err != nil {
			return nil, err
		}
		steps[i] = sequence.Step{
			Role:    role,
			Op:      op,
			Volts:   sr.Volts,
			Amps:    sr.Amps,
			Hz:      sr.Hz,
			Channel: sr.Channel,
		}
	}
	return steps, nil
}

func (s *Server) emergencyStop(w http.ResponseWriter, r *http.Request) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	s.Controller.EmergencyStop()
	s.Logger.Warn("emergency stop issued")
	w.WriteHeader(http.StatusOK)
}

type entryView struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

func (s *Server) getLog(w http.ResponseWriter, r *http.Request) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	entries := s.Log.Entries()
	views := make([]entryView, len(entries))
	for i, e := range entries {
		views[i] = entryView{At: e.At, Text: e.Text}
	}
	encodeJSON(w, http.StatusOK, views)
}

type exportReq struct {
	Path string `json:"path,omitempty"`
}

func (s *Server) exportWorkbook(w http.ResponseWriter, r *http.Request) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	var req exportReq
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	defer r.Body.Close()
	path := req.Path
	if path == "" {
		path = s.Cfg.Workbook
	}
	s.mu.Lock()
	meta := s.lastMeta
	s.mu.Unlock()
	if err := export.AppendWorkbook(path, meta, s.Log); err != nil {
		// the in-memory log is untouched; the client may retry
		s.Logger.WithError(err).Warn("workbook export failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.Log.Append("Data appended to %s", path)
	encodeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) exportTranscript(w http.ResponseWriter, r *http.Request) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	var req exportReq
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	defer r.Body.Close()
	dir := req.Path
	if dir == "" {
		dir = s.Cfg.TranscriptDir
	}
	s.mu.Lock()
	meta := s.lastMeta
	s.mu.Unlock()
	path, err := export.WriteTranscript(dir, meta, s.Log)
	if err != nil {
		s.Logger.WithError(err).Warn("transcript export failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.Log.Append("Transcript written to %s", path)
	encodeJSON(w, http.StatusOK, map[string]string{"path": path})
}

type monitorReq struct {
	AmplitudeV  float64 `json:"amplitude_v"`
	FrequencyHz float64 `json:"frequency_hz"`
	NoiseV      float64 `json:"noise_v"`
	IntervalMS  int     `json:"interval_ms"`
}

func (s *Server) monitorStart(w http.ResponseWriter, r *http.Request) {
	var req monitorReq
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	defer r.Body.Close()
	if req.AmplitudeV == 0 {
		req.AmplitudeV = defaultAmplitudeV
	}
	if req.FrequencyHz == 0 {
		req.FrequencyHz = defaultFrequencyHz
	}
	if req.NoiseV == 0 {
		req.NoiseV = 0.1
	}
	if req.IntervalMS == 0 {
		req.IntervalMS = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitor != nil && s.monitor.Running() {
		http.Error(w, waveform.ErrAlreadyRunning.Error(), http.StatusConflict)
		return
	}
	gen := waveform.NewGenerator(req.AmplitudeV, req.FrequencyHz, req.NoiseV, time.Now().UnixNano())
	s.monitor = waveform.NewMonitor(gen, time.Duration(req.IntervalMS)*time.Millisecond)
	if err := s.monitor.Start(func(tr waveform.Trace) {
		s.mu.Lock()
		s.lastFrame = tr
		s.mu.Unlock()
	}); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.Logger.Info("trace monitor started")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) monitorStop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitor != nil {
		s.monitor.Stop()
		s.Logger.Info("trace monitor stopped")
	}
	w.WriteHeader(http.StatusOK)
}

// commandRecorder is satisfied by the simulated drivers.
type commandRecorder interface {
	Commands() []string
}

// simCommands returns the wire commands each simulated handle would
// have sent, keyed by role.  Real handles are omitted.
func (s *Server) simCommands(w http.ResponseWriter, r *http.Request) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	out := map[string][]string{}
	for _, h := range s.Manager.Connected() {
		if !h.Simulated {
			continue
		}
		var rec commandRecorder
		switch {
		case h.Scope != nil:
			rec, _ = h.Scope.(commandRecorder)
		case h.Supply != nil:
			rec, _ = h.Supply.(commandRecorder)
		}
		if rec != nil {
			out[h.Role.String()] = rec.Commands()
		}
	}
	encodeJSON(w, http.StatusOK, out)
}

type traceView struct {
	Name    string    `json:"name"`
	DT      float64   `json:"dt"`
	Samples []float64 `json:"samples"`
}

func (s *Server) trace(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	frame := s.lastFrame
	s.mu.Unlock()
	encodeJSON(w, http.StatusOK, traceView{Name: frame.Name, DT: frame.DT, Samples: frame.Samples})
}
