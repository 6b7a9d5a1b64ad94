package dashboard

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phsayre/pdf-uploader/internal/pipeline"
)

// RunStartedData announces a pass
type RunStartedData struct {
	RunID string `json:"run_id"`
	Files int    `json:"files"`
}

// FileOutcomeData reports one handled file
type FileOutcomeData struct {
	RunID string `json:"run_id"`
	pipeline.FileOutcome
}

// RunCompleteData summarizes a pass
type RunCompleteData struct {
	RunID      string             `json:"run_id"`
	Uploaded   int                `json:"uploaded"`
	Failed     int                `json:"failed"`
	Duplicates int                `json:"duplicates"`
	Skipped    int                `json:"skipped"`
	Anomalies  []pipeline.Anomaly `json:"anomalies,omitempty"`
	Duration   time.Duration      `json:"duration"`
}

// TotalsData accumulates outcomes across passes
type TotalsData struct {
	Runs       int `json:"runs"`
	Uploaded   int `json:"uploaded"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
}

// Handler turns pipeline progress into dashboard messages. It implements
// pipeline.Observer.
type Handler struct {
	server *Server
	logger *zap.Logger

	mu     sync.Mutex
	totals TotalsData
}

var _ pipeline.Observer = (*Handler)(nil)

// NewHandler creates a handler broadcasting through server
func NewHandler(server *Server, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{server: server, logger: logger}
}

// RunStarted implements pipeline.Observer.
func (h *Handler) RunStarted(runID string, files int) {
	h.send(MessageTypeRunStarted, RunStartedData{RunID: runID, Files: files})
}

// FileHandled implements pipeline.Observer.
func (h *Handler) FileHandled(runID string, outcome pipeline.FileOutcome) {
	h.send(MessageTypeFileOutcome, FileOutcomeData{RunID: runID, FileOutcome: outcome})
}

// RunCompleted implements pipeline.Observer.
func (h *Handler) RunCompleted(res *pipeline.RunResult) {
	h.mu.Lock()
	h.totals.Runs++
	h.totals.Uploaded += res.Uploaded
	h.totals.Failed += len(res.FailedUploads)
	h.totals.Duplicates += len(res.AlreadyConverted)
	h.mu.Unlock()

	h.send(MessageTypeRunComplete, RunCompleteData{
		RunID:      res.RunID,
		Uploaded:   res.Uploaded,
		Failed:     len(res.FailedUploads),
		Duplicates: len(res.AlreadyConverted),
		Skipped:    len(res.Skipped),
		Anomalies:  res.Anomalies,
		Duration:   res.Duration,
	})
}

// GetTotals returns the accumulated totals
func (h *Handler) GetTotals() TotalsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totals
}

func (h *Handler) send(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal dashboard data", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
