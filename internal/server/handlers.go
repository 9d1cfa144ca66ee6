package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/inferloop/reviewqa/internal/anomaly"
	"github.com/inferloop/reviewqa/internal/observability/health"
	"github.com/inferloop/reviewqa/internal/stage"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
	"github.com/inferloop/reviewqa/pkg/models"
)

// StrategySet lists the strategies one factory offers.
type StrategySet struct {
	Dimension string   `json:"dimension"`
	Mode      string   `json:"mode"`
	Detect    []string `json:"detect"`
	Repair    []string `json:"repair"`
}

// AssetResponse describes a stored asset.
type AssetResponse struct {
	ID     string              `json:"id"`
	Exists bool                `json:"exists"`
	Rows   int                 `json:"rows,omitempty"`
	Meta   *models.DatasetMeta `json:"meta,omitempty"`
}

// RunResponse is the result of a pipeline run.
type RunResponse struct {
	Pipeline string              `json:"pipeline"`
	Records  []*models.RunRecord `json:"records"`
	Error    string              `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if status.OverallStatus == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]interface{}{
		"status":    status.OverallStatus,
		"version":   constants.AppVersion,
		"checks":    status.CheckResults,
		"uptime":    status.Uptime.String(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	dimensions := anomaly.Dimensions
	if dim := r.URL.Query().Get("dimension"); dim != "" {
		dimensions = []string{dim}
	}

	var distributed bool
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", constants.ModeLocal:
	case constants.ModeDistributed:
		distributed = true
	default:
		s.writeError(w, r, errors.NewValidationError(errors.CodeInvalidInput, "mode must be local or distributed"))
		return
	}

	sets := make([]StrategySet, 0, len(dimensions))
	for _, dim := range dimensions {
		f, err := s.deps.Registry.Factory(dim, distributed)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		sets = append(sets, StrategySet{
			Dimension: f.Dimension(),
			Mode:      f.Mode(),
			Detect:    f.AvailableDetect(),
			Repair:    f.AvailableRepair(),
		})
	}
	s.writeJSON(w, http.StatusOK, sets)
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Registry.Catalog().Patterns())
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.deps.Repository.(interfaces.DatasetLister)
	if !ok {
		s.writeError(w, r, errors.NewAppError(errors.ErrorTypeInternal, errors.CodeNotImplemented, "repository cannot list assets"))
		return
	}
	ids, err := lister.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"assets": ids, "count": len(ids)})
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exists, err := s.deps.Repository.Exists(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := AssetResponse{ID: id, Exists: exists}
	if !exists {
		s.writeJSON(w, http.StatusNotFound, resp)
		return
	}
	ds, err := s.deps.Repository.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	meta := ds.Meta()
	resp.Rows = meta.Rows
	resp.Meta = &meta
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if s.deps.Profiles == nil {
		s.writeError(w, r, errors.NewAppError(errors.ErrorTypeInternal, errors.CodeNotImplemented, "profile repository is not configured"))
		return
	}
	var (
		profiles []models.Profile
		err      error
	)
	if st := r.URL.Query().Get("stage"); st != "" {
		profiles, err = s.deps.Profiles.GetByStage(r.Context(), st)
	} else {
		profiles, err = s.deps.Profiles.GetAll(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profiles)
}

// handleRunPipeline runs a pipeline definition posted as YAML and waits for
// it to finish.
func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidInput, "failed to read request body"))
		return
	}
	cfg, err := stage.DecodePipeline(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pipeline, err := stage.NewPipeline(cfg, s.deps.Env)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	records, err := pipeline.Run(r.Context())
	resp := RunResponse{Pipeline: cfg.Name, Records: records}
	if err != nil {
		resp.Error = err.Error()
		s.writeJSON(w, statusFor(err), resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, errors.NewAppError(errors.ErrorTypeValidation, "NOT_FOUND", "route not found").WithDetails(r.URL.Path))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, err.Error())
	}
	status := statusFor(err)
	if appErr.Code == "NOT_FOUND" {
		status = http.StatusNotFound
	}
	s.writeJSON(w, status, errors.ErrorResponse{
		Error:     appErr,
		RequestID: getRequestID(r),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}

func statusFor(err error) int {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
