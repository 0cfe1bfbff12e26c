// Package service holds the application operations behind the HTTP surface.
package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/artifact"
	"github.com/Brownie44l1/pneumo-api/internal/decision"
	"github.com/Brownie44l1/pneumo-api/internal/domain"
	"github.com/Brownie44l1/pneumo-api/internal/events"
	"github.com/Brownie44l1/pneumo-api/internal/pipeline"
	"github.com/Brownie44l1/pneumo-api/internal/storage"
)

// Runner is the diagnostic pipeline.
type Runner interface {
	Run(ctx context.Context, data []byte, req pipeline.Request) (*pipeline.Result, error)
}

// Submission is one uploaded radiograph with its patient.
type Submission struct {
	UserID   int64
	FileName string
	Image    []byte
	Patient  domain.Patient
	Explain  bool
}

type SubmissionResult struct {
	ID          int64                 `json:"id"`
	Verdict     domain.Verdict        `json:"verdict"`
	Probability float64               `json:"probability"`
	Confidence  domain.ConfidenceBand `json:"confidence"`
	FileName    string                `json:"file_name"`
	HeatmapURL  string                `json:"heatmap,omitempty"`
	Patient     domain.Patient        `json:"patient"`
}

// ManualRecord is an analysis reported by a client rather than computed here.
type ManualRecord struct {
	FileName    string                `json:"file_name"`
	Verdict     domain.Verdict        `json:"verdict"`
	Probability float64               `json:"probability"`
	Confidence  domain.ConfidenceBand `json:"confidence"`
	Patient     *domain.Patient       `json:"patient,omitempty"`
}

type AnalysisService struct {
	runner     Runner
	store      storage.Store
	publisher  artifact.Publisher
	events     events.Publisher
	heatmapDir string
	logger     *zap.Logger
	now        func() time.Time
}

func NewAnalysisService(
	runner Runner,
	store storage.Store,
	publisher artifact.Publisher,
	ev events.Publisher,
	heatmapDir string,
	logger *zap.Logger,
) *AnalysisService {
	if ev == nil {
		ev = events.Nop{}
	}
	return &AnalysisService{
		runner:     runner,
		store:      store,
		publisher:  publisher,
		events:     ev,
		heatmapDir: heatmapDir,
		logger:     logger.Named("analysis"),
		now:        time.Now,
	}
}

// Submit runs the pipeline and, only once it has fully succeeded, stores the
// patient and the analysis.
func (s *AnalysisService) Submit(ctx context.Context, sub Submission) (*SubmissionResult, error) {
	const op = "service.Submit"

	if err := sub.Patient.Validate(); err != nil {
		return nil, apperr.E(apperr.InvalidInput, op, err)
	}
	if len(sub.Image) == 0 {
		return nil, apperr.E(apperr.InvalidImage, op, errors.New("empty upload"))
	}

	started := s.now()
	req := pipeline.Request{Explain: sub.Explain}
	var heatmap string
	if sub.Explain {
		heatmap = artifact.NewName(started)
		req.OverlayPath = filepath.Join(s.heatmapDir, heatmap)
	}

	res, err := s.runner.Run(ctx, sub.Image, req)
	if err != nil {
		s.discard(ctx, req.OverlayPath, "")
		return nil, err
	}

	var heatmapURL string
	if sub.Explain {
		heatmapURL, err = s.publisher.Publish(ctx, heatmap, res.OverlayPath)
		if err != nil {
			s.discard(ctx, res.OverlayPath, "")
			return nil, apperr.E(apperr.Internal, op, err)
		}
	}

	fileName := sub.FileName
	if fileName == "" {
		fileName = "upload_" + started.Format("20060102T150405") + ".jpg"
	}

	patient := sub.Patient
	a := domain.Analysis{
		UserID:      sub.UserID,
		FileName:    fileName,
		Heatmap:     heatmap,
		Verdict:     res.Verdict,
		Probability: res.Probability,
		Confidence:  res.Confidence,
		Timestamp:   started.UTC(),
	}
	patient.ID, a.ID, err = s.store.RecordSubmission(ctx, patient, a)
	if err != nil {
		s.discard(ctx, res.OverlayPath, heatmap)
		return nil, err
	}
	a.PatientID = patient.ID

	s.announce(ctx, a, heatmapURL)
	s.logger.Info("analysis recorded",
		zap.Int64("analysisID", a.ID),
		zap.Int64("userID", a.UserID),
		zap.String("verdict", string(a.Verdict)),
		zap.Float64("probability", a.Probability),
		zap.Duration("elapsed", s.now().Sub(started)),
	)

	return &SubmissionResult{
		ID:          a.ID,
		Verdict:     a.Verdict,
		Probability: a.Probability,
		Confidence:  a.Confidence,
		FileName:    a.FileName,
		HeatmapURL:  heatmapURL,
		Patient:     patient,
	}, nil
}

// History lists userID's analyses, most recent first, with overlay URLs.
func (s *AnalysisService) History(ctx context.Context, userID int64) ([]domain.HistoryEntry, error) {
	entries, err := s.store.FetchUserHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].ImageURL = s.publisher.URL(entries[i].Heatmap)
	}
	return entries, nil
}

// Record stores a client-reported analysis.
func (s *AnalysisService) Record(ctx context.Context, userID int64, rec ManualRecord) (int64, error) {
	const op = "service.Record"

	if err := rec.validate(); err != nil {
		return 0, apperr.E(apperr.InvalidInput, op, err)
	}

	patient := domain.Patient{LastName: "unknown"}
	if rec.Patient != nil {
		if err := rec.Patient.Validate(); err != nil {
			return 0, apperr.E(apperr.InvalidInput, op, err)
		}
		patient = *rec.Patient
	}
	a := domain.Analysis{
		UserID:      userID,
		FileName:    strings.TrimSpace(rec.FileName),
		Verdict:     rec.Verdict,
		Probability: decision.Percent(rec.Probability / 100),
		Confidence:  rec.Confidence,
		Timestamp:   s.now().UTC(),
	}
	patientID, id, err := s.store.RecordSubmission(ctx, patient, a)
	if err != nil {
		return 0, err
	}
	a.PatientID = patientID
	a.ID = id
	s.announce(ctx, a, "")
	return id, nil
}

func (r ManualRecord) validate() error {
	if strings.TrimSpace(r.FileName) == "" {
		return errors.New("file_name is required")
	}
	switch r.Verdict {
	case domain.VerdictPositive, domain.VerdictNegative:
	default:
		return errors.New("verdict must be positive or negative")
	}
	switch r.Confidence {
	case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
	default:
		return errors.New("confidence must be high, medium or low")
	}
	if r.Probability < 0 || r.Probability > 100 {
		return errors.New("probability must be within [0,100]")
	}
	return nil
}

func (s *AnalysisService) announce(ctx context.Context, a domain.Analysis, heatmapURL string) {
	err := s.events.AnalysisRecorded(ctx, events.AnalysisRecorded{
		ID:          a.ID,
		UserID:      a.UserID,
		PatientID:   a.PatientID,
		Verdict:     a.Verdict,
		Probability: a.Probability,
		Confidence:  a.Confidence,
		HeatmapURL:  heatmapURL,
		Timestamp:   a.Timestamp,
	})
	if err != nil {
		s.logger.Warn("publish analysis event", zap.Int64("analysisID", a.ID), zap.Error(err))
	}
}

// discard removes an overlay that will never be referenced: the local file
// and, when name is set, its published copy.
func (s *AnalysisService) discard(ctx context.Context, path, name string) {
	if name != "" {
		if err := s.publisher.Discard(ctx, name); err != nil {
			s.logger.Warn("discard published overlay", zap.String("name", name), zap.Error(err))
		}
	}
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("remove unpublished overlay", zap.String("path", path), zap.Error(err))
	}
}
