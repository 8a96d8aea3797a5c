package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/battlebrief/bulwark/internal/ethics"
	"github.com/battlebrief/bulwark/internal/extract"
	"github.com/battlebrief/bulwark/internal/logger"
	"github.com/battlebrief/bulwark/internal/store"
	"github.com/battlebrief/bulwark/internal/toxicity"
	"github.com/battlebrief/bulwark/internal/utils"
)

// RefusalMessage replaces the summary when every attempt failed the ethics check.
const RefusalMessage = "The document contains sensitive content that cannot be summarized. " +
	"Please try another document or consult with your supervisor."

const ethicsFeedbackPrefix = "\n\nPlease ensure the summary avoids: "

var (
	ErrUnsupportedFile = errors.New("file not supported")
	ErrEmptyDocument   = errors.New("document contains no extractable text")
)

type DocumentTooLongError struct {
	Words int
	Limit int
}

func (e *DocumentTooLongError) Error() string {
	return fmt.Sprintf("Document exceeds %d-word limit (%d words). Please contact the administrator to increase the limit.", e.Limit, e.Words)
}

type Summarizer interface {
	SummarizeText(ctx context.Context, text, providerName string) (string, error)
}

type TextExtractor interface {
	File(path, filename string) (string, error)
}

type QualityJudge interface {
	Evaluate(ctx context.Context, source, summary string) (ethics.QualityScore, error)
}

type EthicsAuditor interface {
	Audit(ctx context.Context, source, summary string) (*ethics.Audit, error)
}

type SummaryRepository interface {
	SaveSummary(ctx context.Context, in store.NewSummary) (int64, error)
	ListSummaries(ctx context.Context, userID string) ([]store.Summary, error)
	DeleteSummary(ctx context.Context, id int64) error
}

// Metadata is stored as JSON next to every summary.
type Metadata struct {
	Filename            string              `json:"filename"`
	Model               string              `json:"model"`
	Attempts            int                 `json:"attempts"`
	EthicsCompliant     bool                `json:"ethics_compliant"`
	EthicsReason        string              `json:"ethics_reason"`
	QualityScores       ethics.QualityScore `json:"quality_scores,omitempty"`
	DetoxSummary        toxicity.Scores     `json:"detox_summary,omitempty"`
	DetoxReport         toxicity.Scores     `json:"detox_report,omitempty"`
	PercentageReduction map[string]float64  `json:"percentage_reduction,omitempty"`
	EthicsAudit         *ethics.Audit       `json:"ethics_audit,omitempty"`
}

// Upload is one file of a request. Open is called at most once.
type Upload struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

func BytesUpload(filename string, data []byte) Upload {
	return Upload{
		Filename: filename,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

type FileResult struct {
	ID       int64     `json:"-"`
	Summary  string    `json:"summary"`
	Metadata *Metadata `json:"metadata"`
}

// SummaryServiceConfig wires the pipeline. Judge, Auditor and Scorer are
// optional; a nil one is skipped.
type SummaryServiceConfig struct {
	Extractor         TextExtractor
	Dispatcher        Summarizer
	Judge             QualityJudge
	Auditor           EthicsAuditor
	Scorer            toxicity.Scorer
	Repository        SummaryRepository
	MaxWords          int
	EthicsMaxAttempts int
}

type SummaryService struct {
	extractor         TextExtractor
	dispatcher        Summarizer
	judge             QualityJudge
	auditor           EthicsAuditor
	scorer            toxicity.Scorer
	repo              SummaryRepository
	maxWords          int
	ethicsMaxAttempts int
	log               *logger.Logger
}

func NewSummaryService(cfg SummaryServiceConfig, log *logger.Logger) *SummaryService {
	attempts := cfg.EthicsMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &SummaryService{
		extractor:         cfg.Extractor,
		dispatcher:        cfg.Dispatcher,
		judge:             cfg.Judge,
		auditor:           cfg.Auditor,
		scorer:            cfg.Scorer,
		repo:              cfg.Repository,
		maxWords:          cfg.MaxWords,
		ethicsMaxAttempts: attempts,
		log:               log.With("component", "SummaryService"),
	}
}

// SummarizeFile runs one upload through the whole pipeline and persists the
// result. Nothing is stored when an error is returned.
func (s *SummaryService) SummarizeFile(ctx context.Context, userID, model string, up Upload) (*FileResult, error) {
	if !extract.SupportedExtension(up.Filename) {
		return nil, ErrUnsupportedFile
	}

	path, err := spool(up)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	text, err := s.extractor.File(path, up.Filename)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyDocument
	}
	if words := utils.WordCount(text); s.maxWords > 0 && words > s.maxWords {
		return nil, &DocumentTooLongError{Words: words, Limit: s.maxWords}
	}

	outcome, err := s.summarizeWithEthics(ctx, text, model)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		Filename:        up.Filename,
		Model:           model,
		Attempts:        outcome.attempts,
		EthicsCompliant: outcome.compliant,
		EthicsReason:    outcome.reason,
	}
	if outcome.compliant {
		if err := s.score(ctx, text, outcome.summary, meta); err != nil {
			return nil, err
		}
	}

	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	id, err := s.repo.SaveSummary(ctx, store.NewSummary{
		UserID:       userID,
		Filename:     up.Filename,
		OriginalText: text,
		SummaryText:  outcome.summary,
		Metadata:     encoded,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Saved summary", "user_id", userID, "filename", up.Filename, "id", id,
		"model", model, "attempts", outcome.attempts, "compliant", outcome.compliant)
	return &FileResult{ID: id, Summary: outcome.summary, Metadata: meta}, nil
}

type ethicsOutcome struct {
	summary   string
	attempts  int
	compliant bool
	reason    string
}

// summarizeWithEthics asks the dispatcher for a summary until one passes the
// lexical check, feeding each rejection reason back into the prompt. Provider
// errors end the loop.
func (s *SummaryService) summarizeWithEthics(ctx context.Context, text, model string) (ethicsOutcome, error) {
	prompt := text
	var verdict ethics.Verdict
	for attempt := 1; attempt <= s.ethicsMaxAttempts; attempt++ {
		summary, err := s.dispatcher.SummarizeText(ctx, prompt, model)
		if err != nil {
			return ethicsOutcome{}, err
		}

		verdict = ethics.Check(summary)
		if verdict.Compliant {
			return ethicsOutcome{summary: summary, attempts: attempt, compliant: true}, nil
		}

		s.log.Warn("Summary rejected by ethics check", "model", model, "attempt", attempt, "reason", verdict.Reason)
		if attempt < s.ethicsMaxAttempts {
			prompt += ethicsFeedbackPrefix + verdict.Reason
		}
	}
	return ethicsOutcome{summary: RefusalMessage, attempts: s.ethicsMaxAttempts, reason: verdict.Reason}, nil
}

// score fills the quality, toxicity and audit fields. Only a judge failure is
// fatal; toxicity and audit failures are logged and leave their fields empty.
func (s *SummaryService) score(ctx context.Context, text, summary string, meta *Metadata) error {
	if s.judge != nil {
		quality, err := s.judge.Evaluate(ctx, text, summary)
		if err != nil {
			return fmt.Errorf("quality evaluation failed: %w", err)
		}
		meta.QualityScores = quality
	}

	if s.scorer != nil {
		summaryScores, sErr := s.scorer.Score(ctx, summary)
		reportScores, rErr := s.scorer.Score(ctx, text)
		if err := errors.Join(sErr, rErr); err != nil {
			s.log.Warn("Toxicity scoring failed", "filename", meta.Filename, "error", err)
		} else {
			meta.DetoxSummary = toxicity.WithOverall(summaryScores)
			meta.DetoxReport = toxicity.WithOverall(reportScores)
			meta.PercentageReduction = toxicity.Reduction(meta.DetoxReport, meta.DetoxSummary)
		}
	}

	if s.auditor != nil {
		audit, err := s.auditor.Audit(ctx, text, summary)
		if err != nil {
			s.log.Warn("Ethics audit failed", "filename", meta.Filename, "error", err)
		} else {
			meta.EthicsAudit = audit
		}
	}
	return nil
}

// spool copies an upload to a temporary file and returns its path.
func spool(up Upload) (string, error) {
	src, err := up.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	f, err := os.CreateTemp("", "upload-*"+strings.ToLower(filepath.Ext(up.Filename)))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return f.Name(), nil
}

type BatchItem struct {
	Filename string
	Result   *FileResult
	Err      error
}

// SummarizeBatch processes uploads one after another. A failing file does not
// stop the others.
func (s *SummaryService) SummarizeBatch(ctx context.Context, userID, model string, uploads []Upload) []BatchItem {
	batchID := uuid.NewString()
	log := s.log.With("batch_id", batchID, "user_id", userID, "model", model)
	log.Info("Summarization batch started", "files", len(uploads))

	items := make([]BatchItem, 0, len(uploads))
	for _, up := range uploads {
		res, err := s.SummarizeFile(ctx, userID, model, up)
		if err != nil {
			log.Error("File failed", "filename", up.Filename, "error", err)
		}
		items = append(items, BatchItem{Filename: up.Filename, Result: res, Err: err})
	}
	return items
}

func (s *SummaryService) ListSummaries(ctx context.Context, userID string) ([]store.Summary, error) {
	return s.repo.ListSummaries(ctx, userID)
}

func (s *SummaryService) DeleteSummary(ctx context.Context, id int64) error {
	return s.repo.DeleteSummary(ctx, id)
}
