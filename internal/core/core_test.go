package core

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/battlebrief/bulwark/internal/ethics"
	"github.com/battlebrief/bulwark/internal/extract"
	"github.com/battlebrief/bulwark/internal/logger"
	"github.com/battlebrief/bulwark/internal/provider"
	"github.com/battlebrief/bulwark/internal/store"
	"github.com/battlebrief/bulwark/internal/toxicity"
)

type stubGateway struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []provider.Request
}

func (g *stubGateway) Summarize(_ context.Context, req provider.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	i := len(g.requests) - 1
	if i >= len(g.replies) {
		i = len(g.replies) - 1
	}
	return g.replies[i], nil
}

func (g *stubGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func fullRegistry(g provider.Gateway) provider.Registry {
	reg := provider.Registry{}
	for _, n := range provider.Names() {
		reg[n] = g
	}
	return reg
}

type memRepo struct {
	mu    sync.Mutex
	saved []store.NewSummary
	err   error
}

func (r *memRepo) SaveSummary(_ context.Context, in store.NewSummary) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.saved = append(r.saved, in)
	return int64(len(r.saved)), nil
}

func (r *memRepo) ListSummaries(context.Context, string) ([]store.Summary, error) { return nil, nil }
func (r *memRepo) DeleteSummary(context.Context, int64) error                   { return nil }

type stubJudge struct {
	err   error
	calls int
}

func (j *stubJudge) Evaluate(context.Context, string, string) (ethics.QualityScore, error) {
	j.calls++
	if j.err != nil {
		return nil, j.err
	}
	return ethics.QualityScore{ethics.FacetOverall: {Score: 8}}, nil
}

type stubScorer struct {
	err error
}

func (s stubScorer) Score(_ context.Context, text string) (toxicity.Scores, error) {
	if s.err != nil {
		return nil, s.err
	}
	if strings.HasPrefix(text, "Summary") {
		return toxicity.Scores{"toxicity": 0.1, "insult": 0.1}, nil
	}
	return toxicity.Scores{"toxicity": 0.4, "insult": 0}, nil
}

func newService(g provider.Gateway, repo SummaryRepository, judge QualityJudge, scorer toxicity.Scorer) *SummaryService {
	cfg := SummaryServiceConfig{
		Extractor:         extract.New(logger.Nop()),
		Dispatcher:        NewDispatcher(fullRegistry(g), logger.Nop()),
		Repository:        repo,
		MaxWords:          50,
		EthicsMaxAttempts: 3,
	}
	if judge != nil {
		cfg.Judge = judge
	}
	if scorer != nil {
		cfg.Scorer = scorer
	}
	return NewSummaryService(cfg, logger.Nop())
}

func TestDispatcherUnknownProvider(t *testing.T) {
	g := &stubGateway{replies: []string{"ok"}}
	d := NewDispatcher(fullRegistry(g), logger.Nop())

	_, err := d.SummarizeText(context.Background(), "text", "llama-9000")
	var unknown *UnknownProviderError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownProviderError, got %v", err)
	}
	for _, n := range provider.Names() {
		if !strings.Contains(err.Error(), string(n)) {
			t.Errorf("error %q should list %s", err.Error(), n)
		}
	}
	if g.calls() != 0 {
		t.Errorf("no gateway call expected, got %d", g.calls())
	}
}

func TestDispatcherCaseInsensitive(t *testing.T) {
	g := &stubGateway{replies: []string{"done"}}
	d := NewDispatcher(fullRegistry(g), logger.Nop())

	out, err := d.SummarizeText(context.Background(), "text", "Google-PEGASUS")
	if err != nil || out != "done" {
		t.Fatalf("SummarizeText = %q, %v", out, err)
	}
	if g.calls() != 1 {
		t.Errorf("expected exactly one gateway call, got %d", g.calls())
	}
	if g.requests[0].MaxOutputTokens != provider.MaxOutputTokens {
		t.Errorf("expected default token budget, got %d", g.requests[0].MaxOutputTokens)
	}
}

func TestEthicsLoopRetriesWithFeedback(t *testing.T) {
	g := &stubGateway{replies: []string{"The coup failed.", "Summary: troops withdrew."}}
	repo := &memRepo{}
	svc := newService(g, repo, nil, nil)

	res, err := svc.SummarizeFile(context.Background(), "alice", "gpt4", BytesUpload("r.txt", []byte("Report about the region.")))
	if err != nil {
		t.Fatalf("SummarizeFile failed: %v", err)
	}
	if res.Summary != "Summary: troops withdrew." || res.Metadata.Attempts != 2 || !res.Metadata.EthicsCompliant {
		t.Errorf("unexpected result %+v / %+v", res, res.Metadata)
	}
	second := g.requests[1].Text
	if !strings.HasSuffix(second, "\n\nPlease ensure the summary avoids: politically sensitive content: coup") {
		t.Errorf("feedback not appended to prompt: %q", second)
	}
	if len(repo.saved) != 1 {
		t.Errorf("expected one saved row, got %d", len(repo.saved))
	}
}

func TestEthicsLoopRefusesAfterBudget(t *testing.T) {
	g := &stubGateway{replies: []string{"They planned to kill everyone."}}
	repo := &memRepo{}
	judge := &stubJudge{}
	svc := newService(g, repo, judge, nil)

	res, err := svc.SummarizeFile(context.Background(), "alice", "claude", BytesUpload("r.txt", []byte("Report.")))
	if err != nil {
		t.Fatalf("SummarizeFile failed: %v", err)
	}
	if res.Summary != RefusalMessage {
		t.Errorf("expected refusal message, got %q", res.Summary)
	}
	if g.calls() != 3 || res.Metadata.Attempts != 3 || res.Metadata.EthicsCompliant {
		t.Errorf("calls=%d metadata=%+v", g.calls(), res.Metadata)
	}
	if res.Metadata.EthicsReason != "violent or harmful content: kill" {
		t.Errorf("unexpected reason %q", res.Metadata.EthicsReason)
	}
	if judge.calls != 0 {
		t.Error("refused summaries are not judged")
	}
	if len(repo.saved) != 1 || repo.saved[0].SummaryText != RefusalMessage {
		t.Errorf("expected the refusal to be stored, got %+v", repo.saved)
	}
}

func TestSummarizeFileFailuresStoreNothing(t *testing.T) {
	providerErr := &provider.Error{Provider: provider.GPT4, Cause: "request failed"}

	tests := []struct {
		name    string
		gateway *stubGateway
		judge   QualityJudge
		upload  Upload
		model   string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "unsupported extension",
			gateway: &stubGateway{replies: []string{"x"}},
			upload:  BytesUpload("image.png", []byte("png")),
			model:   "gpt4",
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrUnsupportedFile) {
					t.Errorf("expected ErrUnsupportedFile, got %v", err)
				}
			},
		},
		{
			name:    "too long",
			gateway: &stubGateway{replies: []string{"x"}},
			upload:  BytesUpload("long.txt", []byte(strings.Repeat("word ", 51))),
			model:   "gpt4",
			check: func(t *testing.T, err error) {
				var tooLong *DocumentTooLongError
				if !errors.As(err, &tooLong) || tooLong.Words != 51 || tooLong.Limit != 50 {
					t.Errorf("expected DocumentTooLongError, got %v", err)
				}
			},
		},
		{
			name:    "empty document",
			gateway: &stubGateway{replies: []string{"x"}},
			upload:  BytesUpload("blank.txt", []byte("  \n ")),
			model:   "gpt4",
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrEmptyDocument) {
					t.Errorf("expected ErrEmptyDocument, got %v", err)
				}
			},
		},
		{
			name:    "unknown model",
			gateway: &stubGateway{replies: []string{"x"}},
			upload:  BytesUpload("r.txt", []byte("report")),
			model:   "gpt5",
			check: func(t *testing.T, err error) {
				var unknown *UnknownProviderError
				if !errors.As(err, &unknown) {
					t.Errorf("expected UnknownProviderError, got %v", err)
				}
			},
		},
		{
			name:    "provider error",
			gateway: &stubGateway{err: providerErr},
			upload:  BytesUpload("r.txt", []byte("report")),
			model:   "gpt4",
			check: func(t *testing.T, err error) {
				if !errors.Is(err, providerErr) {
					t.Errorf("expected provider error, got %v", err)
				}
			},
		},
		{
			name:    "judge failure",
			gateway: &stubGateway{replies: []string{"Summary ok."}},
			judge:   &stubJudge{err: ethics.ErrJudgeUnparseable},
			upload:  BytesUpload("r.txt", []byte("report")),
			model:   "gpt4",
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ethics.ErrJudgeUnparseable) {
					t.Errorf("expected judge error, got %v", err)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &memRepo{}
			svc := newService(tc.gateway, repo, tc.judge, nil)
			_, err := svc.SummarizeFile(context.Background(), "alice", tc.model, tc.upload)
			tc.check(t, err)
			if len(repo.saved) != 0 {
				t.Errorf("nothing should be stored, got %d rows", len(repo.saved))
			}
		})
	}
}

func TestSummarizeFileMetadata(t *testing.T) {
	g := &stubGateway{replies: []string{"Summary of movements."}}
	repo := &memRepo{}
	svc := newService(g, repo, &stubJudge{}, stubScorer{})

	res, err := svc.SummarizeFile(context.Background(), "alice", "mistral", BytesUpload("r.txt", []byte("Original report text.")))
	if err != nil {
		t.Fatalf("SummarizeFile failed: %v", err)
	}

	var meta map[string]any
	if err := json.Unmarshal(repo.saved[0].Metadata, &meta); err != nil {
		t.Fatalf("stored metadata is not JSON: %v", err)
	}
	for _, key := range []string{"filename", "model", "attempts", "ethics_compliant", "ethics_reason",
		"quality_scores", "detox_summary", "detox_report", "percentage_reduction"} {
		if _, ok := meta[key]; !ok {
			t.Errorf("metadata is missing %q", key)
		}
	}
	if _, ok := meta["ethics_audit"]; ok {
		t.Error("ethics_audit must be omitted without an auditor")
	}

	red := res.Metadata.PercentageReduction
	if red["toxicity"] < 74.9 || red["toxicity"] > 75.1 {
		t.Errorf("toxicity reduction = %v, want 75", red["toxicity"])
	}
	if red["insult"] != 0 {
		t.Errorf("zero report score must give 0 reduction, got %v", red["insult"])
	}
	if _, ok := res.Metadata.DetoxSummary[toxicity.OverallLabel]; !ok {
		t.Error("summary scores should include overall")
	}
}

func TestSummarizeFileToxicityFailureIsNotFatal(t *testing.T) {
	g := &stubGateway{replies: []string{"Summary ok."}}
	repo := &memRepo{}
	svc := newService(g, repo, nil, stubScorer{err: errors.New("quota exceeded")})

	res, err := svc.SummarizeFile(context.Background(), "alice", "gpt4", BytesUpload("r.txt", []byte("report")))
	if err != nil {
		t.Fatalf("SummarizeFile failed: %v", err)
	}
	if res.Metadata.DetoxSummary != nil || res.Metadata.PercentageReduction != nil {
		t.Errorf("toxicity fields should be empty, got %+v", res.Metadata)
	}
	if len(repo.saved) != 1 {
		t.Errorf("summary should still be stored")
	}
}

func TestSummarizeBatchIsolatesFailures(t *testing.T) {
	g := &stubGateway{replies: []string{"Summary ok."}}
	repo := &memRepo{}
	svc := newService(g, repo, nil, nil)

	items := svc.SummarizeBatch(context.Background(), "alice", "t5", []Upload{
		BytesUpload("a.txt", []byte("first report")),
		BytesUpload("b.exe", []byte("MZ")),
		BytesUpload("c.txt", []byte("third report")),
	})
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Err != nil || items[2].Err != nil {
		t.Errorf("valid files should succeed: %v, %v", items[0].Err, items[2].Err)
	}
	if !errors.Is(items[1].Err, ErrUnsupportedFile) {
		t.Errorf("expected unsupported file, got %v", items[1].Err)
	}
	if len(repo.saved) != 2 {
		t.Errorf("expected 2 stored rows, got %d", len(repo.saved))
	}
}

func TestUnknownModelLeavesDatabaseEmpty(t *testing.T) {
	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "core.db"), 5, logger.Nop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	g := &stubGateway{replies: []string{"x"}}
	svc := newService(g, st, nil, nil)

	_, err = svc.SummarizeFile(context.Background(), "alice", "bogus", BytesUpload("r.txt", []byte("report body")))
	var unknown *UnknownProviderError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownProviderError, got %v", err)
	}
	rows, err := st.ListSummaries(context.Background(), "alice")
	if err != nil || len(rows) != 0 {
		t.Errorf("expected no stored rows, got %d (%v)", len(rows), err)
	}
	if g.calls() != 0 {
		t.Errorf("no provider call expected, got %d", g.calls())
	}
}

type fakeRetentionStore struct {
	limit int
	err   error
}

func (f *fakeRetentionStore) EnforceRetentionAll(_ context.Context, limit int) (int64, error) {
	f.limit = limit
	return 7, f.err
}

func TestRetentionJob(t *testing.T) {
	fs := &fakeRetentionStore{}
	job := NewRetentionJob(context.Background(), fs, 120, logger.Nop())

	n, err := job.RunOnce(context.Background())
	if err != nil || n != 7 || fs.limit != 120 {
		t.Errorf("RunOnce = %d, %v (limit %d)", n, err, fs.limit)
	}

	if err := job.Start("not a schedule"); err == nil {
		t.Error("expected invalid schedule to be rejected")
	}
	if err := job.Start("@daily"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	job.Stop()

	disabled := NewRetentionJob(context.Background(), fs, 0, logger.Nop())
	if n, err := disabled.RunOnce(context.Background()); n != 0 || err != nil {
		t.Errorf("disabled job should do nothing, got %d, %v", n, err)
	}
}
