package retriever

import (
	"time"

	"github.com/kailas-cloud/retriever/internal/domain"
	"github.com/kailas-cloud/retriever/internal/usecase/build"
	"github.com/kailas-cloud/retriever/internal/usecase/engine"
	healthuc "github.com/kailas-cloud/retriever/internal/usecase/health"
	"github.com/kailas-cloud/retriever/internal/usecase/query"
)

// SourceType tags how a source is turned into text.
type SourceType string

const (
	// SourcePDF is a PDF file on local disk.
	SourcePDF SourceType = SourceType(domain.SourcePDF)
	// SourcePDFURL is a PDF downloaded over HTTP(S).
	SourcePDFURL SourceType = SourceType(domain.SourcePDFURL)
	// SourceWeb is an HTML page downloaded over HTTP(S).
	SourceWeb SourceType = SourceType(domain.SourceWeb)
	// SourceText is a UTF-8 text file on local disk.
	SourceText SourceType = SourceType(domain.SourceText)
)

// Source is a document to index. Label names it in results and must be
// unique per type.
type Source struct {
	Type     SourceType
	Location string
	Label    string
}

// Result is one ranked passage. Adjacent passages of the same source are
// merged, in which case ChunkIDs lists every merged chunk.
type Result struct {
	Text       string
	Source     string
	Similarity float64
	ChunkIDs   []int
	// Index and Total locate the first merged chunk within its source.
	Index int
	Total int
}

// SourceOutcome describes what happened to one source during a rebuild.
type SourceOutcome struct {
	Label   string
	Type    SourceType
	Outcome string // "indexed", "skipped", "failed"
	Chunks  int
	Error   string
}

// Report summarises a rebuild.
type Report struct {
	OK       bool
	Summary  string
	BuildID  string
	Chunks   int
	Sources  []SourceOutcome
	Duration time.Duration
}

// Status describes the serving index.
type Status struct {
	Loaded   bool
	BuildID  string
	Chunks   int
	Dim      int
	Sources  map[string]int // label -> chunk count
	LoadedAt time.Time
	Error    string
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component -> "ok"/"error"
}

func toDomainSource(s Source) domain.Source {
	return domain.Source{
		Type:     domain.SourceType(s.Type),
		Location: s.Location,
		Label:    s.Label,
		Enabled:  true,
	}
}

func fromQueryResult(r query.Result) Result {
	return Result{
		Text:       r.Chunk.Text,
		Source:     r.Chunk.Source,
		Similarity: r.Similarity,
		ChunkIDs:   r.ChunkIDs,
		Index:      r.Chunk.Position.Index,
		Total:      r.Chunk.Position.Total,
	}
}

func fromBuildReport(r build.Report) Report {
	out := Report{
		OK:       r.OK,
		Summary:  r.Summary,
		BuildID:  r.BuildID,
		Chunks:   r.Chunks,
		Sources:  make([]SourceOutcome, len(r.Sources)),
		Duration: r.Duration,
	}
	for i, s := range r.Sources {
		out.Sources[i] = SourceOutcome{
			Label:   s.Label,
			Type:    SourceType(s.Type),
			Outcome: string(s.Outcome),
			Chunks:  s.Chunks,
			Error:   s.Error,
		}
	}
	return out
}

func fromEngineStatus(s engine.Status) Status {
	return Status{
		Loaded:   s.Loaded,
		BuildID:  s.BuildID,
		Chunks:   s.IndexSize,
		Dim:      s.Dim,
		Sources:  s.Sources,
		LoadedAt: s.LoadedAt,
		Error:    s.Error,
	}
}

func fromHealthReport(r healthuc.Report) HealthStatus {
	checks := make(map[string]string, len(r.Checks))
	for k, v := range r.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{Status: string(r.Status), Checks: checks}
}
