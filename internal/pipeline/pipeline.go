package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hejijunhao/canopy/internal/model"
	"github.com/hejijunhao/canopy/internal/output"
)

const (
	defaultWorkers = 4
	maxLineBytes   = 4 << 20
)

// Suggester is the query surface the pipeline drives. *engine.Engine
// satisfies it.
type Suggester interface {
	SuggestTopicsN(ctx context.Context, text, lang string, limit int) ([]model.TopicSuggestion, error)
}

// Document is one input line. Plain text lines become a Document with only
// Text set; lines starting with '{' are decoded as JSON.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Lang string `json:"lang"`
}

// Stats summarises a Run.
type Stats struct {
	Documents int
	Failed    int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets how many documents are classified concurrently. Default: 4.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLimit caps the suggestions per document. 0 means unlimited.
func WithLimit(n int) Option {
	return func(p *Pipeline) { p.limit = n }
}

// WithLanguage sets the language used for documents that do not name one.
func WithLanguage(lang string) Option {
	return func(p *Pipeline) { p.lang = lang }
}

// Pipeline connects a document reader, a Suggester and an output.
type Pipeline struct {
	suggester Suggester
	output    output.Output
	workers   int
	limit     int
	lang      string
	log       *slog.Logger
}

// New creates a Pipeline from the given components.
func New(s Suggester, out output.Output, opts ...Option) *Pipeline {
	p := &Pipeline{
		suggester: s,
		output:    out,
		workers:   defaultWorkers,
		log:       slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type job struct {
	seq    int
	doc    Document
	badErr error
}

type result struct {
	seq int
	rec output.Record
}

// Run reads documents from r and writes one suggestions record per document,
// in input order. Per-document failures (bad JSON, empty text, unsupported
// language, extraction errors) are reported in the record's Error field and
// do not stop the run. Reader, output and context errors do.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job)
	results := make(chan result, p.workers)

	g.Go(func() error {
		defer close(jobs)
		return p.read(gctx, r, jobs)
	})

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				rec, err := p.suggest(gctx, j)
				if err != nil {
					return err
				}
				select {
				case results <- result{seq: j.seq, rec: rec}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		st       Stats
		writeErr error
		buf      = newReorderBuffer()
	)
	for res := range results {
		if writeErr != nil {
			continue
		}
		for _, rec := range buf.add(res.seq, res.rec) {
			st.Documents++
			if rec.Error != "" {
				st.Failed++
			}
			if err := p.output.Write(ctx, rec); err != nil {
				writeErr = fmt.Errorf("pipeline output: %w", err)
				cancel()
				break
			}
		}
	}

	err := g.Wait()
	if writeErr != nil {
		return st, writeErr
	}
	if err != nil {
		return st, err
	}
	p.log.Info("batch finished", "documents", st.Documents, "failed", st.Failed)
	return st, nil
}

func (p *Pipeline) read(ctx context.Context, r io.Reader, jobs chan<- job) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	seq, line := 0, 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		j := job{seq: seq, doc: Document{ID: strconv.Itoa(line)}}
		if raw[0] == '{' {
			var doc Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				j.badErr = fmt.Errorf("line %d: %w", line, err)
			} else {
				if doc.ID == "" {
					doc.ID = j.doc.ID
				}
				j.doc = doc
			}
		} else {
			j.doc.Text = string(raw)
		}
		select {
		case jobs <- j:
		case <-ctx.Done():
			return ctx.Err()
		}
		seq++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("pipeline read: %w", err)
	}
	return nil
}

// suggest classifies one document. Only cancellation is returned as an error.
func (p *Pipeline) suggest(ctx context.Context, j job) (output.Record, error) {
	rec := output.Record{Kind: output.KindSuggestions, ID: j.doc.ID, Lang: j.doc.Lang, Text: j.doc.Text}
	if j.badErr != nil {
		rec.Error = j.badErr.Error()
		return rec, nil
	}
	lang := j.doc.Lang
	if lang == "" {
		lang = p.lang
	}
	s, err := p.suggester.SuggestTopicsN(ctx, j.doc.Text, lang, p.limit)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return rec, err
		}
		p.log.Debug("document failed", "id", j.doc.ID, "error", err)
		rec.Error = err.Error()
		return rec, nil
	}
	rec.Suggestions = s
	return rec, nil
}
