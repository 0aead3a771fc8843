// Package pipeline drives one analysis session through factor extraction,
// the per-factor advocate/skeptic/scribe debate and local report assembly.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/events"
	"github.com/aether-labs/aether/internal/inference"
	"github.com/aether-labs/aether/internal/logging"
	"github.com/aether-labs/aether/internal/sanitize"
)

const truncationMarker = "...[truncated]"

// Invoker performs one resilient inference call.
type Invoker interface {
	Invoke(ctx context.Context, call inference.Call) (string, error)
}

// Publisher receives progress events for a session.
type Publisher interface {
	Publish(sessionID string, ev events.ProgressEvent)
}

// Excerpts bounds the document text each role receives, in characters.
// Zero sends the whole document.
type Excerpts struct {
	Analyst  int
	Advocate int
	Skeptic  int
	Scribe   int
}

// Options configures pacing and prompt sizes.
type Options struct {
	FactorDelay     time.Duration
	CallDelay       time.Duration
	SynthesisDelay  time.Duration
	MinFactors      int
	MaxFactors      int
	MaxImageFactors int
	Excerpts        Excerpts
}

// DefaultOptions returns the pacing used against free-tier providers.
func DefaultOptions() Options {
	return Options{
		FactorDelay:     3 * time.Second,
		CallDelay:       2 * time.Second,
		SynthesisDelay:  8 * time.Second,
		MinFactors:      3,
		MaxFactors:      5,
		MaxImageFactors: 3,
		Excerpts:        Excerpts{Advocate: 1500, Skeptic: 1500, Scribe: 1000},
	}
}

// Coordinator runs the pipeline for a session. Factors are processed one at
// a time and the calls within a factor are strictly ordered.
type Coordinator struct {
	invoker   Invoker
	publisher Publisher
	store     core.SessionStore
	prompts   *PromptRenderer
	opts      Options
	logger    *logging.Logger
	sleep     inference.SleepFunc
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithOptions replaces the default options.
func WithOptions(o Options) CoordinatorOption {
	return func(c *Coordinator) { c.opts = o }
}

// WithStore persists the session after each debate and at terminal states.
func WithStore(s core.SessionStore) CoordinatorOption {
	return func(c *Coordinator) { c.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithSleep replaces the pacing wait.
func WithSleep(fn inference.SleepFunc) CoordinatorOption {
	return func(c *Coordinator) { c.sleep = fn }
}

// NewCoordinator creates a coordinator.
func NewCoordinator(inv Invoker, pub Publisher, opts ...CoordinatorOption) (*Coordinator, error) {
	prompts, err := NewPromptRenderer()
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		invoker:   inv,
		publisher: pub,
		prompts:   prompts,
		opts:      DefaultOptions(),
		logger:    logging.NewNop(),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.opts.MinFactors <= 0 {
		c.opts.MinFactors = 1
	}
	if c.opts.MaxFactors < c.opts.MinFactors {
		c.opts.MaxFactors = c.opts.MinFactors
	}
	return c, nil
}

// run carries the per-session state of one Run call.
type run struct {
	*Coordinator
	session *core.Session
	doc     core.Document
	log     *logging.Logger
}

// Run drives s from IDLE to COMPLETE or ERROR. A rate limit after at least
// one completed debate ends the debate loop early and still produces a
// partial report; any other failure moves the session to ERROR and is
// returned.
func (c *Coordinator) Run(ctx context.Context, s *core.Session) (*core.FinalReport, error) {
	ctx = logging.NewContext(ctx, s.ID())
	r := &run{Coordinator: c, session: s, doc: s.Document(), log: c.logger.WithSession(s.ID())}

	if err := s.Transition(core.StateExtractingFactors); err != nil {
		return nil, err
	}
	if r.doc.IsImage() {
		r.publish(core.StateExtractingFactors, "🔍 The Decipherer is analyzing the image/chart...", nil)
	} else {
		r.publish(core.StateExtractingFactors, "🔍 The Decipherer is analyzing the report...", nil)
	}

	factors, err := r.extractFactors(ctx)
	if err != nil {
		return nil, r.fail(ctx, &StageError{Stage: StageExtract, Err: err})
	}
	if err := s.SetFactors(factors); err != nil {
		return nil, r.fail(ctx, &StageError{Stage: StageExtract, Err: err})
	}
	r.log.Info("factors extracted", "count", len(factors))
	r.publish(core.StateExtractingFactors, fmt.Sprintf("✅ Found %d key factors", len(factors)),
		map[string]interface{}{"factors": factors})
	r.save(ctx)

	for i, factor := range factors {
		if i > 0 {
			if err := c.sleep(ctx, c.opts.FactorDelay); err != nil {
				return nil, r.fail(ctx, &StageError{Stage: StageAdvocate, FactorIndex: i + 1, FactorName: factor.Name, Err: err})
			}
		}

		err := r.debate(ctx, i, factor, len(factors))
		if err == nil {
			continue
		}
		if core.IsRateLimited(err) && s.DebateCount() > 0 {
			if terr := s.Transition(core.StateRateLimitTerminated); terr != nil {
				return nil, r.fail(ctx, terr)
			}
			r.log.Warn("rate limit reached, finishing with partial results",
				"completed", s.DebateCount(), "total", len(factors), "error", err)
			r.publish(core.StateRateLimitTerminated,
				fmt.Sprintf("⚠️ Rate limit reached. Generating report with %d completed factors...", s.DebateCount()), nil)
			r.save(ctx)
			break
		}
		return nil, r.fail(ctx, err)
	}

	report, err := r.finish(ctx, len(factors))
	if err != nil {
		return nil, r.fail(ctx, &StageError{Stage: StageReport, Err: err})
	}
	return report, nil
}

// debate runs the three calls for one factor and records the result.
func (r *run) debate(ctx context.Context, i int, factor core.Factor, total int) error {
	s := r.session
	log := r.log.WithFactor(i+1, factor.ID)
	stageErr := func(stage Stage, err error) error {
		return &StageError{Stage: stage, FactorIndex: i + 1, FactorName: factor.Name, Err: err}
	}

	if err := s.Transition(core.StateArguing); err != nil {
		return stageErr(StageAdvocate, err)
	}
	r.publish(core.StateArguing, fmt.Sprintf("💚 The Advocate is arguing for %q...", factor.Name),
		map[string]interface{}{"current_factor": i + 1, "total_factors": total})

	arg, err := r.argue(ctx, factor)
	if err != nil {
		return stageErr(StageAdvocate, err)
	}
	log.Debug("advocate argument received", "claim", arg.Claim)
	r.publish(core.StateArguing, fmt.Sprintf("✅ Advocate: %q", arg.Claim),
		map[string]interface{}{"advocate_argument": arg})

	if err := s.Transition(core.StateCountering); err != nil {
		return stageErr(StageSkeptic, err)
	}
	r.publish(core.StateCountering, "🔴 The Skeptic is challenging the Advocate...", nil)

	counter, err := r.counter(ctx, factor, arg)
	if err != nil {
		return stageErr(StageSkeptic, err)
	}
	log.Debug("skeptic counter received", "counter", counter.CounterArgument)
	r.publish(core.StateCountering, fmt.Sprintf("✅ Skeptic: %q", counter.CounterArgument),
		map[string]interface{}{"skeptic_argument": counter})

	if err := s.Transition(core.StateSynthesizing); err != nil {
		return stageErr(StageSynthesis, err)
	}
	r.publish(core.StateSynthesizing, "⚖️ The Scribe is judging the debate...", nil)

	synthesis, err := r.synthesize(ctx, factor, arg, counter)
	if err != nil {
		return stageErr(StageSynthesis, err)
	}

	record := core.DebateRecord{Factor: factor, Advocate: arg, Skeptic: counter, Synthesis: synthesis}
	if err := s.AppendDebate(record); err != nil {
		return stageErr(StageSynthesis, err)
	}
	log.Info("debate complete", "verdict", synthesis.Verdict)
	r.publish(core.StateSynthesizing, "✅ Verdict: "+synthesis.Verdict,
		map[string]interface{}{"synthesis": synthesis, "debate": record})
	r.save(ctx)
	return nil
}

func (r *run) extractFactors(ctx context.Context) ([]core.Factor, error) {
	image := r.doc.IsImage()
	limit := r.opts.MaxFactors
	if image && r.opts.MaxImageFactors > 0 && r.opts.MaxImageFactors < limit {
		limit = r.opts.MaxImageFactors
	}

	params := AnalystParams{MinFactors: r.opts.MinFactors, MaxFactors: limit}
	if image {
		params.Caption = r.doc.Text
	} else {
		params.Report = Excerpt(r.doc.Text, r.opts.Excerpts.Analyst)
	}
	prompt, err := r.prompts.Analyst(image, params)
	if err != nil {
		return nil, err
	}

	raw, err := r.call(ctx, core.RoleAnalyst, prompt, r.doc.Attachment())
	if err != nil {
		return nil, err
	}

	var factors []core.Factor
	if err := sanitize.ExtractInto(raw, sanitize.ShapeArray, &factors); err != nil {
		return nil, err
	}
	if len(factors) > limit {
		r.log.Debug("limiting extracted factors", "extracted", len(factors), "limit", limit)
		factors = factors[:limit]
	}
	return normalizeFactors(factors, raw)
}

// normalizeFactors assigns missing or duplicate IDs and rejects factors
// without content.
func normalizeFactors(factors []core.Factor, raw string) ([]core.Factor, error) {
	if len(factors) == 0 {
		return nil, core.ErrValidation(core.CodeNoFactors, "analyst returned no factors")
	}
	seen := make(map[string]bool, len(factors))
	out := make([]core.Factor, 0, len(factors))
	for i, f := range factors {
		f.ID = strings.TrimSpace(f.ID)
		if f.ID == "" || seen[f.ID] {
			f.ID = uniqueFactorID(seen, i+1)
		}
		seen[f.ID] = true
		if err := f.Validate(); err != nil {
			return nil, &core.SanitizationError{
				Shape:   string(sanitize.ShapeArray),
				Reason:  fmt.Sprintf("factor %d is incomplete", i+1),
				Snippet: snippet(raw),
				Cause:   err,
			}
		}
		out = append(out, f)
	}
	return out, nil
}

func uniqueFactorID(seen map[string]bool, n int) string {
	id := fmt.Sprintf("factor_%d", n)
	for suffix := 2; seen[id]; suffix++ {
		id = fmt.Sprintf("factor_%d_%d", n, suffix)
	}
	return id
}

func (r *run) argue(ctx context.Context, factor core.Factor) (core.ArgumentRecord, error) {
	var arg core.ArgumentRecord
	if err := r.sleep(ctx, r.opts.CallDelay); err != nil {
		return arg, err
	}
	prompt, err := r.prompts.Advocate(DebateParams{
		Factor: factor,
		Report: Excerpt(r.doc.Text, r.opts.Excerpts.Advocate),
	})
	if err != nil {
		return arg, err
	}
	raw, err := r.call(ctx, core.RoleAdvocate, prompt, nil)
	if err != nil {
		return arg, err
	}
	if err := decodeObject(raw, &arg); err != nil {
		return arg, err
	}
	return arg, nil
}

func (r *run) counter(ctx context.Context, factor core.Factor, arg core.ArgumentRecord) (core.CounterRecord, error) {
	var counter core.CounterRecord
	if err := r.sleep(ctx, r.opts.CallDelay); err != nil {
		return counter, err
	}
	prompt, err := r.prompts.Skeptic(DebateParams{
		Factor:   factor,
		Argument: arg,
		Report:   Excerpt(r.doc.Text, r.opts.Excerpts.Skeptic),
	})
	if err != nil {
		return counter, err
	}
	raw, err := r.call(ctx, core.RoleSkeptic, prompt, nil)
	if err != nil {
		return counter, err
	}
	if err := decodeObject(raw, &counter); err != nil {
		return counter, err
	}
	if strings.TrimSpace(counter.QuotedClaim) == "" {
		counter.QuotedClaim = arg.Claim
	}
	if strings.TrimSpace(counter.RespondsTo) == "" {
		counter.RespondsTo = arg.Claim
	}
	return counter, nil
}

func (r *run) synthesize(ctx context.Context, factor core.Factor, arg core.ArgumentRecord, counter core.CounterRecord) (core.SynthesisRecord, error) {
	var synthesis core.SynthesisRecord
	if err := r.sleep(ctx, r.opts.SynthesisDelay); err != nil {
		return synthesis, err
	}
	prompt, err := r.prompts.Scribe(DebateParams{
		Factor:   factor,
		Argument: arg,
		Counter:  counter,
		Report:   Excerpt(r.doc.Text, r.opts.Excerpts.Scribe),
	})
	if err != nil {
		return synthesis, err
	}
	raw, err := r.call(ctx, core.RoleScribe, prompt, nil)
	if err != nil {
		return synthesis, err
	}
	if err := decodeObject(raw, &synthesis); err != nil {
		return synthesis, err
	}
	return synthesis, nil
}

// validator is implemented by the record types decoded from model output.
type validator interface {
	Validate() error
}

func decodeObject(raw string, v validator) error {
	if err := sanitize.ExtractInto(raw, sanitize.ShapeObject, v); err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return &core.SanitizationError{
			Shape:   string(sanitize.ShapeObject),
			Reason:  "required field missing",
			Snippet: snippet(raw),
			Cause:   err,
		}
	}
	return nil
}

// call invokes a role and surfaces retries as progress events in the
// current state.
func (r *run) call(ctx context.Context, role core.Role, userPrompt string, att *core.Attachment) (string, error) {
	system, err := r.prompts.System(role)
	if err != nil {
		return "", err
	}
	return r.invoker.Invoke(ctx, inference.Call{
		Role:         role,
		SystemPrompt: system,
		UserPrompt:   userPrompt,
		Attachment:   att,
		OnRetry: func(attempt int, class core.FailureClass, delay time.Duration, cause error) {
			msg := fmt.Sprintf("⏳ %s hit a %s error, retrying in %s (attempt %d)",
				role.Persona(), strings.ReplaceAll(string(class), "_", " "), delay.Round(time.Millisecond), attempt)
			r.publish(r.session.State(), msg, map[string]interface{}{
				"retry": map[string]interface{}{
					"role":     role,
					"attempt":  attempt,
					"class":    class,
					"delay_ms": delay.Milliseconds(),
				},
			})
		},
	})
}

func (r *run) finish(ctx context.Context, total int) (*core.FinalReport, error) {
	s := r.session
	if err := s.Transition(core.StateGeneratingReport); err != nil {
		return nil, err
	}
	completed := s.DebateCount()
	if completed < total {
		r.publish(core.StateGeneratingReport,
			fmt.Sprintf("📝 Generating report from %d/%d completed factors...", completed, total), nil)
	} else {
		r.publish(core.StateGeneratingReport, "📝 Generating final report from debate results...", nil)
	}

	debates := s.Debates()
	report := BuildReport(debates, total)
	if err := s.SetReport(report); err != nil {
		return nil, err
	}
	if err := s.Transition(core.StateComplete); err != nil {
		return nil, err
	}
	r.save(ctx)

	msg := "✅ Analysis complete!"
	if report.IsPartial {
		msg = fmt.Sprintf("✅ Partial analysis complete! Analyzed %d/%d factors.", report.FactorsAnalyzed, report.TotalFactors)
	}
	r.log.Info("analysis complete", "factors_analyzed", report.FactorsAnalyzed,
		"total_factors", report.TotalFactors, "partial", report.IsPartial)
	r.publish(core.StateComplete, msg, map[string]interface{}{
		"debates":      debates,
		"final_report": report,
	})
	return &report, nil
}

// fail moves the session to ERROR, publishes the terminal event and
// returns cause.
func (r *run) fail(ctx context.Context, cause error) error {
	if err := r.session.Fail(cause); err != nil {
		r.log.Error("cannot move session to error", "error", err)
	}
	r.log.Error("analysis failed", "state", r.session.State(), "debates", r.session.DebateCount(), "error", cause)
	r.save(ctx)
	r.publish(core.StateError, "❌ Error: "+cause.Error(), nil)
	return cause
}

func (r *run) publish(state core.State, msg string, data interface{}) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(r.session.ID(), events.NewProgressEvent(state, msg, data))
}

// save persists the session. A failed save never aborts the run.
func (r *run) save(ctx context.Context) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(context.WithoutCancel(ctx), r.session); err != nil {
		r.log.Warn("saving session failed", "error", err)
	}
}

// Excerpt returns at most n characters of text followed by a truncation
// marker. n <= 0 returns text unchanged.
func Excerpt(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + truncationMarker
}

func snippet(raw string) string {
	const max = 200
	if len(raw) <= max {
		return raw
	}
	return raw[:max] + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
