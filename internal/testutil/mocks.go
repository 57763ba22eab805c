package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// MockCall records a call to a mock.
type MockCall struct {
	Method    string
	Args      interface{}
	Timestamp time.Time
}

type recorder struct {
	mu    sync.Mutex
	calls []MockCall
}

func (r *recorder) recordCall(method string, args interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, MockCall{Method: method, Args: args, Timestamp: time.Now()})
}

// Calls returns recorded calls.
func (r *recorder) Calls() []MockCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MockCall{}, r.calls...)
}

// CallCount returns number of calls to a method.
func (r *recorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, c := range r.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// MockModel implements core.CodeModel. Each StreamCode call replays the next
// scripted stream; the last script repeats once the list is exhausted.
type MockModel struct {
	recorder
	scripts  [][]core.GenerationEvent
	streamFn func(context.Context, core.GenerationRequest) (<-chan core.GenerationEvent, error)
	next     int
}

// NewMockModel creates a model that streams nothing.
func NewMockModel() *MockModel {
	return &MockModel{}
}

// WithScript appends a scripted stream.
func (m *MockModel) WithScript(evs ...core.GenerationEvent) *MockModel {
	m.scripts = append(m.scripts, evs)
	return m
}

// WithText appends a plain-text stream made of the given chunks.
func (m *MockModel) WithText(chunks ...string) *MockModel {
	evs := make([]core.GenerationEvent, 0, len(chunks))
	for _, c := range chunks {
		evs = append(evs, core.GenerationEvent{Kind: core.EventPartial, Text: c})
	}
	return m.WithScript(evs...)
}

// WithStreamFunc replaces scripted replay.
func (m *MockModel) WithStreamFunc(fn func(context.Context, core.GenerationRequest) (<-chan core.GenerationEvent, error)) *MockModel {
	m.streamFn = fn
	return m
}

// StreamCode replays the next script.
func (m *MockModel) StreamCode(ctx context.Context, req core.GenerationRequest) (<-chan core.GenerationEvent, error) {
	m.recordCall("StreamCode", req)
	if m.streamFn != nil {
		return m.streamFn(ctx, req)
	}

	m.mu.Lock()
	var script []core.GenerationEvent
	if len(m.scripts) > 0 {
		i := m.next
		if i >= len(m.scripts) {
			i = len(m.scripts) - 1
		}
		script = m.scripts[i]
		m.next++
	}
	m.mu.Unlock()

	ch := make(chan core.GenerationEvent)
	go func() {
		defer close(ch)
		for _, ev := range script {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Requests returns every request the model received.
func (m *MockModel) Requests() []core.GenerationRequest {
	var out []core.GenerationRequest
	for _, c := range m.Calls() {
		if req, ok := c.Args.(core.GenerationRequest); ok {
			out = append(out, req)
		}
	}
	return out
}

// MockHistory is an in-memory core.HistoryStore that records every append.
type MockHistory struct {
	recorder
	messages map[string][]core.HistoryMessage
	err      error
}

// NewMockHistory creates an empty history.
func NewMockHistory() *MockHistory {
	return &MockHistory{messages: make(map[string][]core.HistoryMessage)}
}

// WithError makes every call fail.
func (h *MockHistory) WithError(err error) *MockHistory {
	h.err = err
	return h
}

// Seed preloads messages for a session.
func (h *MockHistory) Seed(sessionKey string, msgs ...core.HistoryMessage) *MockHistory {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages[sessionKey] = append(h.messages[sessionKey], msgs...)
	return h
}

// AppendHistory stores a message.
func (h *MockHistory) AppendHistory(_ context.Context, sessionKey string, role core.MessageRole, text string) error {
	h.recordCall("AppendHistory", core.HistoryMessage{Role: role, Content: text})
	if h.err != nil {
		return h.err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages[sessionKey] = append(h.messages[sessionKey], core.HistoryMessage{
		Role: role, Content: text, CreatedAt: time.Now(),
	})
	return nil
}

// LoadHistory returns the newest limit messages, oldest first.
func (h *MockHistory) LoadHistory(_ context.Context, sessionKey string, limit int) ([]core.HistoryMessage, error) {
	h.recordCall("LoadHistory", sessionKey)
	if h.err != nil {
		return nil, h.err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.messages[sessionKey]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]core.HistoryMessage{}, msgs...), nil
}

// Messages returns everything stored for a session.
func (h *MockHistory) Messages(sessionKey string) []core.HistoryMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.HistoryMessage{}, h.messages[sessionKey]...)
}

// MockPlanner implements core.AssetPlanner.
type MockPlanner struct {
	recorder
	plan core.ImageCollectionPlan
	err  error
}

// NewMockPlanner returns a planner producing plan.
func NewMockPlanner(plan core.ImageCollectionPlan) *MockPlanner {
	return &MockPlanner{plan: plan}
}

// WithError makes planning fail.
func (p *MockPlanner) WithError(err error) *MockPlanner {
	p.err = err
	return p
}

// PlanAssets returns the configured plan.
func (p *MockPlanner) PlanAssets(_ context.Context, prompt string) (core.ImageCollectionPlan, error) {
	p.recordCall("PlanAssets", prompt)
	return p.plan, p.err
}

// MockAssets implements every asset capability with one function per
// category. A nil function returns one resource echoing the query.
type MockAssets struct {
	recorder
	Content      func(query string) ([]core.ImageResource, error)
	Illustration func(query string) ([]core.ImageResource, error)
	Diagram      func(code, description string) ([]core.ImageResource, error)
	Logo         func(description string) ([]core.ImageResource, error)
}

// NewMockAssets creates an asset fake with default echo behavior.
func NewMockAssets() *MockAssets {
	return &MockAssets{}
}

func echo(cat core.ImageCategory, desc string) []core.ImageResource {
	return []core.ImageResource{{Category: cat, Description: desc, URL: "https://assets.test/" + string(cat)}}
}

// SearchContentImages implements core.ImageSearcher.
func (a *MockAssets) SearchContentImages(_ context.Context, query string) ([]core.ImageResource, error) {
	a.recordCall("SearchContentImages", query)
	if a.Content != nil {
		return a.Content(query)
	}
	return echo(core.ImageCategoryContent, query), nil
}

// SearchIllustrations implements core.IllustrationSearcher.
func (a *MockAssets) SearchIllustrations(_ context.Context, query string) ([]core.ImageResource, error) {
	a.recordCall("SearchIllustrations", query)
	if a.Illustration != nil {
		return a.Illustration(query)
	}
	return echo(core.ImageCategoryIllustration, query), nil
}

// RenderDiagram implements core.DiagramRenderer.
func (a *MockAssets) RenderDiagram(_ context.Context, code, description string) ([]core.ImageResource, error) {
	a.recordCall("RenderDiagram", code)
	if a.Diagram != nil {
		return a.Diagram(code, description)
	}
	return echo(core.ImageCategoryArchitecture, description), nil
}

// GenerateLogo implements core.LogoGenerator.
func (a *MockAssets) GenerateLogo(_ context.Context, description string) ([]core.ImageResource, error) {
	a.recordCall("GenerateLogo", description)
	if a.Logo != nil {
		return a.Logo(description)
	}
	return echo(core.ImageCategoryLogo, description), nil
}

// MockClassifier implements core.Classifier.
type MockClassifier struct {
	recorder
	genType core.GenerationType
	err     error
}

// NewMockClassifier returns a classifier that always picks t.
func NewMockClassifier(t core.GenerationType) *MockClassifier {
	return &MockClassifier{genType: t}
}

// WithError makes classification fail.
func (c *MockClassifier) WithError(err error) *MockClassifier {
	c.err = err
	return c
}

// ClassifyGenerationType returns the configured type.
func (c *MockClassifier) ClassifyGenerationType(_ context.Context, prompt string) (core.GenerationType, error) {
	c.recordCall("ClassifyGenerationType", prompt)
	return c.genType, c.err
}

// CheckOutcome is one scripted quality check response.
type CheckOutcome struct {
	Result core.QualityResult
	Err    error
}

// MockChecker implements core.QualityChecker, replaying outcomes in order
// and repeating the last one.
type MockChecker struct {
	recorder
	outcomes []CheckOutcome
	next     int
}

// NewMockChecker creates a checker. With no outcomes every check passes.
func NewMockChecker(outcomes ...CheckOutcome) *MockChecker {
	return &MockChecker{outcomes: outcomes}
}

// CheckQuality returns the next outcome.
func (c *MockChecker) CheckQuality(_ context.Context, source string) (core.QualityResult, error) {
	c.recordCall("CheckQuality", source)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.outcomes) == 0 {
		return core.QualityResult{IsValid: true}, nil
	}
	i := c.next
	if i >= len(c.outcomes) {
		i = len(c.outcomes) - 1
	}
	c.next++
	return c.outcomes[i].Result, c.outcomes[i].Err
}

// MockBuilder implements core.ProjectBuilder.
type MockBuilder struct {
	recorder
	buildFn func(ctx context.Context, dir string) error
}

// NewMockBuilder creates a builder that always succeeds.
func NewMockBuilder() *MockBuilder {
	return &MockBuilder{}
}

// WithError makes builds fail.
func (b *MockBuilder) WithError(err error) *MockBuilder {
	b.buildFn = func(context.Context, string) error { return err }
	return b
}

// WithBuildFunc sets custom build behavior.
func (b *MockBuilder) WithBuildFunc(fn func(ctx context.Context, dir string) error) *MockBuilder {
	b.buildFn = fn
	return b
}

// BuildProject records the call.
func (b *MockBuilder) BuildProject(ctx context.Context, dir string) error {
	b.recordCall("BuildProject", dir)
	if b.buildFn != nil {
		return b.buildFn(ctx, dir)
	}
	return nil
}
