package service

import (
	"context"
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/application/common/slogger"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/domain/valueobject"
	"edurecovery/internal/port/inbound"
	"edurecovery/internal/port/outbound"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Reporter defaults.
const (
	DefaultMaxBreadcrumbs = 50
	DefaultMaxReports     = 100
	DefaultMaxSessions    = 1000
	DefaultForwardTimeout = 5 * time.Second
)

// ReportOptions carries the optional identity, client details and metadata of a
// report. URL, UserAgent and Viewport replace the session's values when set.
type ReportOptions struct {
	UserID    string
	UserRole  string
	URL       string
	UserAgent string
	Viewport  *entity.Viewport
	Metadata  map[string]any
}

// ErrorReporterConfig sizes the reporter's buffers.
type ErrorReporterConfig struct {
	MaxBreadcrumbs int           `mapstructure:"max_breadcrumbs"`
	MaxReports     int           `mapstructure:"max_reports"`
	MaxSessions    int           `mapstructure:"max_sessions"`
	ForwardTimeout time.Duration `mapstructure:"forward_timeout"`
}

// DefaultErrorReporterConfig returns the standard buffer sizes.
func DefaultErrorReporterConfig() ErrorReporterConfig {
	return ErrorReporterConfig{
		MaxBreadcrumbs: DefaultMaxBreadcrumbs,
		MaxReports:     DefaultMaxReports,
		MaxSessions:    DefaultMaxSessions,
		ForwardTimeout: DefaultForwardTimeout,
	}
}

// SendFunc delivers one payload to one sink.
type SendFunc func(ctx context.Context, sink outbound.ReportSink, payload entity.ReportPayload) error

// ErrorReporterDeps are the reporter's collaborators. Only the classifier is required.
type ErrorReporterDeps struct {
	Classifier *Classifier
	Clock      clockwork.Clock
	Sinks      []outbound.ReportSink
	Metrics    RetryMetrics
	Logger     logging.ApplicationLogger

	// Send replaces the direct sink.Send call made for every forwarded report.
	Send SendFunc
}

// Session holds the breadcrumbs, current URL and client details snapshotted into
// every report filed through it. Its state is guarded by the owning reporter.
type Session struct {
	reporter    *ErrorReporter
	id          string
	breadcrumbs *ringBuffer[entity.Breadcrumb]
	currentURL  string
	userAgent   string
	viewport    entity.Viewport
}

var _ inbound.InstrumentationPort = (*Session)(nil)

// ErrorReporter stores error reports and forwards high and critical ones to
// external sinks. Its embedded Session belongs to the process itself; browser
// clients get their own through ClientSession so their state never mixes.
type ErrorReporter struct {
	*Session

	config     ErrorReporterConfig
	classifier *Classifier
	clock      clockwork.Clock
	sinks      []outbound.ReportSink
	send       SendFunc
	metrics    RetryMetrics
	logger     logging.ApplicationLogger

	mu      sync.Mutex
	reports *ringBuffer[*entity.ErrorReport]
	clients *lru.Cache

	forwardMu sync.Mutex
	inflight  int
	drained   chan struct{}
}

var _ inbound.InstrumentationPort = (*ErrorReporter)(nil)

// NewErrorReporter creates a reporter with a fresh process session.
func NewErrorReporter(config ErrorReporterConfig, deps ErrorReporterDeps) (*ErrorReporter, error) {
	if deps.Classifier == nil {
		return nil, errors.New("error reporter: classifier cannot be nil")
	}
	if config.MaxBreadcrumbs <= 0 {
		config.MaxBreadcrumbs = DefaultMaxBreadcrumbs
	}
	if config.MaxReports <= 0 {
		config.MaxReports = DefaultMaxReports
	}
	if config.MaxSessions <= 0 {
		config.MaxSessions = DefaultMaxSessions
	}
	if config.ForwardTimeout <= 0 {
		config.ForwardTimeout = DefaultForwardTimeout
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewNoopRetryMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = slogger.Logger()
	}
	if deps.Send == nil {
		deps.Send = func(ctx context.Context, sink outbound.ReportSink, payload entity.ReportPayload) error {
			return sink.Send(ctx, payload)
		}
	}

	r := &ErrorReporter{
		config:     config,
		classifier: deps.Classifier,
		clock:      deps.Clock,
		sinks:      deps.Sinks,
		send:       deps.Send,
		metrics:    deps.Metrics,
		logger:     deps.Logger.WithComponent("error-reporter"),
		reports:    newRingBuffer[*entity.ErrorReport](config.MaxReports),
		clients:    lru.New(config.MaxSessions),
	}
	r.Session = r.newSession(uuid.New().String())
	return r, nil
}

func (r *ErrorReporter) newSession(id string) *Session {
	return &Session{
		reporter:    r,
		id:          id,
		breadcrumbs: newRingBuffer[entity.Breadcrumb](r.config.MaxBreadcrumbs),
	}
}

// ClientSession returns the session keyed by id, creating it when unknown. An
// empty id yields a fresh session that is not retained. Once MaxSessions are held
// the least recently used one is dropped.
func (r *ErrorReporter) ClientSession(id string) *Session {
	if id == "" {
		return r.newSession(uuid.New().String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.clients.Get(id); ok {
		return cached.(*Session)
	}
	session := r.newSession(id)
	r.clients.Add(id, session)
	return session
}

// ClientSessions returns how many client sessions are retained.
func (r *ErrorReporter) ClientSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients.Len()
}

// SessionID identifies the session in every report filed through it.
func (s *Session) SessionID() string {
	return s.id
}

// SetClientInfo records the user agent and viewport attached to later reports.
func (s *Session) SetClientInfo(userAgent string, viewport entity.Viewport) {
	s.reporter.mu.Lock()
	defer s.reporter.mu.Unlock()
	s.userAgent = userAgent
	s.viewport = viewport
}

// mergeClientInfo updates only the details that are set.
func (s *Session) mergeClientInfo(userAgent string, viewport *entity.Viewport) {
	s.reporter.mu.Lock()
	defer s.reporter.mu.Unlock()
	if userAgent != "" {
		s.userAgent = userAgent
	}
	if viewport != nil {
		s.viewport = *viewport
	}
}

// SetCurrentURL records the URL attached to later reports without adding a breadcrumb.
func (s *Session) SetCurrentURL(url string) {
	s.reporter.mu.Lock()
	defer s.reporter.mu.Unlock()
	s.currentURL = url
}

// AddBreadcrumb appends to the breadcrumb ring buffer. Invalid breadcrumbs are dropped.
func (s *Session) AddBreadcrumb(
	ctx context.Context,
	breadcrumbType valueobject.BreadcrumbType,
	message string,
	data map[string]any,
) {
	r := s.reporter
	crumb, err := entity.NewBreadcrumb(breadcrumbType, message, data, r.clock.Now())
	if err != nil {
		r.logger.Debug(ctx, "Dropping invalid breadcrumb", logging.Fields{"error": err.Error()})
		return
	}

	r.mu.Lock()
	s.breadcrumbs.push(crumb)
	r.mu.Unlock()
}

// Breadcrumbs returns the buffered breadcrumbs, oldest first.
func (s *Session) Breadcrumbs() []entity.Breadcrumb {
	s.reporter.mu.Lock()
	defer s.reporter.mu.Unlock()
	return s.breadcrumbs.snapshot()
}

// ClearBreadcrumbs empties the breadcrumb buffer.
func (s *Session) ClearBreadcrumbs() {
	s.reporter.mu.Lock()
	defer s.reporter.mu.Unlock()
	s.breadcrumbs.clear()
}

// ReportError classifies err, stores a report snapshotting the session state and
// forwards it when its severity is high or critical. It returns the report id, or
// "" when err is nil.
func (s *Session) ReportError(
	ctx context.Context,
	err any,
	errCtx valueobject.ErrorContext,
	opts ReportOptions,
) string {
	r := s.reporter
	classified := r.classifier.Classify(err)
	if classified == nil {
		return ""
	}
	if errCtx == "" {
		errCtx = classified.Context()
	}
	if classified.Context() != errCtx {
		classified = classified.WithContext(errCtx)
	}

	if userCtx, ok := logging.UserContextFromContext(ctx); ok {
		if opts.UserID == "" {
			opts.UserID = userCtx.UserID
		}
		if opts.UserRole == "" {
			opts.UserRole = userCtx.UserRole
		}
	}

	report := &entity.ErrorReport{
		ID:        uuid.New().String(),
		Error:     classified,
		Timestamp: r.clock.Now().UTC(),
		UserID:    opts.UserID,
		UserRole:  opts.UserRole,
		SessionID: s.id,
		Context:   errCtx,
		Metadata:  copyMetadata(opts.Metadata),
	}

	r.mu.Lock()
	report.URL = firstNonEmpty(opts.URL, s.currentURL)
	report.UserAgent = firstNonEmpty(opts.UserAgent, s.userAgent)
	report.Viewport = s.viewport
	if opts.Viewport != nil {
		report.Viewport = *opts.Viewport
	}
	report.Breadcrumbs = s.breadcrumbs.snapshot()
	r.reports.push(report)
	r.mu.Unlock()

	fields := logging.Fields{
		"report_id":  report.ID,
		"session_id": s.id,
		"code":       classified.Code(),
		"severity":   classified.Severity().String(),
		"context":    errCtx.String(),
	}
	if report.ShouldForward() {
		r.logger.ErrorWithError(ctx, classified, "Error reported", fields)
		r.forward(ctx, report)
	} else {
		r.logger.Info(ctx, "Error reported", fields)
	}

	return report.ID
}

// forward delivers the payload to every sink in the background. Sink failures are
// logged at debug level and otherwise ignored.
func (r *ErrorReporter) forward(ctx context.Context, report *entity.ErrorReport) {
	if len(r.sinks) == 0 {
		return
	}

	payload := report.Payload()
	forwardCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.ForwardTimeout)

	r.beginForward()
	go func() {
		defer r.endForward()
		defer cancel()

		var g errgroup.Group
		for _, sink := range r.sinks {
			g.Go(func() error {
				err := r.send(forwardCtx, sink, payload)
				r.metrics.RecordReportForward(forwardCtx, sink.Name(), err == nil)
				if err != nil {
					r.logger.Debug(forwardCtx, "Report sink failed", logging.Fields{
						"sink":      sink.Name(),
						"report_id": payload.ID,
						"error":     err.Error(),
					})
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (r *ErrorReporter) beginForward() {
	r.forwardMu.Lock()
	defer r.forwardMu.Unlock()
	if r.inflight == 0 {
		r.drained = make(chan struct{})
	}
	r.inflight++
}

func (r *ErrorReporter) endForward() {
	r.forwardMu.Lock()
	defer r.forwardMu.Unlock()
	r.inflight--
	if r.inflight == 0 {
		close(r.drained)
		r.drained = nil
	}
}

// Flush waits until no forward is in flight or ctx ends. Forwards started while
// flushing are waited for too.
func (r *ErrorReporter) Flush(ctx context.Context) error {
	for {
		r.forwardMu.Lock()
		drained := r.drained
		r.forwardMu.Unlock()
		if drained == nil {
			return nil
		}

		select {
		case <-drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Reports returns the buffered reports of every session, oldest first.
func (r *ErrorReporter) Reports() []*entity.ErrorReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports.snapshot()
}

// ClearReports empties the report buffer.
func (r *ErrorReporter) ClearReports() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports.clear()
}

// OnNavigate records a navigation and makes url the current URL.
func (s *Session) OnNavigate(ctx context.Context, url string) {
	s.reporter.mu.Lock()
	from := s.currentURL
	s.currentURL = url
	s.reporter.mu.Unlock()

	data := map[string]any{"to": url}
	if from != "" {
		data["from"] = from
	}
	s.AddBreadcrumb(ctx, valueobject.BreadcrumbNavigation, "Navigated to "+url, data)
}

// OnUserAction records a click or form submission.
func (s *Session) OnUserAction(ctx context.Context, action inbound.UserAction) {
	message := fmt.Sprintf("%s on %s", action.Kind, action.Target)
	if action.Kind == inbound.UserActionSubmit {
		message = "Submitted " + action.Target
	}

	data := map[string]any{"target": action.Target}
	if action.Text != "" {
		data["text"] = action.Text
	}
	s.AddBreadcrumb(ctx, valueobject.BreadcrumbUser, message, data)
}

// OnAPICall records an API call, as an error breadcrumb when it failed.
func (s *Session) OnAPICall(ctx context.Context, call inbound.APICall) {
	data := map[string]any{
		"method":      call.Method,
		"url":         call.URL,
		"status":      call.Status,
		"duration_ms": call.Duration.Milliseconds(),
	}

	breadcrumbType := valueobject.BreadcrumbAPI
	message := fmt.Sprintf("%s %s", call.Method, call.URL)
	if call.Failed() {
		breadcrumbType = valueobject.BreadcrumbError
		if call.Err != nil {
			data["error"] = call.Err.Error()
			message += " failed: " + call.Err.Error()
		} else {
			message += fmt.Sprintf(" failed with status %d", call.Status)
		}
	}
	s.AddBreadcrumb(ctx, breadcrumbType, message, data)
}

// OnUnhandled files a critical report for a failure nothing else handled.
func (s *Session) OnUnhandled(ctx context.Context, recovered any) {
	classified := s.reporter.classifier.ClassifyPanic(recovered).WithSeverity(valueobject.SeverityCritical)
	s.ReportError(ctx, classified, valueobject.ContextPublic, ReportOptions{
		Metadata: map[string]any{"source": "unhandled"},
	})
}

func copyMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
