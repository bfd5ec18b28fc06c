package service

import (
	"context"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/domain/valueobject"
	"edurecovery/internal/port/outbound"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"runtime"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonboulle/clockwork"
)

// defaultUserMessages are the es-CL messages used when no translator knows the key.
var defaultUserMessages = map[string]string{
	entity.CodeUnauthorized:       "Tu sesión ha expirado. Inicia sesión nuevamente.",
	entity.CodeForbidden:          "No tienes permisos para realizar esta acción.",
	entity.CodeValidationFailed:   "Algunos datos no son válidos. Revisa el formulario.",
	entity.CodeInvalidInput:       "Los datos ingresados no son válidos.",
	entity.CodeConnectionFailed:   "No pudimos conectar con el servidor. Revisa tu conexión.",
	entity.CodeNetworkTimeout:     "La solicitud tardó demasiado. Intenta nuevamente.",
	entity.CodeRequestCancelled:   "La solicitud fue cancelada.",
	entity.CodeServiceUnavailable: "El servicio no está disponible en este momento.",
	entity.CodeServiceFatal:       "El servicio presentó un error grave.",
	entity.CodeCircuitOpen:        "El servicio está temporalmente suspendido. Intenta más tarde.",
	entity.CodeQueryFailed:        "Ocurrió un error al acceder a los datos.",
	entity.CodeFileAccessFailed:   "No pudimos acceder al archivo.",
	entity.CodeFileNotFound:       "El archivo solicitado no existe.",
	entity.CodeRuntimeError:       "Ocurrió un error inesperado en la aplicación.",
	entity.CodeUnknown:            "Ocurrió un error inesperado. Intenta nuevamente.",
}

// defaultCodes is the code each category constructor uses unless overridden.
var defaultCodes = map[valueobject.ErrorCategory]string{
	valueobject.CategoryAuthentication: entity.CodeUnauthorized,
	valueobject.CategoryAuthorization:  entity.CodeForbidden,
	valueobject.CategoryValidation:     entity.CodeValidationFailed,
	valueobject.CategoryNetwork:        entity.CodeConnectionFailed,
	valueobject.CategoryService:        entity.CodeServiceUnavailable,
	valueobject.CategoryDatabase:       entity.CodeQueryFailed,
	valueobject.CategoryFileSystem:     entity.CodeFileAccessFailed,
	valueobject.CategoryUI:             entity.CodeRuntimeError,
	valueobject.CategoryUnknown:        entity.CodeUnknown,
}

type statusCoder interface {
	StatusCode() int
}

type errorConfig struct {
	code       string
	statusCode int
	cause      error
	errCtx     valueobject.ErrorContext
	severity   valueobject.ErrorSeverity
	retryable  *bool
}

// ErrorOption adjusts an error built by one of the Classifier constructors.
type ErrorOption func(*errorConfig)

// WithCode overrides the default code. Codes outside the category's prefix are ignored.
func WithCode(code string) ErrorOption {
	return func(c *errorConfig) { c.code = code }
}

// WithStatusCode attaches the observed HTTP status.
func WithStatusCode(status int) ErrorOption {
	return func(c *errorConfig) { c.statusCode = status }
}

// WithCause attaches the original error.
func WithCause(err error) ErrorOption {
	return func(c *errorConfig) { c.cause = err }
}

// WithErrorContext tags the error with where it surfaced.
func WithErrorContext(errCtx valueobject.ErrorContext) ErrorOption {
	return func(c *errorConfig) { c.errCtx = errCtx }
}

// WithSeverity overrides the category severity.
func WithSeverity(severity valueobject.ErrorSeverity) ErrorOption {
	return func(c *errorConfig) { c.severity = severity }
}

// WithRetryable overrides the category retryability.
func WithRetryable(retryable bool) ErrorOption {
	return func(c *errorConfig) { c.retryable = &retryable }
}

// Classifier maps raw failures onto ClassifiedErrors and builds category errors.
// It holds no mutable state.
type Classifier struct {
	translator outbound.MessageTranslator
	clock      clockwork.Clock
}

// NewClassifier creates a classifier. A nil translator uses the built-in es-CL messages.
func NewClassifier(translator outbound.MessageTranslator, clock clockwork.Clock) *Classifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Classifier{translator: translator, clock: clock}
}

// WithTranslator returns a classifier rendering user messages through translator.
func (c *Classifier) WithTranslator(translator outbound.MessageTranslator) *Classifier {
	return &Classifier{translator: translator, clock: c.clock}
}

// Classify converts any failure value into a ClassifiedError. It returns nil for nil
// input and returns ClassifiedErrors unchanged.
func (c *Classifier) Classify(raw any) *entity.ClassifiedError {
	switch v := raw.(type) {
	case nil:
		return nil
	case *entity.ClassifiedError:
		return v
	case error:
		return c.classifyError(v)
	case string:
		return c.classifyMessage(v, nil)
	default:
		return c.classifyMessage(fmt.Sprint(v), nil)
	}
}

// ClassifyPanic classifies a recovered panic value. Anything that does not map to a
// more specific category becomes a UI runtime error.
func (c *Classifier) ClassifyPanic(recovered any, opts ...ErrorOption) *entity.ClassifiedError {
	if err, ok := recovered.(error); ok {
		if classified := c.Classify(err); classified.Category() != valueobject.CategoryUnknown {
			return classified
		}
		return c.NewUIError("panic: "+err.Error(), append([]ErrorOption{WithCause(err)}, opts...)...)
	}
	return c.NewUIError(fmt.Sprintf("panic: %v", recovered), opts...)
}

func (c *Classifier) classifyError(err error) *entity.ClassifiedError {
	if classified, ok := entity.AsClassified(err); ok {
		return classified
	}

	var withStatus statusCoder
	if errors.As(err, &withStatus) {
		if classified := c.fromStatus(withStatus.StatusCode(), err); classified != nil {
			return classified
		}
	}

	if classified := c.fromType(err); classified != nil {
		return classified
	}

	return c.classifyMessage(err.Error(), err)
}

func (c *Classifier) fromStatus(status int, err error) *entity.ClassifiedError {
	technical := err.Error()
	switch {
	case status == 401:
		return c.NewAuthenticationError(technical, WithStatusCode(status), WithCause(err))
	case status == 403:
		return c.NewAuthorizationError(technical, WithStatusCode(status), WithCause(err))
	case status >= 400 && status < 500:
		return c.NewValidationError(technical, WithStatusCode(status), WithCause(err))
	case status >= 500:
		return c.NewServiceError(technical, false, WithStatusCode(status), WithCause(err))
	default:
		return nil
	}
}

func (c *Classifier) fromType(err error) *entity.ClassifiedError {
	technical := err.Error()

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return c.NewDatabaseError(
			fmt.Sprintf("%s (SQLSTATE %s)", pgErr.Message, pgErr.Code),
			WithCause(err),
		)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return c.NewDatabaseError(technical, WithCause(err))
	}

	switch {
	case errors.Is(err, context.Canceled):
		return c.NewNetworkError(technical, 0,
			WithCode(entity.CodeRequestCancelled), WithCause(err), WithRetryable(false))
	case errors.Is(err, context.DeadlineExceeded):
		return c.NewNetworkError(technical, 0, WithCode(entity.CodeNetworkTimeout), WithCause(err))
	case errors.Is(err, fs.ErrNotExist):
		return c.NewFileSystemError(technical, WithCode(entity.CodeFileNotFound), WithCause(err))
	case errors.Is(err, fs.ErrPermission):
		return c.NewFileSystemError(technical, WithCause(err))
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return c.NewFileSystemError(technical, WithCause(err))
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return c.NewNetworkError(technical, 0, WithCode(entity.CodeNetworkTimeout), WithCause(err))
		}
		return c.NewNetworkError(technical, 0, WithCause(err))
	}

	var runtimeErr runtime.Error
	if errors.As(err, &runtimeErr) {
		return c.NewUIError(technical, WithCause(err))
	}

	return nil
}

func (c *Classifier) classifyMessage(message string, cause error) *entity.ClassifiedError {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "fetch"), strings.Contains(lower, "network"):
		return c.NewNetworkError(message, 0, WithCause(cause))
	case strings.Contains(lower, "validation"), strings.Contains(lower, "invalid"):
		return c.NewValidationError(message, WithCode(entity.CodeInvalidInput), WithCause(cause))
	default:
		return c.NewUnknownError(message, WithCause(cause))
	}
}

// NewAuthenticationError builds a high severity, non-retryable error.
func (c *Classifier) NewAuthenticationError(technical string, opts ...ErrorOption) *entity.ClassifiedError {
	return c.build(valueobject.CategoryAuthentication, technical, opts)
}

// NewAuthorizationError builds a medium severity, non-retryable error.
func (c *Classifier) NewAuthorizationError(technical string, opts ...ErrorOption) *entity.ClassifiedError {
	return c.build(valueobject.CategoryAuthorization, technical, opts)
}

// NewValidationError builds a low severity, retryable error.
func (c *Classifier) NewValidationError(technical string, opts ...ErrorOption) *entity.ClassifiedError {
	return c.build(valueobject.CategoryValidation, technical, opts)
}

// NewNetworkError builds a retryable error whose severity escalates to high when no
// status was observed or the server answered 5xx.
func (c *Classifier) NewNetworkError(technical string, status int, opts ...ErrorOption) *entity.ClassifiedError {
	base := []ErrorOption{WithStatusCode(status)}
	if status == 0 || status >= 500 {
		base = append(base, WithSeverity(valueobject.SeverityHigh))
	}
	return c.build(valueobject.CategoryNetwork, technical, append(base, opts...))
}

// NewServiceError builds a retryable medium severity error, or a high severity
// non-retryable one when fatal.
func (c *Classifier) NewServiceError(technical string, fatal bool, opts ...ErrorOption) *entity.ClassifiedError {
	if fatal {
		base := []ErrorOption{
			WithCode(entity.CodeServiceFatal),
			WithSeverity(valueobject.SeverityHigh),
			WithRetryable(false),
		}
		opts = append(base, opts...)
	}
	return c.build(valueobject.CategoryService, technical, opts)
}

// NewCircuitOpenError builds the non-retryable rejection returned by an open breaker.
func (c *Classifier) NewCircuitOpenError(service string) *entity.ClassifiedError {
	return c.build(valueobject.CategoryService,
		fmt.Sprintf("circuit breaker %q is open", service),
		[]ErrorOption{WithCode(entity.CodeCircuitOpen), WithRetryable(false)},
	)
}

// NewDatabaseError builds a critical, non-retryable error.
func (c *Classifier) NewDatabaseError(technical string, opts ...ErrorOption) *entity.ClassifiedError {
	return c.build(valueobject.CategoryDatabase, technical, opts)
}

// NewFileSystemError builds a medium severity, retryable error.
func (c *Classifier) NewFileSystemError(technical string, opts ...ErrorOption) *entity.ClassifiedError {
	return c.build(valueobject.CategoryFileSystem, technical, opts)
}

// NewUIError builds a low severity, retryable error.
func (c *Classifier) NewUIError(technical string, opts ...ErrorOption) *entity.ClassifiedError {
	return c.build(valueobject.CategoryUI, technical, opts)
}

// NewUnknownError builds a medium severity, retryable error.
func (c *Classifier) NewUnknownError(technical string, opts ...ErrorOption) *entity.ClassifiedError {
	return c.build(valueobject.CategoryUnknown, technical, opts)
}

// fromCategory routes a reported code through its category constructor so the
// category's severity rules apply as they do server side.
func (c *Classifier) fromCategory(
	category valueobject.ErrorCategory,
	code, message string,
	status int,
) *entity.ClassifiedError {
	opts := []ErrorOption{WithCode(code), WithStatusCode(status)}
	switch category {
	case valueobject.CategoryAuthentication:
		return c.NewAuthenticationError(message, opts...)
	case valueobject.CategoryAuthorization:
		return c.NewAuthorizationError(message, opts...)
	case valueobject.CategoryValidation:
		return c.NewValidationError(message, opts...)
	case valueobject.CategoryNetwork:
		return c.NewNetworkError(message, status, WithCode(code))
	case valueobject.CategoryService:
		if code == entity.CodeCircuitOpen {
			opts = append(opts, WithRetryable(false))
		}
		return c.NewServiceError(message, code == entity.CodeServiceFatal, opts...)
	case valueobject.CategoryDatabase:
		return c.NewDatabaseError(message, opts...)
	case valueobject.CategoryFileSystem:
		return c.NewFileSystemError(message, opts...)
	case valueobject.CategoryUI:
		return c.NewUIError(message, opts...)
	default:
		return c.NewUnknownError(message, opts...)
	}
}

func (c *Classifier) build(
	category valueobject.ErrorCategory,
	technical string,
	opts []ErrorOption,
) *entity.ClassifiedError {
	cfg := errorConfig{
		code:     defaultCodes[category],
		errCtx:   valueobject.ContextPublic,
		severity: category.DefaultSeverity(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !strings.HasPrefix(cfg.code, category.CodePrefix()) {
		cfg.code = defaultCodes[category]
	}
	if !cfg.severity.IsValid() {
		cfg.severity = category.DefaultSeverity()
	}
	retryable := category.DefaultRetryable()
	if cfg.retryable != nil {
		retryable = *cfg.retryable
	}
	if cfg.statusCode < 0 {
		cfg.statusCode = 0
	}

	params := entity.ClassifiedErrorParams{
		Code:             cfg.code,
		Category:         category,
		Severity:         cfg.severity,
		Retryable:        retryable,
		UserMessage:      c.userMessage(cfg.code),
		TechnicalMessage: technical,
		Timestamp:        c.clock.Now(),
		StatusCode:       cfg.statusCode,
		Context:          cfg.errCtx,
		Cause:            cfg.cause,
	}

	classified, err := entity.NewClassifiedError(params)
	if err != nil {
		params.Code = entity.CodeUnknown
		params.Category = valueobject.CategoryUnknown
		params.Context = valueobject.ContextPublic
		params.UserMessage = defaultUserMessages[entity.CodeUnknown]
		params.TechnicalMessage = technical + " (" + err.Error() + ")"
		classified, _ = entity.NewClassifiedError(params)
	}
	return classified
}

func (c *Classifier) userMessage(code string) string {
	fallback, ok := defaultUserMessages[code]
	if !ok {
		fallback = defaultUserMessages[entity.CodeUnknown]
	}
	if c.translator == nil {
		return fallback
	}
	if msg := c.translator.Translate(entity.MessageKey(code), fallback); strings.TrimSpace(msg) != "" {
		return msg
	}
	return fallback
}

// FormatForContext renders err for display. Public contexts only ever see the user
// message; auth and admin contexts also get the code and technical detail.
func (c *Classifier) FormatForContext(err *entity.ClassifiedError, errCtx valueobject.ErrorContext) string {
	if err == nil {
		return ""
	}
	message := err.UserMessage()
	if c.translator != nil {
		message = c.translator.Translate(entity.MessageKey(err.Code()), message)
	}
	if !errCtx.ShowsTechnicalDetails() {
		return message
	}
	if err.TechnicalMessage() == "" {
		return fmt.Sprintf("%s (%s)", message, err.Code())
	}
	return fmt.Sprintf("%s (%s: %s)", message, err.Code(), err.TechnicalMessage())
}

// ClassifyReported rebuilds an error described by a remote client. A recognised
// code decides the category, otherwise the status and then the message do.
func (c *Classifier) ClassifyReported(code, message string, status int) *entity.ClassifiedError {
	if message == "" {
		message = code
	}
	if category, ok := valueobject.CategoryForCode(code); ok && code != "" {
		return c.fromCategory(category, code, message, status)
	}
	if classified := c.fromStatus(status, errors.New(message)); classified != nil {
		return classified
	}
	return c.classifyMessage(message, nil)
}
