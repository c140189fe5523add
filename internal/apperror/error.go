// Package apperror defines the typed application error and the error handler
// that records recent failures for the status API.
package apperror

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeAPI       ErrorType = "api"
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeDiscord   ErrorType = "discord"
	ErrorTypeExtract   ErrorType = "extract"
	ErrorTypeHistory   ErrorType = "history"
	ErrorTypeLinks     ErrorType = "links"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeScheduler ErrorType = "scheduler"
	ErrorTypeInternal  ErrorType = "internal"
)

// Error codes
const (
	ErrAPIBadRequest = "API_001"
	ErrAPIRateLimit  = "API_002"

	ErrConfigLoad       = "CONFIG_001"
	ErrConfigValidation = "CONFIG_002"

	ErrDiscordConnection = "DISCORD_001"
	ErrDiscordRateLimit  = "DISCORD_002"

	ErrExtractInvalidURL = "EXTRACT_001"
	ErrExtractFetch      = "EXTRACT_002"
	ErrExtractStatus     = "EXTRACT_003"
	ErrExtractEmpty      = "EXTRACT_004"
	ErrExtractTimeout    = "EXTRACT_005"
	ErrExtractTooLarge   = "EXTRACT_006"

	ErrHistoryConnection = "HISTORY_001"
	ErrHistoryQuery      = "HISTORY_002"

	ErrLinksTemplates = "LINKS_001"
	ErrLinksSearch    = "LINKS_002"

	ErrModelLoad = "MODEL_001"

	ErrSchedulerTask = "SCHED_001"
)

// Error is the custom error type for the application
type Error struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	Inner     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("[%s-%s] %s: %v", e.Type, e.Code, e.Message, e.Inner)
	}
	return fmt.Sprintf("[%s-%s] %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches another *Error by code, so sentinel-style comparisons work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// New creates a new Error
func New(errType ErrorType, code string, message string, inner error) *Error {
	return &Error{
		Type:    errType,
		Code:    code,
		Message: message,
		Inner:   inner,
	}
}

func NewAPIError(code string, message string, inner error) *Error {
	return New(ErrorTypeAPI, code, message, inner)
}

func NewConfigError(code string, message string, inner error) *Error {
	return New(ErrorTypeConfig, code, message, inner)
}

func NewDiscordError(code string, message string, inner error) *Error {
	return New(ErrorTypeDiscord, code, message, inner)
}

func NewExtractError(code string, message string, inner error) *Error {
	return New(ErrorTypeExtract, code, message, inner)
}

func NewHistoryError(code string, message string, inner error) *Error {
	return New(ErrorTypeHistory, code, message, inner)
}

func NewLinksError(code string, message string, inner error) *Error {
	return New(ErrorTypeLinks, code, message, inner)
}

func NewSchedulerError(code string, message string, inner error) *Error {
	return New(ErrorTypeScheduler, code, message, inner)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient determines if an error is likely temporary
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case ErrAPIRateLimit,
		ErrDiscordRateLimit,
		ErrExtractTimeout,
		ErrExtractFetch,
		ErrHistoryConnection,
		ErrLinksSearch:
		return true
	}
	return false
}

// ErrorEvent represents a recorded error event
type ErrorEvent struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Component string    `json:"component"`
	Stack     string    `json:"stack,omitempty"`
	Time      time.Time `json:"time"`
}

// Handler records errors in a bounded buffer and forwards them to a log sink.
type Handler struct {
	mu     sync.Mutex
	events []*ErrorEvent
	size   int
	total  int64
	logf   func(format string, args ...interface{})
}

// NewHandler creates a new error handler keeping the last bufferSize events.
// logf may be nil.
func NewHandler(bufferSize int, logf func(format string, args ...interface{})) *Handler {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Handler{
		events: make([]*ErrorEvent, 0, bufferSize),
		size:   bufferSize,
		logf:   logf,
	}
}

// Handle processes and records an error
func (h *Handler) Handle(err error, component string) {
	if err == nil {
		return
	}

	event := &ErrorEvent{
		Time:      time.Now(),
		Component: component,
		Stack:     getStackTrace(),
	}

	var ae *Error
	if errors.As(err, &ae) {
		event.Type = ae.Type
		event.Code = ae.Code
		event.Message = ae.Error()
	} else {
		event.Type = ErrorTypeInternal
		event.Code = "INTERNAL_001"
		event.Message = err.Error()
	}

	h.mu.Lock()
	h.events = append(h.events, event)
	if len(h.events) > h.size {
		h.events = h.events[len(h.events)-h.size:]
	}
	h.total++
	h.mu.Unlock()

	if h.logf != nil {
		h.logf("%s: %v", component, err)
	}
}

// Recent returns up to count events, newest first.
func (h *Handler) Recent(count int) []*ErrorEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if count <= 0 || count > len(h.events) {
		count = len(h.events)
	}
	out := make([]*ErrorEvent, 0, count)
	for i := len(h.events) - 1; i >= 0 && len(out) < count; i-- {
		out = append(out, h.events[i])
	}
	return out
}

// Total returns how many errors were handled since start.
func (h *Handler) Total() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// getStackTrace returns the current stack trace
func getStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var trace []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			trace = append(trace, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return strings.Join(trace, "\n")
}
