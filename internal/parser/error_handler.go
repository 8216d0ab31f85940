package parser

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/pcap-topology-go/lib/helper"
)

const (
	defaultErrorThreshold = 100
	recentErrorCapacity   = 20
)

// RecordError describes a packet that could not be turned into a full record.
type RecordError struct {
	Source      string    // capture or record file being read
	Packet      int       // 1-based position in the source
	Timestamp   time.Time // capture time, zero if unknown
	Err         error
	Recoverable bool // true when a partial record was still produced
}

// Error implements the error interface
func (e *RecordError) Error() string {
	return fmt.Sprintf("record error in %s at packet %d: %v", e.Source, e.Packet, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *RecordError) Unwrap() error {
	return e.Err
}

// ErrorHandler decides what happens when a packet cannot be decoded.
type ErrorHandler interface {
	// HandleRecordError records err and returns non-nil when reading must stop.
	HandleRecordError(err *RecordError) error
	// SetErrorThreshold sets how many unrecoverable errors are tolerated
	SetErrorThreshold(threshold int)
	GetErrorCount() int
	IsThresholdExceeded() bool
	// RecentErrors returns the latest errors, oldest first
	RecentErrors() []*RecordError
	Reset()
}

// NoOpErrorHandler is an error handler that does nothing
type NoOpErrorHandler struct{}

func NewNoOpErrorHandler() ErrorHandler {
	return &NoOpErrorHandler{}
}

func (h *NoOpErrorHandler) HandleRecordError(err *RecordError) error {
	return nil
}

func (h *NoOpErrorHandler) SetErrorThreshold(threshold int) {}

func (h *NoOpErrorHandler) GetErrorCount() int {
	return 0
}

func (h *NoOpErrorHandler) IsThresholdExceeded() bool {
	return false
}

func (h *NoOpErrorHandler) RecentErrors() []*RecordError {
	return nil
}

func (h *NoOpErrorHandler) Reset() {}

// DefaultErrorHandler logs every error and stops reading once the number of
// unrecoverable errors reaches the threshold.
type DefaultErrorHandler struct {
	mu                sync.RWMutex
	errorCount        int
	fatalCount        int
	errorThreshold    int
	thresholdExceeded bool
	recent            *helper.RingBuffer[*RecordError]
}

func NewDefaultErrorHandler() *DefaultErrorHandler {
	return &DefaultErrorHandler{
		errorThreshold: defaultErrorThreshold,
		recent:         helper.NewRingBuffer[*RecordError](recentErrorCapacity),
	}
}

func (h *DefaultErrorHandler) HandleRecordError(err *RecordError) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.errorCount++
	h.recent.Add(err)

	if err.Recoverable {
		log.Debug().
			Str("source", err.Source).
			Int("packet", err.Packet).
			Err(err.Err).
			Msg("Partial record")
		return nil
	}

	h.fatalCount++
	log.Warn().
		Str("source", err.Source).
		Int("packet", err.Packet).
		Err(err.Err).
		Msg("Dropping undecodable packet")

	if h.errorThreshold > 0 && h.fatalCount >= h.errorThreshold {
		h.thresholdExceeded = true
		return fmt.Errorf("error threshold exceeded (%d errors), stopping processing", h.errorThreshold)
	}
	return nil
}

// SetErrorThreshold sets the limit; zero or less disables it.
func (h *DefaultErrorHandler) SetErrorThreshold(threshold int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorThreshold = threshold
}

func (h *DefaultErrorHandler) GetErrorCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.errorCount
}

func (h *DefaultErrorHandler) IsThresholdExceeded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.thresholdExceeded
}

func (h *DefaultErrorHandler) RecentErrors() []*RecordError {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.recent.GetAllFIFO()
}

func (h *DefaultErrorHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorCount = 0
	h.fatalCount = 0
	h.thresholdExceeded = false
	h.recent = helper.NewRingBuffer[*RecordError](recentErrorCapacity)
}
