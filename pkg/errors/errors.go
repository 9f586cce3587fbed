package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeGraph represents Neo4j graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeStore represents SQLite metadata store errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeTransaction represents distributed transaction errors
	ErrorTypeTransaction ErrorType = "transaction"
	// ErrorTypeExtraction represents LLM extraction errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeAnalysis represents graph analytics errors
	ErrorTypeAnalysis ErrorType = "analysis"
	// ErrorTypeSchema represents schema registry errors
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeDependency represents missing/unavailable service dependencies
	ErrorTypeDependency ErrorType = "dependency"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// ErrEntityNotFound is returned when an entity is not found in the graph
type ErrEntityNotFound struct {
	*BaseError
	EntityID string
}

func NewEntityNotFound(entityID string) *ErrEntityNotFound {
	return &ErrEntityNotFound{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("entity not found: %s", entityID), nil),
		EntityID:  entityID,
	}
}

// ErrHyperedgeNotFound is returned when a hyperedge id is not in the store
type ErrHyperedgeNotFound struct {
	*BaseError
	EdgeID string
}

func NewHyperedgeNotFound(edgeID string) *ErrHyperedgeNotFound {
	return &ErrHyperedgeNotFound{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("hyperedge not found: %s", edgeID), nil),
		EdgeID:    edgeID,
	}
}

// Store Errors

// ErrStoreQueryFailed is returned when a metadata store statement fails
type ErrStoreQueryFailed struct {
	*BaseError
	Statement string
}

func NewStoreQueryFailed(statement string, err error) *ErrStoreQueryFailed {
	return &ErrStoreQueryFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("statement failed: %s", statement), err),
		Statement: statement,
	}
}

// ErrDocumentNotFound is returned when a document is not found in the store
type ErrDocumentNotFound struct {
	*BaseError
	DocumentID string
}

func NewDocumentNotFound(documentID string) *ErrDocumentNotFound {
	return &ErrDocumentNotFound{
		BaseError:  NewBaseError(ErrorTypeStore, fmt.Sprintf("document not found: %s", documentID), nil),
		DocumentID: documentID,
	}
}

// Transaction Errors

// ErrTxnAborted is returned when a distributed transaction is rolled back
type ErrTxnAborted struct {
	*BaseError
	TxnID string
	State string
}

func NewTxnAborted(txnID, state string, err error) *ErrTxnAborted {
	return &ErrTxnAborted{
		BaseError: NewBaseError(ErrorTypeTransaction, fmt.Sprintf("transaction aborted: %s (state: %s)", txnID, state), err),
		TxnID:     txnID,
		State:     state,
	}
}

// ErrTxnPartialCommit is returned when one branch committed and the other failed.
// This is the one failure mode that cannot be rolled back automatically; the
// transaction is journaled for manual recovery.
type ErrTxnPartialCommit struct {
	*BaseError
	TxnID     string
	Committed []string
	Failed    []string
}

func NewTxnPartialCommit(txnID string, committed, failed []string, err error) *ErrTxnPartialCommit {
	return &ErrTxnPartialCommit{
		BaseError: NewBaseError(ErrorTypeTransaction,
			fmt.Sprintf("partial commit: %s (committed: %s, failed: %s)",
				txnID, strings.Join(committed, ","), strings.Join(failed, ",")), err),
		TxnID:     txnID,
		Committed: committed,
		Failed:    failed,
	}
}

// ErrTxnNotFound is returned when a transaction id has no journal entries
type ErrTxnNotFound struct {
	*BaseError
	TxnID string
}

func NewTxnNotFound(txnID string) *ErrTxnNotFound {
	return &ErrTxnNotFound{
		BaseError: NewBaseError(ErrorTypeTransaction, fmt.Sprintf("transaction not found: %s", txnID), nil),
		TxnID:     txnID,
	}
}

// ErrTxnPoolExhausted is returned when no transaction slot could be acquired in time
type ErrTxnPoolExhausted struct {
	*BaseError
	Resource string
	Timeout  time.Duration
}

func NewTxnPoolExhausted(resource string, timeout time.Duration, err error) *ErrTxnPoolExhausted {
	return &ErrTxnPoolExhausted{
		BaseError: NewBaseError(ErrorTypeTransaction,
			fmt.Sprintf("pool exhausted: %s (timeout: %v)", resource, timeout), err),
		Resource: resource,
		Timeout:  timeout,
	}
}

// ErrTxnTimeout is returned when a transaction phase exceeds its deadline
type ErrTxnTimeout struct {
	*BaseError
	TxnID   string
	Phase   string
	Timeout time.Duration
}

func NewTxnTimeout(txnID, phase string, timeout time.Duration) *ErrTxnTimeout {
	return &ErrTxnTimeout{
		BaseError: NewBaseError(ErrorTypeTransaction,
			fmt.Sprintf("transaction timed out: %s (phase: %s, timeout: %v)", txnID, phase, timeout), nil),
		TxnID:   txnID,
		Phase:   phase,
		Timeout: timeout,
	}
}

// Extraction Errors

// ErrExtractionFailed is returned when the LLM extraction request fails
type ErrExtractionFailed struct {
	*BaseError
	Model     string
	Attempts  int
	Retryable bool
}

func NewExtractionFailed(model string, attempts int, retryable bool, err error) *ErrExtractionFailed {
	return &ErrExtractionFailed{
		BaseError: NewBaseError(ErrorTypeExtraction, fmt.Sprintf("extraction failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
		Retryable: retryable,
	}
}

// ErrExtractionUnparseable is returned when the LLM response is not valid extraction JSON
type ErrExtractionUnparseable struct {
	*BaseError
	Snippet string
}

func NewExtractionUnparseable(snippet string, err error) *ErrExtractionUnparseable {
	if len(snippet) > 120 {
		snippet = snippet[:120]
	}
	return &ErrExtractionUnparseable{
		BaseError: NewBaseError(ErrorTypeExtraction, fmt.Sprintf("unparseable extraction response: %q", snippet), err),
		Snippet:   snippet,
	}
}

// Schema Errors

// ErrSchemaNotFound is returned when a schema name/version is not registered
type ErrSchemaNotFound struct {
	*BaseError
	Name    string
	Version int
}

func NewSchemaNotFound(name string, version int) *ErrSchemaNotFound {
	return &ErrSchemaNotFound{
		BaseError: NewBaseError(ErrorTypeSchema, fmt.Sprintf("schema not found: %s v%d", name, version), nil),
		Name:      name,
		Version:   version,
	}
}

// ErrSchemaVersionConflict is returned when a registration does not advance
// the schema's version
type ErrSchemaVersionConflict struct {
	*BaseError
	Name    string
	Version int
	Latest  int
}

func NewSchemaVersionConflict(name string, version, latest int) *ErrSchemaVersionConflict {
	return &ErrSchemaVersionConflict{
		BaseError: NewBaseError(ErrorTypeSchema,
			fmt.Sprintf("schema version conflict: %s v%d is not greater than registered v%d", name, version, latest), nil),
		Name:    name,
		Version: version,
		Latest:  latest,
	}
}

// ErrSchemaIncompatible is returned when a schema fails a compatibility check
type ErrSchemaIncompatible struct {
	*BaseError
	Name   string
	Issues []string
}

func NewSchemaIncompatible(name string, issues []string) *ErrSchemaIncompatible {
	return &ErrSchemaIncompatible{
		BaseError: NewBaseError(ErrorTypeSchema,
			fmt.Sprintf("schema incompatible: %s (%d issues)", name, len(issues)), nil),
		Name:   name,
		Issues: issues,
	}
}

// Dependency Errors

// ErrDependencyUnavailable consolidates every failed required service into a
// single fail-fast diagnostic raised at startup.
type ErrDependencyUnavailable struct {
	*BaseError
	Services []string
}

func NewDependencyUnavailable(services []string, err error) *ErrDependencyUnavailable {
	return &ErrDependencyUnavailable{
		BaseError: NewBaseError(ErrorTypeDependency,
			fmt.Sprintf("required dependencies unavailable: %s", strings.Join(services, ", ")), err),
		Services: services,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// ErrContextTimeout is returned when context times out
type ErrContextTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewContextTimeout(operation string, timeout time.Duration) *ErrContextTimeout {
	return &ErrContextTimeout{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context timeout: %s (timeout: %v)", operation, timeout), nil),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Helper functions

// typed is satisfied by BaseError and, through embedding, by every typed
// error in this package.
type typed interface {
	ErrType() ErrorType
}

// ErrType returns the error category
func (e *BaseError) ErrType() ErrorType {
	return e.Type
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}
	if te, ok := err.(typed); ok {
		return te.ErrType() == errType
	}
	// Check wrapped errors
	if wrapped, ok := err.(interface{ Unwrap() error }); ok {
		return IsErrorType(wrapped.Unwrap(), errType)
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	// Partial commits need manual recovery, never a blind retry
	if _, ok := err.(*ErrTxnPartialCommit); ok {
		return false
	}
	// Pool exhaustion clears once in-flight transactions drain
	if _, ok := err.(*ErrTxnPoolExhausted); ok {
		return true
	}
	// A rolled-back transaction left nothing durable behind
	if _, ok := err.(*ErrTxnAborted); ok {
		return true
	}
	// Extraction failures carry their own retry flag
	if extErr, ok := err.(*ErrExtractionFailed); ok {
		return extErr.Retryable
	}
	// Connection-level failures are retryable
	if _, ok := err.(*ErrGraphConnectionFailed); ok {
		return true
	}
	if IsErrorType(err, ErrorTypeStore) {
		return true
	}
	return false
}
