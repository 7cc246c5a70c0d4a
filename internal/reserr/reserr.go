// Package reserr defines the error kinds in the proxy's error-handling
// design: which failures degrade silently, which propagate as 5xx, and
// which are handled in-band as synthetic responses.
package reserr

import "fmt"

// BadRequest marks malformed input: bad JSON, no messages, or a final
// message whose role isn't user.
type BadRequest struct {
	Reason string
}

func (e *BadRequest) Error() string { return "bad request: " + e.Reason }

// Oversize marks a last user message that exceeds the model's
// input-token limit. Handled in-band as a synthetic response, never
// surfaced as an HTTP error.
type Oversize struct {
	Measured int
	Limit    int
}

func (e *Oversize) Error() string {
	return fmt.Sprintf("message too large: %d tokens exceeds limit of %d", e.Measured, e.Limit)
}

// EmbeddingUnavailable marks a failed embedding call. Retrieval
// degrades to an empty similar set; the pipeline continues.
type EmbeddingUnavailable struct {
	Cause error
}

func (e *EmbeddingUnavailable) Error() string {
	if e.Cause == nil {
		return "embedding unavailable"
	}
	return "embedding unavailable: " + e.Cause.Error()
}

func (e *EmbeddingUnavailable) Unwrap() error { return e.Cause }

// StoreUnavailable marks a failed graph-store call. Callers decide
// whether to fail 5xx (inbound persist), degrade to empty (retrieval),
// or log-and-continue (outbound persist, synapse rebuild).
type StoreUnavailable struct {
	Op    string
	Cause error
}

func (e *StoreUnavailable) Error() string {
	if e.Cause == nil {
		return "store unavailable: " + e.Op
	}
	return fmt.Sprintf("store unavailable: %s: %v", e.Op, e.Cause)
}

func (e *StoreUnavailable) Unwrap() error { return e.Cause }

// UpstreamError marks a rejection (non-2xx status) or an undecodable
// response body from the upstream completion endpoint; transport
// failures are not wrapped in it. Forwarded to the client as 5xx with
// the status and body preserved verbatim.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status=%d body=%s", e.Status, e.Body)
}

func (e *UpstreamError) HTTPStatusCode() int { return e.Status }
