// Package types holds the JSON envelopes every endpoint answers with.
package types

// Envelope wraps a successful payload as {"data": ...}.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// PageMeta accompanies cursor-paginated list payloads. HasMore mirrors a
// non-empty NextCursor for clients that prefer a flag.
type PageMeta struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
	Limit      int    `json:"limit"`
}

// PageEnvelope is the body of every list endpoint. Data is never null.
type PageEnvelope[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

// NewPageEnvelope fills the meta block from a cursor page.
func NewPageEnvelope[T any](items []T, nextCursor string, limit int) PageEnvelope[T] {
	if items == nil {
		items = []T{}
	}
	return PageEnvelope[T]{
		Data: items,
		Meta: PageMeta{NextCursor: nextCursor, HasMore: nextCursor != "", Limit: limit},
	}
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
