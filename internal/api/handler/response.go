package handler

// ErrorResponse is the canonical error envelope for all API errors.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// listResponse wraps a page of results. Data is never null.
type listResponse[T any] struct {
	Data []T `json:"data"`
}

func newList[T any](data []T) listResponse[T] {
	if data == nil {
		data = []T{}
	}
	return listResponse[T]{Data: data}
}
