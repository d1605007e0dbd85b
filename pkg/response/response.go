package response

// ErrorBody is the single error shape every endpoint returns: one message
// field describing what went wrong.
type ErrorBody struct {
	Message string `json:"message"`
}

// ListBody is the envelope every list endpoint returns.
type ListBody struct {
	Count   int64       `json:"count"`
	Results interface{} `json:"results"`
}

// Error wraps an error message for the client.
func Error(message string) ErrorBody {
	return ErrorBody{Message: message}
}

// List wraps paginated results with their total count.
func List(count int64, results interface{}) ListBody {
	return ListBody{Count: count, Results: results}
}
