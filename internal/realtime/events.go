package realtime

// ServerEvent is one inbound JSON event from the realtime service. Only the
// fields aircheck consumes are modelled; everything else is ignored on
// decode.
type ServerEvent struct {
	Type       string         `json:"type"`
	ResponseID string         `json:"response_id,omitempty"`
	Delta      string         `json:"delta,omitempty"`
	Response   *eventResponse `json:"response,omitempty"`
	Error      *eventError    `json:"error,omitempty"`
}

// eventResponse is the nested response object carried by response.done.
type eventResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// eventError is the nested error object carried by error events.
type eventError struct {
	Message string `json:"message"`
}
