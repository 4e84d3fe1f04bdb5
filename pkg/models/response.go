package models

import "encoding/json"

// Candidate is one output row: the row id plus whichever requested keys
// the plan bound for it, keyed by name.
type Candidate struct {
	ID     int64
	Values map[string]any
}

func (c Candidate) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Values)+1)
	for k, v := range c.Values {
		out[k] = v
	}
	out["id"] = c.ID
	return json.Marshal(out)
}

func (c *Candidate) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Values = make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "id" {
			continue
		}
		c.Values[k] = v
	}
	idVal, ok := raw["id"]
	if !ok {
		return nil
	}
	switch n := idVal.(type) {
	case float64:
		c.ID = int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return err
		}
		c.ID = i
	}
	return nil
}

// ErrorInfo is the failure branch of Response: one structured
// error naming the kind of failure, with no partial candidates attached.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Response is the wire response of one execution: either
// Candidates is populated (success) or Error is (failure), never both.
type Response struct {
	RequestID  string      `json:"request_id"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Error      *ErrorInfo  `json:"error,omitempty"`
}

// NewSuccessResponse builds a Response carrying candidates.
func NewSuccessResponse(requestID string, candidates []Candidate) *Response {
	return &Response{RequestID: requestID, Candidates: candidates}
}

// NewErrorResponse builds a Response carrying a structured failure.
func NewErrorResponse(requestID, kind, message string) *Response {
	return &Response{RequestID: requestID, Error: &ErrorInfo{Kind: kind, Message: message}}
}
