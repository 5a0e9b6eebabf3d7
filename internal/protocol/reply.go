package protocol

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ismaiel54/margin-exchange/internal/msg"
)

var emptyObject = json.RawMessage("{}")

// Reply is the envelope published on the reply stream.
// A reply succeeds iff Data is a JSON object with at least one key.
type Reply struct {
	ID    string
	Error json.RawMessage
	Data  json.RawMessage
}

// ErrorBody is the JSON carried in Reply.Error
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// ReplyError is returned to callers for a failed reply
type ReplyError struct {
	StatusCode int
	Message    string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.StatusCode, e.Message)
}

// NewDataReply builds a successful reply
func NewDataReply(id string, v any) (Reply, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to marshal reply data: %w", err)
	}
	return Reply{ID: id, Error: emptyObject, Data: data}, nil
}

// NewErrorReply builds a failed reply; statusCode 0 becomes 500
func NewErrorReply(id string, statusCode int, message string) Reply {
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}
	body, _ := json.Marshal(ErrorBody{StatusCode: statusCode, Message: message})
	return Reply{ID: id, Error: body, Data: emptyObject}
}

// OK reports whether Data is a non-empty JSON object
func (r Reply) OK() bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(r.Data, &obj); err != nil {
		return false
	}
	return len(obj) > 0
}

// Err returns nil for a successful reply and a *ReplyError otherwise
func (r Reply) Err() error {
	if r.OK() {
		return nil
	}
	var body ErrorBody
	if err := json.Unmarshal(r.Error, &body); err != nil || body.StatusCode == 0 {
		body.StatusCode = http.StatusInternalServerError
	}
	if body.Message == "" {
		body.Message = "Internal Server Error"
	}
	return &ReplyError{StatusCode: body.StatusCode, Message: body.Message}
}

// Decode unmarshals Data into v
func (r Reply) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode reply data: %w", err)
	}
	return nil
}

// Fields builds the record fields for the reply stream
func (r Reply) Fields() map[string]string {
	errField, dataField := r.Error, r.Data
	if len(errField) == 0 {
		errField = emptyObject
	}
	if len(dataField) == 0 {
		dataField = emptyObject
	}
	return map[string]string{
		msg.FieldID:    r.ID,
		msg.FieldError: string(errField),
		msg.FieldData:  string(dataField),
	}
}

// ReplyFromFields parses reply stream fields
func ReplyFromFields(fields map[string]string) (Reply, error) {
	id, ok := fields[msg.FieldID]
	if !ok || id == "" {
		return Reply{}, fmt.Errorf("reply without id")
	}
	r := Reply{ID: id, Error: emptyObject, Data: emptyObject}
	if v := fields[msg.FieldError]; v != "" {
		if !json.Valid([]byte(v)) {
			return Reply{}, fmt.Errorf("reply %s: invalid error json", id)
		}
		r.Error = json.RawMessage(v)
	}
	if v := fields[msg.FieldData]; v != "" {
		if !json.Valid([]byte(v)) {
			return Reply{}, fmt.Errorf("reply %s: invalid data json", id)
		}
		r.Data = json.RawMessage(v)
	}
	return r, nil
}
