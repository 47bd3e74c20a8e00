// Package wire holds the JSON shapes exchanged between generated front-ends and the
// runtime gateway.
package wire

import "encoding/json"

// Status values used in Status envelopes.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Attribute type names emitted by the generator.
const (
	IntAttribute    = "IntAttribute"
	FloatAttribute  = "FloatAttribute"
	BoolAttribute   = "BoolAttribute"
	StringAttribute = "StringAttribute"
	ListAttribute   = "ListAttribute"
	DictAttribute   = "DictAttribute"
)

// Modification kinds accepted by modifyDB for document stores.
const (
	ModInsert = "insert"
	ModUpdate = "update"
	ModDelete = "delete"
)

// RestCallRequest is the body of POST /restcall.
type RestCallRequest struct {
	Name    string            `json:"name,omitempty"`
	Host    string            `json:"host,omitempty"`
	BaseURL string            `json:"base_url,omitempty"`
	Port    int               `json:"port,omitempty"`
	Path    string            `json:"path"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Params  map[string]any    `json:"params,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// DBQueryRequest is the body of POST /queryDB.
type DBQueryRequest struct {
	ConnectionName string         `json:"connection_name"`
	Database       string         `json:"database,omitempty"`
	Query          string         `json:"query,omitempty"`
	Collection     string         `json:"collection,omitempty"`
	Filter         map[string]any `json:"filter,omitempty"`
	Params         []any          `json:"params,omitempty"`
}

// DBModifyRequest is the body of POST /modifyDB.
type DBModifyRequest struct {
	ConnectionName string         `json:"connection_name"`
	Database       string         `json:"database,omitempty"`
	Query          string         `json:"query,omitempty"`
	Collection     string         `json:"collection,omitempty"`
	Modification   string         `json:"modification,omitempty"`
	Filter         map[string]any `json:"filter,omitempty"`
	NewData        map[string]any `json:"new_data,omitempty"`
	DBType         string         `json:"dbType,omitempty"`
	Params         []any          `json:"params,omitempty"`
}

// ModifyResult is returned by POST /modifyDB.
type ModifyResult struct {
	Status     string `json:"status"`
	Affected   int64  `json:"affected"`
	InsertedID any    `json:"inserted_id,omitempty"`
}

// PublishRequest is the body of POST /publish.
type PublishRequest struct {
	Broker  string         `json:"broker"`
	Topic   string         `json:"topic"`
	Message map[string]any `json:"message"`
}

// Status is the {status, message} envelope the generated front-end inspects.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Me is returned by GET /me.
type Me struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	WSToken  string   `json:"ws_token"`
}

// Attribute names a value inside a response and the type it must be converted to.
type Attribute struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Frame is one WebSocket message: a single topic key mapping to its payload.
type Frame map[string]json.RawMessage

// NewFrame encodes payload under topic.
func NewFrame(topic string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{topic: b})
}
