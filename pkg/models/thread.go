package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// InitiatorRole identifies which party opened a thread or sent a message.
type InitiatorRole string

const (
	RoleCustomer InitiatorRole = "customer"
	RoleCompany  InitiatorRole = "company"
)

// MessageID is a message identifier. Import files carry it either as a
// JSON string or a JSON number; both decode to the same textual form.
type MessageID string

// UnmarshalJSON accepts a string or a number.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message id must be a string or number: %w", err)
	}
	*id = MessageID(n.String())
	return nil
}

// Message is a single email in a thread. Messages are immutable.
type Message struct {
	ID        MessageID     `json:"id" yaml:"id"`
	Sender    InitiatorRole `json:"sender" yaml:"sender"`
	Timestamp string        `json:"timestamp" yaml:"timestamp"`
	Body      string        `json:"body" yaml:"body"`
}

// Thread is an email conversation between a customer and the company about
// one issue. Threads are owned by the backend and cached read-only.
type Thread struct {
	ThreadID    string        `json:"thread_id" yaml:"thread_id"`
	Topic       string        `json:"topic" yaml:"topic"`
	Subject     string        `json:"subject" yaml:"subject"`
	InitiatedBy InitiatorRole `json:"initiated_by" yaml:"initiated_by"`
	OrderID     string        `json:"order_id" yaml:"order_id"`
	Product     string        `json:"product" yaml:"product"`
	Messages    []Message     `json:"messages" yaml:"messages"`
	CreatedAt   string        `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}
