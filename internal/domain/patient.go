package domain

import (
	"errors"
	"strings"
)

// Patient demographics attached to a submission.
type Patient struct {
	ID        int64  `json:"id"`
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
	Age       int    `json:"age"`
	Sex       string `json:"sex"`
}

// Validate checks the demographics a submission must carry.
func (p Patient) Validate() error {
	if strings.TrimSpace(p.LastName) == "" && strings.TrimSpace(p.FirstName) == "" {
		return errors.New("patient name is required")
	}
	if p.Age < 0 || p.Age > 150 {
		return errors.New("patient age is out of range")
	}
	return nil
}
