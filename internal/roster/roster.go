// Package roster reads the academy's students, coaches, sessions and
// payments. The producers only ever see the Source interface.
package roster

import (
	"context"
	"time"
)

// Student is a swimmer. Messages go to the guardian when a guardian phone
// is set.
type Student struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	GuardianName  string `json:"guardianName,omitempty"`
	GuardianPhone string `json:"guardianPhone,omitempty"`
	Level         string `json:"level,omitempty"`
	Active        bool   `json:"active"`
}

// ContactPhone is the number reminders are sent to
func (s Student) ContactPhone() string {
	if s.GuardianPhone != "" {
		return s.GuardianPhone
	}
	return s.Phone
}

// ContactName is the name reminders are addressed to
func (s Student) ContactName() string {
	if s.GuardianPhone != "" && s.GuardianName != "" {
		return s.GuardianName
	}
	return s.Name
}

type Coach struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Session is one scheduled lesson
type Session struct {
	ID          string    `json:"id"`
	CoachID     string    `json:"coachId"`
	StudentIDs  []string  `json:"studentIds"`
	Pool        string    `json:"pool"`
	Level       string    `json:"level,omitempty"`
	Start       time.Time `json:"start"`
	DurationMin int       `json:"durationMin"`
}

// End is Start plus the session duration
func (s Session) End() time.Time {
	return s.Start.Add(time.Duration(s.DurationMin) * time.Minute)
}

// Payment is an unpaid invoice
type Payment struct {
	StudentID string    `json:"studentId"`
	Period    string    `json:"period"`
	Amount    int64     `json:"amount"`
	DueDate   time.Time `json:"dueDate"`
	Paid      bool      `json:"paid"`
}

// Source is the read-only recipient data used by the scheduled producers
type Source interface {
	Students(ctx context.Context) ([]Student, error)
	Coaches(ctx context.Context) ([]Coach, error)
	SessionsBetween(ctx context.Context, from, to time.Time) ([]Session, error)
	OutstandingPayments(ctx context.Context) ([]Payment, error)
}
