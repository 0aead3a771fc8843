package core

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DocumentType distinguishes text from image submissions.
type DocumentType string

const (
	DocumentText  DocumentType = "text"
	DocumentImage DocumentType = "image"
)

// Document is a submission already normalized by the extraction layer.
type Document struct {
	Type     DocumentType `json:"type"`
	Text     string       `json:"text"`
	MimeType string       `json:"mimetype,omitempty"`
	Data     []byte       `json:"data,omitempty"`
	Filename string       `json:"filename,omitempty"`
}

// IsImage reports whether the document carries image bytes.
func (d Document) IsImage() bool {
	return d.Type == DocumentImage
}

// Attachment returns the binary payload to send alongside a prompt, or nil.
func (d Document) Attachment() *Attachment {
	if !d.IsImage() || len(d.Data) == 0 {
		return nil
	}
	return &Attachment{MimeType: d.MimeType, Data: d.Data}
}

// Attachment is binary input passed to an inference call.
type Attachment struct {
	MimeType string
	Data     []byte
}

// Session owns all records for one pipeline run. Only the coordinator
// driving the run mutates it; every other reader uses Snapshot.
type Session struct {
	mu        sync.RWMutex
	id        string
	state     State
	document  Document
	factors   []Factor
	debates   []DebateRecord
	report    *FinalReport
	errMsg    string
	createdAt time.Time
	updatedAt time.Time
}

// SessionSnapshot is an immutable copy of a session.
type SessionSnapshot struct {
	ID          string         `json:"id"`
	State       State          `json:"state"`
	Document    Document       `json:"document"`
	Factors     []Factor       `json:"factors"`
	Debates     []DebateRecord `json:"debates"`
	FinalReport *FinalReport   `json:"final_report,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewSession creates an idle session for a document.
func NewSession(id string, doc Document) *Session {
	now := time.Now()
	return &Session{
		id:        id,
		state:     StateIdle,
		document:  doc,
		createdAt: now,
		updatedAt: now,
	}
}

// RestoreSession rebuilds a session from a persisted snapshot.
func RestoreSession(snap SessionSnapshot) *Session {
	s := &Session{
		id:        snap.ID,
		state:     snap.State,
		document:  snap.Document,
		factors:   append([]Factor(nil), snap.Factors...),
		debates:   append([]DebateRecord(nil), snap.Debates...),
		errMsg:    snap.Error,
		createdAt: snap.CreatedAt,
		updatedAt: snap.UpdatedAt,
	}
	if snap.FinalReport != nil {
		r := *snap.FinalReport
		s.report = &r
	}
	return s
}

func (s *Session) ID() string { return s.id }

// State returns the current pipeline state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Document returns the submitted document.
func (s *Session) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.document
}

// UpdatedAt returns the time of the last mutation.
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Transition moves the session to the next state.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to State) error {
	if err := ValidateTransition(s.state, to); err != nil {
		return err
	}
	s.state = to
	s.updatedAt = time.Now()
	return nil
}

// SetFactors records the extracted factors. Allowed once, while extracting.
func (s *Session) SetFactors(factors []Factor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateExtractingFactors {
		return ErrState(CodeInvalidTransition, fmt.Sprintf("factors can only be set while extracting, state is %s", s.state))
	}
	if s.factors != nil {
		return ErrState(CodeInvalidTransition, "factors already extracted")
	}
	s.factors = append([]Factor(nil), factors...)
	s.updatedAt = time.Now()
	return nil
}

// Factors returns a copy of the extracted factors.
func (s *Session) Factors() []Factor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Factor(nil), s.factors...)
}

// AppendDebate records the debate for the next factor in extraction order.
func (s *Session) AppendDebate(d DebateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSynthesizing {
		return ErrState(CodeInvalidTransition, fmt.Sprintf("debates can only be appended after synthesis, state is %s", s.state))
	}
	next := len(s.debates)
	if next >= len(s.factors) {
		return ErrState(CodeDuplicateDebate, "all factors already have a debate")
	}
	if s.factors[next].ID != d.Factor.ID {
		return ErrState(CodeDuplicateDebate,
			fmt.Sprintf("debate for factor %s out of order, expected %s", d.Factor.ID, s.factors[next].ID))
	}
	s.debates = append(s.debates, d)
	s.updatedAt = time.Now()
	return nil
}

// Debates returns a copy of the completed debates.
func (s *Session) Debates() []DebateRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]DebateRecord(nil), s.debates...)
}

// DebateCount returns the number of completed debates.
func (s *Session) DebateCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.debates)
}

// SetReport stores the final report while the report is being generated.
func (s *Session) SetReport(r FinalReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateGeneratingReport {
		return ErrState(CodeInvalidTransition, fmt.Sprintf("report can only be set while generating, state is %s", s.state))
	}
	s.report = &r
	s.updatedAt = time.Now()
	return nil
}

// Report returns the final report, or nil before completion.
func (s *Session) Report() *FinalReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return nil
	}
	r := *s.report
	return &r
}

// Fail moves the session to ERROR and records the cause.
func (s *Session) Fail(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(StateError); err != nil {
		return err
	}
	if cause != nil {
		s.errMsg = cause.Error()
	}
	return nil
}

// Snapshot returns a consistent copy of the session.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := SessionSnapshot{
		ID:        s.id,
		State:     s.state,
		Document:  s.document,
		Factors:   append([]Factor{}, s.factors...),
		Debates:   append([]DebateRecord{}, s.debates...),
		Error:     s.errMsg,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	if s.report != nil {
		r := *s.report
		snap.FinalReport = &r
	}
	return snap
}

// MarshalJSON encodes the session through its snapshot.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}
