// Package form holds the mutable draft of a visitor attendance record.
package form

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"visitorkiosk/internal/attendance"
)

// Field names match the JSON keys of attendance.Record.
type Field string

const (
	FieldFullName   Field = "fullName"
	FieldNumberCard Field = "numberCard"
	FieldAddress    Field = "address"
	FieldPurpose    Field = "purpose"
	FieldMeetWith   Field = "meetWith"
	FieldGender     Field = "gender"
	FieldIdentity   Field = "identity"
	FieldSignature  Field = "signature"
	FieldCheckIn    Field = "checkIn"

	// FieldAll is reported when the whole draft was replaced.
	FieldAll Field = "*"
)

var (
	ErrNotEditable    = errors.New("field is not editable as text")
	ErrUnknownChoice  = errors.New("unknown choice")
	ErrNotChoiceField = errors.New("field is not a choice")
)

// Change describes one update of the draft.
type Change struct {
	Field  Field
	Record attendance.Record
}

// Form is the draft record plus the field error set shown next to inputs.
type Form struct {
	mu     sync.Mutex
	rec    attendance.Record
	errs   map[Field]string
	subs   map[int]func(Change)
	nextID int
}

// New returns a form with a default draft checked in at now.
func New(now time.Time) *Form {
	return &Form{
		rec:  attendance.NewDraft(now),
		errs: map[Field]string{},
		subs: map[int]func(Change){},
	}
}

// Record returns a copy of the current draft.
func (f *Form) Record() attendance.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec
}

// Errors returns a copy of the field error set. No per-field rules are
// registered, so outside of tests it is empty.
func (f *Form) Errors() map[Field]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[Field]string, len(f.errs))
	for k, v := range f.errs {
		out[k] = v
	}
	return out
}

// Subscribe registers fn to be called after every change. Callbacks run
// outside the form's lock, on the goroutine that made the change.
func (f *Form) Subscribe(fn func(Change)) (unsubscribe func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

func (f *Form) update(field Field, apply func(r *attendance.Record)) {
	f.mu.Lock()
	apply(&f.rec)
	c := Change{Field: field, Record: f.rec}
	subs := make([]func(Change), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(c)
	}
}

// SetFullName stores the visitor name.
func (f *Form) SetFullName(v string) {
	f.update(FieldFullName, func(r *attendance.Record) { r.FullName = v })
}

// SetNumberCard coerces raw input and returns the stored value.
func (f *Form) SetNumberCard(raw string) int {
	n := attendance.ParseNumberCard(raw)
	f.update(FieldNumberCard, func(r *attendance.Record) { r.NumberCard = n })
	return n
}

// SetAddress stores the visitor address.
func (f *Form) SetAddress(v string) {
	f.update(FieldAddress, func(r *attendance.Record) { r.Address = v })
}

// SetMeetWith stores the name of the person being visited.
func (f *Form) SetMeetWith(v string) {
	f.update(FieldMeetWith, func(r *attendance.Record) { r.MeetWith = v })
}

// SelectPurpose stores the purpose of the visit.
func (f *Form) SelectPurpose(p attendance.Purpose) {
	f.update(FieldPurpose, func(r *attendance.Record) { r.Purpose = p })
}

// SelectGender stores the visitor gender.
func (f *Form) SelectGender(g attendance.Gender) {
	f.update(FieldGender, func(r *attendance.Record) { r.Gender = g })
}

// SelectIdentity stores the kind of identity document shown.
func (f *Form) SelectIdentity(id attendance.Identity) {
	f.update(FieldIdentity, func(r *attendance.Record) { r.Identity = id })
}

// SetSignature stores the encoded signature image.
func (f *Form) SetSignature(dataURI string) {
	f.update(FieldSignature, func(r *attendance.Record) { r.Signature = dataURI })
}

// Reset replaces the draft with a fresh one and clears field errors.
func (f *Form) Reset(now time.Time) {
	f.update(FieldAll, func(r *attendance.Record) {
		*r = attendance.NewDraft(now)
		f.errs = map[Field]string{}
	})
}

// Set dispatches raw text input to the matching setter.
func (f *Form) Set(field Field, raw string) error {
	switch field {
	case FieldFullName:
		f.SetFullName(raw)
	case FieldNumberCard:
		f.SetNumberCard(raw)
	case FieldAddress:
		f.SetAddress(raw)
	case FieldMeetWith:
		f.SetMeetWith(raw)
	default:
		return fmt.Errorf("%w: %s", ErrNotEditable, field)
	}
	return nil
}

// Select dispatches a discrete choice to the matching enum setter.
func (f *Form) Select(field Field, value string) error {
	switch field {
	case FieldPurpose:
		p, err := attendance.ParsePurpose(value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownChoice, err)
		}
		f.SelectPurpose(p)
	case FieldGender:
		g, err := attendance.ParseGender(value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownChoice, err)
		}
		f.SelectGender(g)
	case FieldIdentity:
		id, err := attendance.ParseIdentity(value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownChoice, err)
		}
		f.SelectIdentity(id)
	default:
		return fmt.Errorf("%w: %s", ErrNotChoiceField, field)
	}
	return nil
}
