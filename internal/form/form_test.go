package form

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorkiosk/internal/attendance"
)

var t0 = time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

func TestNewFormDefaults(t *testing.T) {
	f := New(t0)
	r := f.Record()
	assert.Equal(t, attendance.NewDraft(t0), r)
	assert.Empty(t, f.Errors())
}

func TestTextSettersKeepRawText(t *testing.T) {
	f := New(t0)
	f.SetFullName("  Noor ")
	f.SetAddress("")
	f.SetMeetWith("Bu Fatimah")

	r := f.Record()
	assert.Equal(t, "  Noor ", r.FullName)
	assert.Equal(t, "", r.Address)
	assert.Equal(t, "Bu Fatimah", r.MeetWith)
}

func TestSetNumberCardCoerces(t *testing.T) {
	f := New(t0)
	assert.Equal(t, 50, f.SetNumberCard("50"))
	assert.Equal(t, 50, f.Record().NumberCard)

	assert.Equal(t, 0, f.SetNumberCard("fifty"))
	assert.Equal(t, 0, f.Record().NumberCard)

	require.NoError(t, f.Set(FieldNumberCard, ""))
	assert.Equal(t, 0, f.Record().NumberCard)
}

func TestSetRejectsNonTextFields(t *testing.T) {
	f := New(t0)
	for _, field := range []Field{FieldPurpose, FieldGender, FieldIdentity, FieldSignature, FieldCheckIn, "nope"} {
		err := f.Set(field, "x")
		assert.ErrorIs(t, err, ErrNotEditable, "field %s", field)
	}
	assert.Equal(t, attendance.NewDraft(t0), f.Record())
}

func TestSelect(t *testing.T) {
	f := New(t0)
	require.NoError(t, f.Select(FieldPurpose, "tamu-undangan"))
	require.NoError(t, f.Select(FieldGender, "female"))
	require.NoError(t, f.Select(FieldIdentity, "ktp"))

	r := f.Record()
	assert.Equal(t, attendance.PurposeInvitedGuest, r.Purpose)
	assert.Equal(t, attendance.GenderFemale, r.Gender)
	assert.Equal(t, attendance.IdentityNationalID, r.Identity)

	assert.ErrorIs(t, f.Select(FieldGender, "other"), ErrUnknownChoice)
	assert.Equal(t, attendance.GenderFemale, f.Record().Gender)

	assert.ErrorIs(t, f.Select(FieldFullName, "x"), ErrNotChoiceField)
}

func TestSubscribe(t *testing.T) {
	f := New(t0)
	var got []Change
	unsubscribe := f.Subscribe(func(c Change) { got = append(got, c) })

	f.SetFullName("Noor")
	f.SetSignature("data:image/png;base64,AA")
	require.Len(t, got, 2)
	assert.Equal(t, FieldFullName, got[0].Field)
	assert.Equal(t, "Noor", got[0].Record.FullName)
	assert.Equal(t, FieldSignature, got[1].Field)

	unsubscribe()
	unsubscribe()
	f.SetAddress("somewhere")
	assert.Len(t, got, 2)
}

func TestSubscriberMayReadForm(t *testing.T) {
	f := New(t0)
	var seen string
	f.Subscribe(func(Change) { seen = f.Record().MeetWith })
	f.SetMeetWith("Pak Budi")
	assert.Equal(t, "Pak Budi", seen)
}

func TestReset(t *testing.T) {
	f := New(t0)
	f.SetFullName("Noor")
	f.SetSignature("data:image/png;base64,AA")

	var fields []Field
	f.Subscribe(func(c Change) { fields = append(fields, c.Field) })

	later := t0.Add(time.Hour)
	f.Reset(later)
	assert.Equal(t, attendance.NewDraft(later), f.Record())
	assert.Equal(t, []Field{FieldAll}, fields)
}
