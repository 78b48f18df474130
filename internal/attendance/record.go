package attendance

import (
	"fmt"
	"math"
	"time"
)

// Visitor-facing messages. The upstream conflict literal is compared byte for byte.
const (
	MsgFillRequired    = "Please fill in all required fields."
	MsgFillNumberCard  = "Please fill number card"
	MsgSubmitted       = "sukses attend"
	MsgSubmitFailed    = "Number card is currently in use"
	MsgNumberCardInUse = "Number card is currently in use."
	MsgCheckFailed     = "error"
)

// Purpose is the reason for the visit.
type Purpose string

const (
	PurposeInterview     Purpose = "interview"
	PurposeInvitedGuest  Purpose = "tamu-undangan"
	PurposeGoodsDelivery Purpose = "send-barang"
)

// Gender of the visitor.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Identity is the kind of document the visitor presented.
type Identity string

const (
	IdentityNationalID    Identity = "ktp"
	IdentityDriverLicense Identity = "sim"
)

// Record is a visitor attendance entry as sent to the attendance service.
type Record struct {
	FullName   string    `json:"fullName"`
	NumberCard int       `json:"numberCard"`
	Address    string    `json:"address"`
	Purpose    Purpose   `json:"purpose"`
	MeetWith   string    `json:"meetWith"`
	Gender     Gender    `json:"gender"`
	Identity   Identity  `json:"identity"`
	Signature  string    `json:"signature"`
	CheckIn    time.Time `json:"checkIn"`
}

// NewDraft returns an empty record stamped with the given check-in time.
func NewDraft(now time.Time) Record {
	return Record{CheckIn: now.UTC()}
}

// Complete reports whether every field of the record is populated.
// Text is not trimmed: whitespace counts as a value.
func Complete(r Record) bool {
	return r.FullName != "" &&
		r.Address != "" &&
		r.Purpose != "" &&
		r.Identity != "" &&
		r.NumberCard != 0 &&
		r.MeetWith != "" &&
		r.Gender != "" &&
		!r.CheckIn.IsZero() &&
		r.Signature != ""
}

// DocumentURL returns the address of the PDF the service renders for a submission.
// The name is concatenated as is; the service names the file the same way.
func DocumentURL(base, fullName string) string {
	return base + "/public/pdfAttendance-" + fullName + ".pdf"
}

// ParseNumberCard converts raw input the way a numeric form field does:
// leading whitespace, an optional sign and the leading run of digits.
// Anything unparsable, or beyond 32-bit range, becomes 0.
func ParseNumberCard(raw string) int {
	i := 0
	for i < len(raw) && isSpace(raw[i]) {
		i++
	}
	neg := false
	if i < len(raw) && (raw[i] == '+' || raw[i] == '-') {
		neg = raw[i] == '-'
		i++
	}
	limit := int64(math.MaxInt32)
	if neg {
		limit++
	}
	var n int64
	digits := 0
	for ; i < len(raw) && raw[i] >= '0' && raw[i] <= '9'; i++ {
		n = n*10 + int64(raw[i]-'0')
		if n > limit {
			return 0
		}
		digits++
	}
	if digits == 0 {
		return 0
	}
	if neg {
		n = -n
	}
	return int(n)
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// ParsePurpose validates a purpose selection.
func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(s); p {
	case PurposeInterview, PurposeInvitedGuest, PurposeGoodsDelivery:
		return p, nil
	}
	return "", fmt.Errorf("unknown purpose %q", s)
}

// ParseGender validates a gender selection.
func ParseGender(s string) (Gender, error) {
	switch g := Gender(s); g {
	case GenderMale, GenderFemale:
		return g, nil
	}
	return "", fmt.Errorf("unknown gender %q", s)
}

// ParseIdentity validates an identity document selection.
func ParseIdentity(s string) (Identity, error) {
	switch id := Identity(s); id {
	case IdentityNationalID, IdentityDriverLicense:
		return id, nil
	}
	return "", fmt.Errorf("unknown identity %q", s)
}
