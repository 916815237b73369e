// Package ulid provides a ULID wrapper used for envelope identifiers.
package ulid

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULID is a lexicographically sortable unique identifier.
type ULID struct {
	ulid.ULID `json:"-"`
}

// New generates a new ULID seeded with the current timestamp.
func New() ULID {
	return ULID{ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)}
}

// NewFromTime generates a new ULID seeded with the given timestamp.
func NewFromTime(t time.Time) ULID {
	return ULID{ulid.MustNew(ulid.Timestamp(t), rand.Reader)}
}

// Parse parses a ULID string.
func Parse(s string) (ULID, error) {
	parsed, err := ulid.Parse(s)
	if err != nil {
		return ULID{}, err
	}
	return ULID{parsed}, nil
}

// MustParse parses a ULID string, panicking on error.
func MustParse(s string) ULID {
	parsed, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

func (u ULID) String() string {
	return u.ULID.String()
}

// Time returns the timestamp portion of the ULID.
func (u ULID) Time() time.Time {
	return ulid.Time(u.ULID.Time())
}

// IsZero reports whether the ULID is the zero value.
func (u ULID) IsZero() bool {
	return u.ULID == ulid.ULID{}
}

func (u ULID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

func (u *ULID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("invalid JSON for ULID: %s", string(data))
	}
	str := string(data[1 : len(data)-1])
	if str == "null" || str == "" {
		*u = ULID{}
		return nil
	}
	parsed, err := Parse(str)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
