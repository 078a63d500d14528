// Package runid provides the run-number identity type for instrument
// acquisition runs. Run numbers are incrementing integers, but instruments
// write them as zero-padded digit text ("0001234") and the padding width is
// part of the on-disk filename, so the text form must be preserved alongside
// the integer value.
//
// This is a leaf package with zero external dependencies beyond stdlib.
package runid

import (
	"fmt"
	"strconv"
	"strings"
)

// ID is a run identifier: digit text with its leading-zero width intact.
// The zero value (ID{}) represents an absent or unknown run.
type ID struct {
	text string
}

// Parse creates an ID from the digit text an instrument wrote. The text must
// be non-empty and all decimal digits; padding is preserved as-is.
func Parse(text string) (ID, error) {
	if text == "" {
		return ID{}, fmt.Errorf("runid: empty run number")
	}

	for _, r := range text {
		if r < '0' || r > '9' {
			return ID{}, fmt.Errorf("runid: non-digit run number %q", text)
		}
	}

	return ID{text: text}, nil
}

// MustParse is Parse for test fixtures and constants; it panics on bad input.
func MustParse(text string) ID {
	id, err := Parse(text)
	if err != nil {
		panic(err)
	}

	return id
}

// FromInt creates an unpadded ID from an integer value. Used when rebuilding
// identifiers during gap recovery, where padding is applied separately from
// the earlier boundary's text form.
func FromInt(n int) ID {
	return ID{text: strconv.Itoa(n)}
}

// String returns the padded digit text.
func (id ID) String() string {
	return id.text
}

// IsZero reports whether this is the zero-value (absent) ID. Note that a
// recorded run of "0" is NOT zero-value; absence and zero are distinct.
func (id ID) IsZero() bool {
	return id.text == ""
}

// Int returns the integer value of the run number, ignoring padding.
func (id ID) Int() int {
	n, err := strconv.Atoi(id.text)
	if err != nil {
		// Parse/FromInt are the only constructors, so text is always digits;
		// the zero value yields 0.
		return 0
	}

	return n
}

// Zeros returns the leading-zero prefix of the text form ("00" for "00123",
// "" for "123"). Gap recovery derives the padding of reconstructed run
// numbers from the earlier batch boundary's zeros.
func (id ID) Zeros() string {
	trimmed := strings.TrimLeft(id.text, "0")
	return id.text[:len(id.text)-len(trimmed)]
}

// Pad returns an ID for integer n prefixed with this ID's leading zeros,
// matching how instruments extend numbering within a padded sequence:
// MustParse("0012").Pad(34) yields "0034".
func (id ID) Pad(n int) ID {
	return ID{text: id.Zeros() + strconv.Itoa(n)}
}

// DropZero returns the ID with one leading zero removed, and true when that
// produced a different identifier. Instruments occasionally shrink the
// padding width by one exactly when numbering rolls over a power of ten, so
// run locators try both widths. IDs with fewer than two leading zeros are
// returned unchanged with false.
func (id ID) DropZero() (ID, bool) {
	if len(id.Zeros()) < 2 {
		return id, false
	}

	return ID{text: id.text[1:]}, true
}

// Equal reports whether two IDs have the same text form. "007" and "7" are
// NOT equal: they name the same run but resolve to different filenames.
func (id ID) Equal(other ID) bool {
	return id.text == other.text
}
