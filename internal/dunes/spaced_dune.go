package dunes

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// MaxSpacers caps the spacer bitmask at 27 usable gap positions.
const MaxSpacers uint32 = 0b00000111_11111111_11111111_11111111

// SpacedDune pairs a dune name with a bitmask of display spacers: bit i
// set means a dot is rendered between letters i and i+1.
type SpacedDune struct {
	Dune    Dune
	Spacers uint32
}

// ParseSpacedDune parses a name with optional '.' or '•' spacers.
// Spacers may never lead, trail, or double up.
func ParseSpacedDune(s string) (SpacedDune, error) {
	var letters strings.Builder
	var spacers uint32

	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z':
			letters.WriteRune(c)
		case c == '.' || c == '•':
			if letters.Len() == 0 {
				return SpacedDune{}, errors.New("dunes: leading spacer")
			}
			flag := uint32(1) << (letters.Len() - 1)
			if spacers&flag != 0 {
				return SpacedDune{}, errors.New("dunes: double spacer")
			}
			spacers |= flag
		default:
			return SpacedDune{}, fmt.Errorf("dunes: invalid character %q", c)
		}
	}

	if 32-bits.LeadingZeros32(spacers) >= letters.Len() {
		return SpacedDune{}, errors.New("dunes: trailing spacer")
	}

	dune, err := ParseDune(letters.String())
	if err != nil {
		return SpacedDune{}, err
	}
	return SpacedDune{Dune: dune, Spacers: spacers}, nil
}

// String renders the name with '•' at each spacer position.
func (s SpacedDune) String() string {
	name := s.Dune.String()
	var out strings.Builder
	for i, c := range name {
		out.WriteRune(c)
		if i < len(name)-1 && s.Spacers&(1<<i) != 0 {
			out.WriteRune('•')
		}
	}
	return out.String()
}
