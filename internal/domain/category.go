package domain

import (
	"fmt"
	"strings"
)

// Category identifies one of the case-count series.
type Category int

// Categories in encoding order.
const (
	Confirmed Category = iota
	Deaths
	Recovered
	Active
)

// NumCategories is the number of case-count series per region.
const NumCategories = 4

// Categories lists every category in encoding order.
var Categories = [NumCategories]Category{Confirmed, Deaths, Recovered, Active}

var categoryNames = [NumCategories]string{"confirmed", "deaths", "recovered", "active"}

func (c Category) String() string {
	if c < 0 || int(c) >= NumCategories {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c >= 0 && int(c) < NumCategories
}

// ParseCategory maps a source case_type value to a category. Matching is
// case-insensitive.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range categoryNames {
		if s == name {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}
