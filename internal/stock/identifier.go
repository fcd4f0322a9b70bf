package stock

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Dataset is a validated dataset (table) name. The zero value is invalid;
// obtain one through ParseDataset.
type Dataset struct {
	name string
}

// ParseDataset validates a user supplied dataset name against ^[A-Za-z0-9_]+$.
func ParseDataset(name string) (Dataset, error) {
	if name == "" {
		return Dataset{}, fmt.Errorf("%w: empty name", ErrInvalidIdentifier)
	}
	if !identifierPattern.MatchString(name) {
		return Dataset{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return Dataset{name: name}, nil
}

// MustDataset is ParseDataset for compile-time constants; it panics on invalid input.
func MustDataset(name string) Dataset {
	ds, err := ParseDataset(name)
	if err != nil {
		panic(err)
	}
	return ds
}

// Name returns the raw dataset name.
func (d Dataset) Name() string {
	return d.name
}

// Valid reports whether d came from ParseDataset.
func (d Dataset) Valid() bool {
	return d.name != ""
}

func (d Dataset) String() string {
	return d.name
}
