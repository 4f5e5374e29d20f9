// Package timezone resolves IANA timezone names from coordinates.
package timezone

import (
	"fmt"
	"sync"

	"github.com/ringsaturn/tzf"
)

// Finder returns the IANA timezone name for a coordinate pair.
type Finder interface {
	Timezone(latitude, longitude float64) (string, error)
}

type tzfFinder struct {
	finder tzf.F
}

var (
	shared  *tzfFinder
	loadErr error
	once    sync.Once
)

// NewFinder returns the process-wide finder. The tzf dataset is large, so it
// is loaded once on first use.
func NewFinder() (Finder, error) {
	once.Do(func() {
		f, err := tzf.NewDefaultFinder()
		if err != nil {
			loadErr = fmt.Errorf("load timezone finder: %w", err)
			return
		}
		shared = &tzfFinder{finder: f}
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return shared, nil
}

func (f *tzfFinder) Timezone(latitude, longitude float64) (string, error) {
	name := f.finder.GetTimezoneName(longitude, latitude)
	if name == "" {
		return "", fmt.Errorf("no timezone for lat=%f lon=%f", latitude, longitude)
	}
	return name, nil
}
