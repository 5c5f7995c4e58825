package logging

import (
	"fmt"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGelfWriter connects a UDP GELF writer to a Graylog input.
func NewGelfWriter(address string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("failed to create gelf writer for %s: %w", address, err)
	}
	w.Facility = instrumentationName
	return w, nil
}
