package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads Options from a YAML file. Unknown keys are rejected.
//
//	mode: latency
//	events: [irq:irq_handler_entry, irq:irq_handler_exit]
//	histogram: {bucket_width: 1000, bucket_count: 100}
//	limit: 1000000
//	filter: cpu < 4
func LoadFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("reading config file: %w", err)
	}

	var opts Options
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return Options{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return opts, nil
}
