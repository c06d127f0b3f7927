package workload

import (
	"fmt"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"

	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/scheduling/priority"
)

// Duration accepts either a Go duration string ("1.5s", "200ms") or a
// number of seconds.
type Duration time.Duration

// UnmarshalYAML implements the go-yaml interface unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case int64:
		*d = Duration(time.Duration(v) * time.Second)
	case uint64:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(v * float64(time.Second))
	case nil:
		*d = 0
	default:
		return fmt.Errorf("unsupported duration %v (%T)", raw, raw)
	}
	return nil
}

// TaskSpec is one task entry of a batch file.
type TaskSpec struct {
	Name     string   `yaml:"name"`
	Priority int      `yaml:"priority"`
	Duration Duration `yaml:"duration"`
}

// File mirrors a batch file. Capacity and Unit are optional hints that
// command-line flags override.
type File struct {
	Capacity int        `yaml:"capacity"`
	Unit     Duration   `yaml:"unit"`
	Tasks    []TaskSpec `yaml:"tasks"`
}

// Batch converts the file's tasks, in file order.
func (f *File) Batch() []priority.Task {
	batch := make([]priority.Task, len(f.Tasks))
	for i, t := range f.Tasks {
		batch[i] = priority.Task{
			Name:     t.Name,
			Priority: t.Priority,
			Duration: time.Duration(t.Duration),
		}
	}
	return batch
}

// ParseBatch decodes and validates a YAML batch file.
func ParseBatch(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, sferrors.NewOperationError("workload", "ParseBatch",
			fmt.Errorf("%w: %w", sferrors.ErrInvalidBatch, err))
	}
	if f.Capacity < 0 {
		return nil, sferrors.NewValidationError("workload", "capacity", f.Capacity, "cannot be negative")
	}
	if f.Unit < 0 {
		return nil, sferrors.NewValidationError("workload", "unit", time.Duration(f.Unit), "cannot be negative")
	}
	if err := priority.ValidateBatch(f.Batch()); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadBatch reads and parses the batch file at path.
func LoadBatch(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sferrors.NewOperationError("workload", "LoadBatch", err).WithContext(path)
	}
	return ParseBatch(data)
}

// ReferenceBatch returns the five-task batch of the classic two-slot
// priority exercise, with durations in seconds.
func ReferenceBatch() []priority.Task {
	return []priority.Task{
		{Name: "Emergency", Priority: 1, Duration: 1 * time.Second},
		{Name: "Important", Priority: 2, Duration: 2 * time.Second},
		{Name: "RoutineA", Priority: 3, Duration: 3 * time.Second},
		{Name: "RoutineB", Priority: 3, Duration: 2 * time.Second},
		{Name: "Background", Priority: 4, Duration: 5 * time.Second},
	}
}
