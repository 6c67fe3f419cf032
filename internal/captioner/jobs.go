package captioner

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// jobFile is the on-disk batch format:
//
//	jobs:
//	  - status: "110"
//	    media: "m1"
//	    caption: "A heron on a post"
type jobFile struct {
	Jobs []Job `yaml:"jobs"`
}

// LoadJobs reads a YAML (or JSON) batch file. Every job needs a media id
// and a non-blank caption.
func LoadJobs(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	return ParseJobs(data)
}

// SaveJobs writes jobs in the batch format. Captions may be empty, which
// makes the file a template to fill in before LoadJobs accepts it.
func SaveJobs(path string, jobs []Job) error {
	data, err := yaml.Marshal(jobFile{Jobs: jobs})
	if err != nil {
		return fmt.Errorf("failed to marshal batch file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write batch file: %w", err)
	}
	return nil
}

// ParseJobs decodes a batch document.
func ParseJobs(data []byte) ([]Job, error) {
	var f jobFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}

	var errs []error
	for i, job := range f.Jobs {
		if strings.TrimSpace(job.MediaID) == "" {
			errs = append(errs, fmt.Errorf("job %d: media id is required", i+1))
		}
		if strings.TrimSpace(job.Caption) == "" {
			errs = append(errs, fmt.Errorf("job %d: caption is required", i+1))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return f.Jobs, nil
}

// Summary counts the outcomes of a batch.
type Summary struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
}

// Summarize tallies results. Skipped jobs also count as succeeded.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Skipped:
			s.Skipped++
			s.Succeeded++
		case r.Success:
			s.Succeeded++
		default:
			s.Failed++
		}
	}
	return s
}
