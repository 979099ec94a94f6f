// Package seed loads problem fixtures from YAML into a store.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/codejudge/domain"
)

//go:embed fixtures/problems.yaml
var defaultFixtures string

// ProblemWriter persists a problem with its test cases, replacing any previous version
type ProblemWriter interface {
	UpsertProblem(ctx context.Context, p *domain.Problem) error
}

type fixtureFile struct {
	Problems []fixtureProblem `yaml:"problems"`
}

type fixtureProblem struct {
	ID            string            `yaml:"id"`
	Title         string            `yaml:"title"`
	Slug          string            `yaml:"slug"`
	TimeLimitMs   int               `yaml:"time_limit_ms"`
	MemoryLimitMB int               `yaml:"memory_limit_mb"`
	TestCases     []fixtureTestCase `yaml:"test_cases"`
	// Drivers maps a language to the harness placed around submissions.
	Drivers map[string]fixtureDriver `yaml:"drivers"`
}

type fixtureDriver struct {
	Prefix  string `yaml:"prefix"`
	Postfix string `yaml:"postfix"`
}

type fixtureTestCase struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	Hidden bool   `yaml:"hidden"`
}

// Default returns the built-in starter problems
func Default() ([]domain.Problem, error) {
	return Load(strings.NewReader(defaultFixtures))
}

// LoadFile reads fixtures from path
func LoadFile(path string) ([]domain.Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening fixtures: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes fixtures. IDs default to the slug, and slugs to the title,
// so loading the same file twice yields the same rows.
func Load(r io.Reader) ([]domain.Problem, error) {
	var file fixtureFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding fixtures: %w", err)
	}

	seen := make(map[string]bool, len(file.Problems))
	problems := make([]domain.Problem, 0, len(file.Problems))
	for i, fp := range file.Problems {
		if strings.TrimSpace(fp.Title) == "" {
			return nil, fmt.Errorf("problem %d: title is required", i+1)
		}

		s := fp.Slug
		if s == "" {
			s = slug.Make(fp.Title)
		}
		id := fp.ID
		if id == "" {
			id = s
		}
		if seen[id] || seen[s] {
			return nil, fmt.Errorf("problem %d: duplicate id or slug %q", i+1, s)
		}
		seen[id], seen[s] = true, true

		p := domain.Problem{
			ID:            id,
			Title:         fp.Title,
			Slug:          s,
			TimeLimitMs:   fp.TimeLimitMs,
			MemoryLimitMB: fp.MemoryLimitMB,
			TestCases:     make([]domain.TestCase, 0, len(fp.TestCases)),
		}
		if len(fp.Drivers) > 0 {
			p.Drivers = make(map[string]domain.Driver, len(fp.Drivers))
			for lang, d := range fp.Drivers {
				p.Drivers[strings.ToLower(strings.TrimSpace(lang))] = domain.Driver(d)
			}
		}
		for j, tc := range fp.TestCases {
			p.TestCases = append(p.TestCases, domain.TestCase{
				ID:             fmt.Sprintf("%s-%d", id, j+1),
				Input:          tc.Input,
				ExpectedOutput: tc.Output,
				IsHidden:       tc.Hidden,
			})
		}
		problems = append(problems, p)
	}

	return problems, nil
}

// Apply writes problems to w in order
func Apply(ctx context.Context, w ProblemWriter, logger *zap.Logger, problems []domain.Problem) error {
	for i := range problems {
		p := &problems[i]
		if err := w.UpsertProblem(ctx, p); err != nil {
			return fmt.Errorf("seeding %s: %w", p.Slug, err)
		}
		logger.Info("seeded problem",
			zap.String("id", p.ID),
			zap.String("title", p.Title),
			zap.Int("test_cases", len(p.TestCases)))
	}
	return nil
}
