package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/isdmx/codejudge/domain"
)

// Store implements the problem, submission and progress ports
type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

// New wraps db. Call Migrate before first use.
func New(db *sqlx.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Migrate creates missing tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating %s schema: %w", s.dialect.Name, s.mapErr(err))
		}
	}
	return nil
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) mapErr(err error) error {
	if err == nil || s.dialect.MapError == nil {
		return err
	}
	return s.dialect.MapError(err)
}

type problemRow struct {
	ID            string `db:"id"`
	Title         string `db:"title"`
	Slug          string `db:"slug"`
	TimeLimitMs   int    `db:"time_limit_ms"`
	MemoryLimitMB int    `db:"memory_limit_mb"`
	Drivers       []byte `db:"drivers"`
}

type testCaseRow struct {
	ID             string `db:"id"`
	Input          string `db:"input"`
	ExpectedOutput string `db:"expected_output"`
	IsHidden       bool   `db:"is_hidden"`
}

type submissionRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	ProblemID string    `db:"problem_id"`
	Code      string    `db:"code"`
	Language  string    `db:"language"`
	Status    string    `db:"status"`
	Score     int       `db:"score"`
	Results   []byte    `db:"results"`
	CreatedAt timestamp `db:"created_at"`
}

func (r submissionRow) toDomain() (domain.Submission, error) {
	status, err := domain.ParseVerdict(r.Status)
	if err != nil {
		return domain.Submission{}, err
	}
	results := []domain.TestResult{}
	if len(r.Results) > 0 {
		if err := json.Unmarshal(r.Results, &results); err != nil {
			return domain.Submission{}, fmt.Errorf("decoding results of submission %s: %w", r.ID, err)
		}
	}
	return domain.Submission{
		ID:        r.ID,
		UserID:    r.UserID,
		ProblemID: r.ProblemID,
		Code:      r.Code,
		Language:  r.Language,
		Status:    status,
		Score:     r.Score,
		Results:   results,
		CreatedAt: r.CreatedAt.Time,
	}, nil
}

// GetProblemWithTestCases loads a problem and all its test cases in order
func (s *Store) GetProblemWithTestCases(ctx context.Context, problemID string) (*domain.Problem, error) {
	var p problemRow
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`
		SELECT id, title, slug, time_limit_ms, memory_limit_mb, drivers
		FROM problems WHERE id = ? OR slug = ?`), problemID, problemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrProblemNotFound, problemID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying problem: %w", s.mapErr(err))
	}

	var rows []testCaseRow
	err = s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, input, expected_output, is_hidden
		FROM test_cases WHERE problem_id = ? ORDER BY position`), p.ID)
	if err != nil {
		return nil, fmt.Errorf("querying test cases: %w", s.mapErr(err))
	}

	problem := &domain.Problem{
		ID:            p.ID,
		Title:         p.Title,
		Slug:          p.Slug,
		TimeLimitMs:   p.TimeLimitMs,
		MemoryLimitMB: p.MemoryLimitMB,
		TestCases:     make([]domain.TestCase, 0, len(rows)),
	}
	if len(p.Drivers) > 0 {
		if err := json.Unmarshal(p.Drivers, &problem.Drivers); err != nil {
			return nil, fmt.Errorf("decoding drivers of problem %s: %w", p.ID, err)
		}
	}
	for _, r := range rows {
		problem.TestCases = append(problem.TestCases, domain.TestCase(r))
	}
	return problem, nil
}

// UpsertProblem writes a problem and replaces its test cases atomically
func (s *Store) UpsertProblem(ctx context.Context, p *domain.Problem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", s.mapErr(err))
	}
	defer func() { _ = tx.Rollback() }()

	drivers := []byte("{}")
	if len(p.Drivers) > 0 {
		if drivers, err = json.Marshal(p.Drivers); err != nil {
			return fmt.Errorf("encoding drivers of %s: %w", p.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO problems (id, title, slug, time_limit_ms, memory_limit_mb, drivers)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			slug = excluded.slug,
			time_limit_ms = excluded.time_limit_ms,
			memory_limit_mb = excluded.memory_limit_mb,
			drivers = excluded.drivers`),
		p.ID, p.Title, p.Slug, p.TimeLimitMs, p.MemoryLimitMB, string(drivers))
	if err != nil {
		return fmt.Errorf("upserting problem %s: %w", p.ID, s.mapErr(err))
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM test_cases WHERE problem_id = ?`), p.ID); err != nil {
		return fmt.Errorf("clearing test cases of %s: %w", p.ID, s.mapErr(err))
	}

	insert := tx.Rebind(`
		INSERT INTO test_cases (id, problem_id, position, input, expected_output, is_hidden)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for i, tc := range p.TestCases {
		if _, err := tx.ExecContext(ctx, insert, tc.ID, p.ID, i, tc.Input, tc.ExpectedOutput, tc.IsHidden); err != nil {
			return fmt.Errorf("inserting test case %d of %s: %w", i+1, p.ID, s.mapErr(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing problem %s: %w", p.ID, s.mapErr(err))
	}
	return nil
}

// Create inserts a submission
func (s *Store) Create(ctx context.Context, sub *domain.Submission) error {
	results, err := json.Marshal(nonNil(sub.Results))
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO submissions (id, user_id, problem_id, code, language, status, score, results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sub.ID, sub.UserID, sub.ProblemID, sub.Code, sub.Language, string(sub.Status), sub.Score,
		string(results), s.dialect.TimeArg(sub.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting submission: %w", s.mapErr(err))
	}
	return nil
}

// Update writes the terminal state of a submission
func (s *Store) Update(ctx context.Context, id string, update domain.SubmissionUpdate) error {
	results, err := json.Marshal(nonNil(update.Results))
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE submissions SET status = ?, score = ?, results = ? WHERE id = ?`),
		string(update.Status), update.Score, string(results), id)
	if err != nil {
		return fmt.Errorf("updating submission: %w", s.mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating submission: %w", s.mapErr(err))
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSubmissionNotFound, id)
	}
	return nil
}

// ListByUserAndProblem returns a user's submissions for a problem, newest first
func (s *Store) ListByUserAndProblem(ctx context.Context, userID, problemID string) ([]domain.Submission, error) {
	var rows []submissionRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, user_id, problem_id, code, language, status, score, results, created_at
		FROM submissions WHERE user_id = ? AND problem_id = ?
		ORDER BY created_at DESC, id DESC`), userID, problemID)
	if err != nil {
		return nil, fmt.Errorf("querying submissions: %w", s.mapErr(err))
	}

	subs := make([]domain.Submission, 0, len(rows))
	for _, r := range rows {
		sub, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// CountAccepted counts a user's accepted submissions for a problem
func (s *Store) CountAccepted(ctx context.Context, userID, problemID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`
		SELECT COUNT(*) FROM submissions WHERE user_id = ? AND problem_id = ? AND status = ?`),
		userID, problemID, string(domain.VerdictAccepted))
	if err != nil {
		return 0, fmt.Errorf("counting accepted submissions: %w", s.mapErr(err))
	}
	return n, nil
}

// IncrementSolved adds to a user's progress, creating the row on first use
func (s *Store) IncrementSolved(ctx context.Context, userID string, solved, score int) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO user_progress (user_id, problems_solved, total_score)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			problems_solved = user_progress.problems_solved + excluded.problems_solved,
			total_score = user_progress.total_score + excluded.total_score`),
		userID, solved, score)
	if err != nil {
		return fmt.Errorf("updating progress: %w", s.mapErr(err))
	}
	return nil
}

// GetProgress returns a user's aggregate; users without a row have zero progress
func (s *Store) GetProgress(ctx context.Context, userID string) (*domain.UserProgress, error) {
	progress := &domain.UserProgress{UserID: userID}
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		SELECT problems_solved, total_score FROM user_progress WHERE user_id = ?`), userID).
		Scan(&progress.ProblemsSolved, &progress.TotalScore)
	if errors.Is(err, sql.ErrNoRows) {
		return progress, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying progress: %w", s.mapErr(err))
	}
	return progress, nil
}

func nonNil(results []domain.TestResult) []domain.TestResult {
	if results == nil {
		return []domain.TestResult{}
	}
	return results
}
