package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/logger"
)

const (
	indexFile    = "report.json"
	scenariosDir = "scenarios"
)

// Writer keeps report.json current while a run progresses. Its methods
// match the executor's progress callbacks and are safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	dir   string
	index *Index
	log   *zap.Logger
	now   func() time.Time
}

// NewWriter creates dir and writes an initial report.json.
func NewWriter(dir string, runner RunnerInfo, log *zap.Logger) (*Writer, error) {
	if err := os.MkdirAll(filepath.Join(dir, scenariosDir), 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	w := &Writer{
		dir: dir,
		log: logger.Or(log).Named("report"),
		now: time.Now,
	}
	now := w.now()
	w.index = &Index{
		Version:   Version,
		Status:    StatusRunning,
		StartTime: now,
		Runner:    runner,
		Scenarios: []ScenarioEntry{},
	}
	if err := w.flushLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

// Dir returns the report directory.
func (w *Writer) Dir() string { return w.dir }

// ScenarioStarted marks scenario idx as running.
func (w *Writer) ScenarioStarted(idx, total int, name, file string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.grow(total)
	now := w.now()
	e := &w.index.Scenarios[idx]
	e.Name = name
	e.SourceFile = file
	e.Status = StatusRunning
	e.StartTime = &now
	w.flush()
}

// ScenarioFinished writes the scenario detail file and updates its entry.
// Scenarios are matched to entries in start order.
func (w *Writer) ScenarioFinished(res *core.ScenarioResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := -1
	for i := range w.index.Scenarios {
		if w.index.Scenarios[i].Status == StatusRunning {
			idx = i
			break
		}
	}
	if idx < 0 {
		w.grow(len(w.index.Scenarios) + 1)
		idx = len(w.index.Scenarios) - 1
	}
	w.record(idx, res)
	w.flush()
}

// Finish records the final suite result. Scenarios that never started
// (skipped after an abort or cancellation) get entries and detail files here.
func (w *Writer) Finish(suite *core.SuiteResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.grow(len(suite.Scenarios))
	for i := range suite.Scenarios {
		if !w.index.Scenarios[i].Status.IsTerminal() {
			w.record(i, &suite.Scenarios[i])
		}
	}

	end := suite.StartTime.Add(suite.Duration)
	d := suite.Duration.Milliseconds()
	w.index.RunID = suite.RunID
	w.index.StartTime = suite.StartTime
	w.index.EndTime = &end
	w.index.Duration = &d
	w.index.Aborted = suite.Aborted
	w.index.Status = StatusPassed
	if !suite.Success() {
		w.index.Status = StatusFailed
	}
	return w.flushLocked()
}

// grow makes sure entries 0..n-1 exist.
func (w *Writer) grow(n int) {
	for i := len(w.index.Scenarios); i < n; i++ {
		id := uuid.NewString()
		w.index.Scenarios = append(w.index.Scenarios, ScenarioEntry{
			Index:    i,
			ID:       id,
			DataFile: filepath.ToSlash(filepath.Join(scenariosDir, fmt.Sprintf("scenario-%03d.json", i))),
			Status:   StatusPending,
		})
	}
}

func (w *Writer) record(idx int, res *core.ScenarioResult) {
	e := &w.index.Scenarios[idx]
	e.Name = res.Name
	e.SourceFile = res.FilePath
	e.Tags = res.Tags
	e.Status = StatusOf(res.Status)
	e.Aborted = res.Aborted
	e.Steps = StepSummary{
		Total:   res.TotalSteps,
		Passed:  res.PassedSteps,
		Failed:  res.FailedSteps,
		Skipped: res.SkippedSteps,
		Warned:  res.WarnedSteps,
		Flaky:   res.FlakySteps,
	}
	if res.Error != "" {
		msg := res.Error
		e.Error = &msg
	}
	if !res.StartTime.IsZero() {
		start := res.StartTime
		end := start.Add(res.Duration)
		d := res.Duration.Milliseconds()
		e.StartTime, e.EndTime, e.Duration = &start, &end, &d
	}

	detail := ScenarioDetail{
		ID:         e.ID,
		Name:       res.Name,
		SourceFile: res.FilePath,
		Tags:       res.Tags,
		Status:     e.Status,
		StartTime:  res.StartTime,
		Duration:   res.Duration.Milliseconds(),
		Error:      res.Error,
		Aborted:    res.Aborted,
		Before:     stepsFrom("before", res.Before),
		Steps:      stepsFrom("steps", res.Steps),
		After:      stepsFrom("after", res.After),
	}
	if detail.Steps == nil {
		detail.Steps = []Step{}
	}
	if err := atomicWriteJSON(filepath.Join(w.dir, filepath.FromSlash(e.DataFile)), detail); err != nil {
		w.log.Warn("failed to write scenario detail", zap.String("file", e.DataFile), zap.Error(err))
	}
}

// flush writes report.json, logging failures. Progress reporting never
// fails a run.
func (w *Writer) flush() {
	if err := w.flushLocked(); err != nil {
		w.log.Warn("failed to write report index", zap.Error(err))
	}
}

func (w *Writer) flushLocked() error {
	w.index.UpdateSeq++
	w.index.LastUpdated = w.now()
	w.index.Summary = summarize(w.index.Scenarios)
	return atomicWriteJSON(filepath.Join(w.dir, indexFile), w.index)
}

func summarize(entries []ScenarioEntry) Summary {
	s := Summary{Total: len(entries)}
	for _, e := range entries {
		switch e.Status {
		case StatusPassed, StatusWarned:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusRunning:
			s.Running++
		default:
			s.Pending++
		}
	}
	return s
}

// atomicWriteJSON writes v to path via a temp file and rename so readers
// never see a partial file.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

// ReadReport loads report.json and every scenario detail file from dir.
// Details are returned in index order; a missing detail file is an error.
func ReadReport(dir string) (*Index, []ScenarioDetail, error) {
	var index Index
	if err := readJSON(filepath.Join(dir, indexFile), &index); err != nil {
		return nil, nil, err
	}
	details := make([]ScenarioDetail, 0, len(index.Scenarios))
	for _, e := range index.Scenarios {
		var d ScenarioDetail
		if err := readJSON(filepath.Join(dir, filepath.FromSlash(e.DataFile)), &d); err != nil {
			return nil, nil, err
		}
		details = append(details, d)
	}
	return &index, details, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path) //#nosec G304 -- report files under the output dir
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
