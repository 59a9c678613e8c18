// Package recorder writes a session to disk: the event log, the result table and a manifest
package recorder

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/lixenwraith/simon-task/engine"
	"github.com/lixenwraith/simon-task/event"
	"github.com/lixenwraith/simon-task/participant"
	"github.com/lixenwraith/simon-task/trial"
)

// Session file names inside the session directory
const (
	EventsFile   = "events.jsonl"
	ResultsFile  = "results.csv"
	ManifestFile = "session.yaml"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ResultStore receives each committed result in addition to the local files
type ResultStore interface {
	CommitResult(ctx context.Context, sessionID string, r trial.Result) error
}

// Options describe the session being recorded
type Options struct {
	// Dir is the parent output directory; the session gets its own subdirectory
	Dir         string
	SessionID   string
	Participant *participant.Participant
	Seed        uint64
	Stimuli     string
	Trials      int
	Store       ResultStore
	Clock       engine.Clock
	Logger      *zap.Logger
}

// Recorder implements engine.ResultSink and event.Sink
type Recorder struct {
	mu  sync.Mutex
	ctx context.Context
	dir string
	log *zap.Logger

	clock    engine.Clock
	store    ResultStore
	manifest Manifest

	eventsFile *os.File
	events     *bufio.Writer
	eventErrs  int

	resultsFile *os.File
	results     *csv.Writer
	header      []string
	// dropped holds keys missing from the header, warned about once each
	dropped map[string]bool

	closed bool
}

// Open creates <Dir>/<SessionID> with empty event and result files and an initial manifest
func Open(ctx context.Context, opts Options) (*Recorder, error) {
	if opts.SessionID == "" {
		return nil, goerr.New("session id required")
	}
	if opts.Participant == nil {
		opts.Participant = participant.New(nil)
	}
	if opts.Clock == nil {
		opts.Clock = engine.NewTimeProvider()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	dir := filepath.Join(opts.Dir, opts.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "create session directory", goerr.V("dir", dir))
	}

	ef, err := os.OpenFile(filepath.Join(dir, EventsFile), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, goerr.Wrap(err, "create event log", goerr.V("dir", dir))
	}
	rf, err := os.OpenFile(filepath.Join(dir, ResultsFile), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		ef.Close()
		return nil, goerr.Wrap(err, "create result table", goerr.V("dir", dir))
	}

	r := &Recorder{
		ctx:         ctx,
		dir:         dir,
		log:         opts.Logger.Named("recorder"),
		clock:       opts.Clock,
		store:       opts.Store,
		eventsFile:  ef,
		events:      bufio.NewWriter(ef),
		resultsFile: rf,
		results:     csv.NewWriter(rf),
		manifest: Manifest{
			SessionID:   opts.SessionID,
			Participant: opts.Participant.Map(),
			Seed:        opts.Seed,
			Stimuli:     opts.Stimuli,
			StartedAt:   opts.Clock.Now().UTC(),
			Trials:      opts.Trials,
		},
	}
	if err := WriteManifest(filepath.Join(dir, ManifestFile), r.manifest); err != nil {
		r.closeFiles()
		return nil, err
	}
	r.log.Info("Recording session.", zap.String("dir", dir))
	return r, nil
}

// Dir is the session directory
func (r *Recorder) Dir() string { return r.dir }

// Push appends one JSON line to the buffered event log; encode failures are counted and logged
func (r *Recorder) Push(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	line, err := json.Marshal(e)
	if err == nil {
		line = append(line, '\n')
		_, err = r.events.Write(line)
	}
	if err != nil {
		r.eventErrs++
		r.log.Warn("Failed to record event.", zap.Error(err), zap.Int("trial", e.Trial))
	}
}

// Commit writes the result row, flushes both files and forwards the result to the store
func (r *Recorder) Commit(res trial.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return goerr.New("recorder closed", goerr.V("trial", res.Trial.Index))
	}

	fields := res.Fields()
	if r.header == nil {
		r.header = make([]string, len(fields))
		for i, f := range fields {
			r.header[i] = f.Key
		}
		if err := r.results.Write(r.header); err != nil {
			return goerr.Wrap(err, "write result header")
		}
	}

	values := make(map[string]string, len(fields))
	for _, f := range fields {
		values[f.Key] = formatValue(f.Value)
	}
	r.warnDropped(res.Trial.Index, values)
	row := make([]string, len(r.header))
	for i, k := range r.header {
		row[i] = values[k]
	}

	var errs []error
	if err := r.results.Write(row); err != nil {
		errs = append(errs, goerr.Wrap(err, "write result row", goerr.V("trial", res.Trial.Index)))
	}
	r.results.Flush()
	if err := r.results.Error(); err != nil {
		errs = append(errs, goerr.Wrap(err, "flush result table"))
	}
	if err := r.events.Flush(); err != nil {
		errs = append(errs, goerr.Wrap(err, "flush event log"))
	}
	r.manifest.Completed++

	if r.store != nil {
		if err := r.store.CommitResult(r.ctx, r.manifest.SessionID, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// warnDropped logs columns the first result did not have; their values stay in the event log and store only
func (r *Recorder) warnDropped(trialIndex int, values map[string]string) {
	known := make(map[string]bool, len(r.header))
	for _, k := range r.header {
		known[k] = true
	}
	for k := range values {
		if known[k] || r.dropped[k] {
			continue
		}
		if r.dropped == nil {
			r.dropped = make(map[string]bool)
		}
		r.dropped[k] = true
		r.log.Warn("Result column not in table header, dropped.", zap.String("column", k), zap.Int("trial", trialIndex))
	}
}

// Close flushes everything and rewrites the manifest with the finish time and completion count
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	finished := r.clock.Now().UTC()
	r.manifest.FinishedAt = &finished
	r.manifest.Aborted = r.manifest.Completed < r.manifest.Trials
	r.manifest.EventErrors = r.eventErrs

	var errs []error
	if err := r.events.Flush(); err != nil {
		errs = append(errs, goerr.Wrap(err, "flush event log"))
	}
	r.results.Flush()
	if err := r.results.Error(); err != nil {
		errs = append(errs, goerr.Wrap(err, "flush result table"))
	}
	errs = append(errs, r.closeFiles())
	if err := WriteManifest(filepath.Join(r.dir, ManifestFile), r.manifest); err != nil {
		errs = append(errs, err)
	}

	r.log.Info("Session recorded.",
		zap.Int("completed", r.manifest.Completed),
		zap.Int("trials", r.manifest.Trials),
		zap.Bool("aborted", r.manifest.Aborted),
	)
	return errors.Join(errs...)
}

// Manifest returns a copy of the current manifest
func (r *Recorder) Manifest() Manifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manifest
}

func (r *Recorder) closeFiles() error {
	return errors.Join(r.eventsFile.Close(), r.resultsFile.Close())
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// SessionFiles returns the paths of the three session files under dir
func SessionFiles(dir string) (events, results, manifest string) {
	return filepath.Join(dir, EventsFile), filepath.Join(dir, ResultsFile), filepath.Join(dir, ManifestFile)
}
