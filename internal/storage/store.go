package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/particlesim/internal/particle"
	"github.com/san-kum/particlesim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	seriesFile   = "series.csv"
	snapshotFile = "particles.csv"
)

// ErrRunNotFound is returned when a run directory has no metadata.
var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunInfo describes how a run was configured.
type RunInfo struct {
	Name     string  `json:"name"`
	Model    string  `json:"model"`
	Workers  int     `json:"workers"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	SubSteps int     `json:"sub_steps"`
	Dt       float64 `json:"dt"`
	Seed     int64   `json:"seed"`
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	Info        RunInfo            `json:"info"`
	Ticks       int                `json:"ticks"`
	Particles   int                `json:"particles"`
	WallSeconds float64            `json:"wall_seconds"`
	TicksPerSec float64            `json:"ticks_per_sec"`
	Dropped     int                `json:"dropped"`
	Metrics     map[string]float64 `json:"metrics"`
}

// ParticleRecord is one row of particles.csv.
type ParticleRecord struct {
	ID   int     `csv:"id"`
	X    float64 `csv:"x"`
	Y    float64 `csv:"y"`
	VX   float64 `csv:"vx"`
	VY   float64 `csv:"vy"`
	Mass float64 `csv:"mass"`
	R    float32 `csv:"r"`
	G    float32 `csv:"g"`
	B    float32 `csv:"b"`
}

// Series is the per-tick metric record of a run.
type Series struct {
	Times   []float64
	Columns map[string][]float64
}

// Names returns the metric columns in file order.
func (s *Series) Names() []string {
	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes a run directory and returns its ID. snapshot is the final
// population; velocities are derived over the last sub-step.
func (s *Store) Save(info RunInfo, result *sim.Result, snapshot particle.View) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}
	runID, runDir, err := s.newRunDir(info.Name)
	if err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Timestamp:   time.Now(),
		Info:        info,
		Ticks:       result.Ticks,
		Particles:   result.Particles,
		WallSeconds: result.Wall.Seconds(),
		Dropped:     result.Stats.Dropped,
		Metrics:     result.Metrics,
	}
	if result.Wall > 0 {
		meta.TicksPerSec = float64(result.Ticks) / result.Wall.Seconds()
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	series := &Series{Times: result.Times, Columns: result.Series}
	if err := writeSeries(filepath.Join(runDir, seriesFile), series); err != nil {
		return "", err
	}

	subDt := 0.0
	if info.SubSteps > 0 {
		subDt = info.Dt / float64(info.SubSteps)
	}
	if err := writeSnapshot(filepath.Join(runDir, snapshotFile), snapshot, subDt); err != nil {
		return "", err
	}

	return runID, nil
}

// newRunDir creates a fresh directory named after the run and the current
// time, adding a counter when that name is taken.
func (s *Store) newRunDir(name string) (string, string, error) {
	if name == "" {
		name = "run"
	}
	base := fmt.Sprintf("%s_%d", name, time.Now().Unix())
	runID := base
	for i := 2; ; i++ {
		runDir := filepath.Join(s.baseDir, runID)
		err := os.Mkdir(runDir, 0755)
		if err == nil {
			return runID, runDir, nil
		}
		if !os.IsExist(err) {
			return "", "", err
		}
		runID = fmt.Sprintf("%s_%d", base, i)
	}
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeSeries writes one row per tick: time followed by the metric columns
// in name order.
func writeSeries(path string, series *Series) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	names := series.Names()
	if err := w.Write(append([]string{"time"}, names...)); err != nil {
		return err
	}

	row := make([]string, len(names)+1)
	for i, t := range series.Times {
		row[0] = strconv.FormatFloat(t, 'f', 6, 64)
		for j, name := range names {
			col := series.Columns[name]
			val := 0.0
			if i < len(col) {
				val = col[i]
			}
			row[j+1] = strconv.FormatFloat(val, 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func writeSnapshot(path string, v particle.View, subDt float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return WriteSnapshot(f, Records(v, subDt))
}

// Records converts a population into snapshot rows.
func Records(v particle.View, subDt float64) []*ParticleRecord {
	records := make([]*ParticleRecord, v.Len())
	for i := range records {
		p := v.Position(i)
		var vel r2.Vec
		if subDt > 0 {
			vel = v.Velocity(i, subDt)
		}
		c := v.Color(i)
		records[i] = &ParticleRecord{
			ID: i, X: p.X, Y: p.Y, VX: vel.X, VY: vel.Y,
			Mass: v.Mass(i), R: c.R, G: c.G, B: c.B,
		}
	}
	return records
}

// WriteSnapshot writes records as CSV with a header row.
func WriteSnapshot(w io.Writer, records []*ParticleRecord) error {
	return gocsv.Marshal(records, w)
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadSeries(runID string) (*Series, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, seriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("storage: %s series: %w", runID, err)
	}

	series := &Series{Columns: make(map[string][]float64)}
	if len(records) == 0 {
		return series, nil
	}

	header := records[0]
	for _, name := range header[1:] {
		series.Columns[name] = make([]float64, 0, len(records)-1)
	}
	for line, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			vals[j], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("storage: %s series line %d: %w", runID, line+2, err)
			}
		}
		series.Times = append(series.Times, vals[0])
		for j, name := range header[1:] {
			series.Columns[name] = append(series.Columns[name], vals[j+1])
		}
	}
	return series, nil
}

func (s *Store) LoadSnapshot(runID string) ([]*ParticleRecord, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, snapshotFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	var records []*ParticleRecord
	err = gocsv.UnmarshalFile(file, &records)
	if errors.Is(err, gocsv.ErrEmptyCSVFile) {
		return []*ParticleRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: %s snapshot: %w", runID, err)
	}
	return records, nil
}
