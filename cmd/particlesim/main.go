package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/particlesim/internal/analysis"
	"github.com/san-kum/particlesim/internal/automation"
	"github.com/san-kum/particlesim/internal/config"
	"github.com/san-kum/particlesim/internal/experiment"
	"github.com/san-kum/particlesim/internal/export"
	"github.com/san-kum/particlesim/internal/storage"
	"github.com/san-kum/particlesim/internal/viz"
)

var (
	dataDir  string
	logLevel string
	logJSON  bool

	configFile string
	preset     string
	name       string
	model      string
	workers    int
	ticks      int
	subSteps   int
	dt         float64
	damping    float64
	seed       int64
	scatter    int
	noEmitter  bool

	benchWorkers []int
	warmup       int

	svgScale  float64
	settleTol float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "particlesim",
		Short: "parallel fixed-step particle solver",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd.ErrOrStderr())
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".particlesim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a scene and save it",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	sceneFlags(runCmd)
	runCmd.Flags().StringVar(&name, "name", "run", "run name")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a scene in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	sceneFlags(liveCmd)

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "time a scene across worker counts",
		Args:  cobra.NoArgs,
		RunE:  benchWorkerCounts,
	}
	sceneFlags(benchCmd)
	benchCmd.Flags().IntSliceVar(&benchWorkers, "workers-list", []int{1, 2, 4, 8}, "worker counts to time")
	benchCmd.Flags().IntVar(&warmup, "warmup", 300, "untimed ticks before timing")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id] [metric]",
		Short: "plot run metrics",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  plotRun,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id] [metric]",
		Short: "settling and frequency analysis of a metric",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().Float64Var(&settleTol, "tol", 0.05, "settling band as a fraction of the metric range")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "write the final particle snapshot as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "render the final particle snapshot as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().Float64Var(&svgScale, "scale", 3, "pixels per world unit")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted sequence of scenes",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range config.ListPresets() {
				fmt.Printf("  %s\n", p)
			}
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print the resolved configuration as YAML",
		Args:  cobra.NoArgs,
		RunE:  printConfig,
	}
	sceneFlags(configCmd)

	rootCmd.AddCommand(runCmd, liveCmd, benchCmd, listCmd, showCmd, plotCmd, analyzeCmd, exportCSVCmd, exportSVGCmd, scenarioCmd, presetsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func sceneFlags(cmd *cobra.Command) {
	def := config.DefaultConfig()
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&model, "model", def.Physics.Model, "collision model (positional, momentum)")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker goroutines (0 = NumCPU)")
	cmd.Flags().IntVar(&ticks, "ticks", def.Run.Ticks, "ticks to run")
	cmd.Flags().IntVar(&subSteps, "substeps", def.Physics.SubSteps, "sub-steps per tick")
	cmd.Flags().Float64Var(&dt, "dt", def.Run.Dt, "tick length in seconds")
	cmd.Flags().Float64Var(&damping, "damping", def.Physics.Damping, "velocity damping")
	cmd.Flags().Int64Var(&seed, "seed", def.Emitter.Seed, "random seed")
	cmd.Flags().IntVar(&scatter, "scatter", 0, "randomly placed particles before the first tick")
	cmd.Flags().BoolVar(&noEmitter, "no-emitter", false, "disable the emitter")
}

func setupLogging(w io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if logJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// resolveConfig layers preset, config file and explicitly set flags, in that
// order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.Physics.Model = model
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("ticks") {
		cfg.Run.Ticks = ticks
	}
	if flags.Changed("substeps") {
		cfg.Physics.SubSteps = subSteps
	}
	if flags.Changed("dt") {
		cfg.Run.Dt = dt
	}
	if flags.Changed("damping") {
		cfg.Physics.Damping = damping
	}
	if flags.Changed("seed") {
		cfg.Emitter.Seed = seed
	}
	if flags.Changed("scatter") {
		cfg.Emitter.Scatter = scatter
	}
	if noEmitter {
		cfg.Emitter.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp, err := experiment.New(name, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer exp.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %s (%s, %d workers)...\n", name, cfg.Physics.Model, exp.Workers())
	result, err := exp.Run(ctx)
	if err != nil && (result == nil || !errors.Is(err, context.Canceled)) {
		return err
	}
	if err != nil {
		slog.Warn("run_interrupted", "tick", result.Ticks, "err", err)
	}

	runID, err := st.Save(exp.Info(), result, exp.Solver().Particles())
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", result.Wall)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("ticks: %d\n", result.Ticks)
	fmt.Printf("particles: %d\n", result.Particles)
	fmt.Println("\nmetrics:")
	for _, m := range sortedKeys(result.Metrics) {
		fmt.Printf("  %s: %.6f\n", m, result.Metrics[m])
	}

	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// The alt screen owns the terminal, so logs are discarded.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exp, err := experiment.New("live", cfg, logger)
	if err != nil {
		return err
	}
	defer exp.Close()

	title := cfg.Physics.Model
	if preset != "" {
		title = preset
	}
	return viz.Run(exp.Runner(), cfg.Run.Dt, title)
}

func benchWorkerCounts(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	results, err := automation.RunSweep(ctx, &automation.WorkerSweep{
		Config:  cfg,
		Workers: benchWorkers,
		Warmup:  warmup,
		Ticks:   cfg.Run.Ticks,
	}, slog.Default())
	if err != nil {
		return err
	}

	fmt.Printf("benchmarking %s, %d warmup ticks\n\n", cfg.Physics.Model, warmup)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKERS\tPARTICLES\tTICKS\tTIME\tTICKS/SEC\tSPEEDUP")

	base := 0.0
	for i, r := range results {
		if i == 0 {
			base = r.TicksPerSec
		}
		speedup := 0.0
		if base > 0 {
			speedup = r.TicksPerSec / base
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%v\t%.1f\t%.2fx\n",
			r.Workers, r.Particles, r.Ticks, r.Elapsed, r.TicksPerSec, speedup)
	}

	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tWORLD\tWORKERS\tTICKS\tPARTICLES\tTICKS/SEC")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%d\t%d\t%d\t%.1f\n",
			run.ID,
			run.Info.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Info.Width, run.Info.Height,
			run.Info.Workers,
			run.Ticks,
			run.Particles,
			run.TicksPerSec,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}
	if len(series.Times) == 0 {
		return fmt.Errorf("no data to plot")
	}

	names := series.Names()
	if len(args) == 2 {
		if _, ok := series.Columns[args[1]]; !ok {
			return fmt.Errorf("unknown metric: %s (available: %s)", args[1], strings.Join(names, ", "))
		}
		names = []string{args[1]}
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Info.Model)
	fmt.Printf("samples: %d\n\n", len(series.Times))

	for _, n := range names {
		graph := asciigraph.Plot(series.Columns[n],
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(n),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	metric := "kinetic_energy"
	if len(args) == 2 {
		metric = args[1]
	}

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}
	values, ok := series.Columns[metric]
	if !ok {
		return fmt.Errorf("unknown metric: %s (available: %s)", metric, strings.Join(series.Names(), ", "))
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("metric: %s\n\n", metric)

	if idx := analysis.SettleIndex(values, settleTol); idx >= 0 && idx < len(values) {
		fmt.Printf("settled at tick %d (t=%.3fs)\n", idx+1, series.Times[idx])
	} else {
		fmt.Println("not settled")
	}

	peak, err := analysis.DominantFrequency(values, meta.Info.Dt)
	if err != nil {
		return err
	}
	fmt.Printf("dominant frequency: %.4f Hz (period %.3fs)\n", peak.Frequency, peak.Period)

	peaks, err := analysis.PowerSpectrum(values, meta.Info.Dt)
	if err != nil {
		return err
	}
	power := make([]float64, len(peaks)-1)
	for i, p := range peaks[1:] {
		power[i] = p.Power
	}
	fmt.Println()
	fmt.Println(asciigraph.Plot(power,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("power spectrum"),
	))

	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	records, err := st.LoadSnapshot(args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no data to export")
	}
	return storage.WriteSnapshot(os.Stdout, records)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	records, err := st.LoadSnapshot(runID)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(os.Stdout, export.SnapshotToSVG(records, meta.Info.Width, meta.Info.Height, svgScale))
	return err
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("scenario: %s\n", scenario.Name)
	if scenario.Description != "" {
		fmt.Printf("  %s\n", scenario.Description)
	}
	results, err := automation.RunScenario(ctx, scenario, st, slog.Default())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tNAME\tPARTICLES\tTICKS\tTICKS/SEC\tRUN ID")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%.1f\t%s\n", r.Step, r.Name, r.Particles, r.Ticks, r.TicksPerSec, r.RunID)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func printConfig(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
