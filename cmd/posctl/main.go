package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/posctl/internal/automation"
	"github.com/san-kum/posctl/internal/config"
	"github.com/san-kum/posctl/internal/experiment"
	"github.com/san-kum/posctl/internal/logging"
	"github.com/san-kum/posctl/internal/metrics"
	"github.com/san-kum/posctl/internal/optim"
	"github.com/san-kum/posctl/internal/storage"
)

var (
	configFile string
	preset     string
	dataDir    string
	logLevel   string

	duration   time.Duration
	tick       time.Duration
	maxSpeed   float64
	threshold  float64
	step       float64
	model      string
	integrator string
	openLoop   bool
	listen     string
	remote     string

	scenarioFile string
	runName      string
	noSave       bool
	series       []string
	sweepParams  []string
	sweepMetric  string
	workers      int
	enableAtBoot bool
	noServer     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "posctl",
		Short:         "closed-loop position control with a live tuning dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runConsole,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "start from a preset configuration")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "run storage directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	addConfigFlags(rootCmd)
	rootCmd.Flags().BoolVar(&noServer, "no-server", false, "do not serve the dashboard")

	consoleCmd := &cobra.Command{
		Use:   "console",
		Short: "drive the simulated actuator from the terminal",
		Args:  cobra.NoArgs,
		RunE:  runConsole,
	}
	addConfigFlags(consoleCmd)
	consoleCmd.Flags().BoolVar(&noServer, "no-server", false, "do not serve the dashboard")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the control loop headless behind the dashboard server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	addConfigFlags(serveCmd)
	serveCmd.Flags().BoolVar(&enableAtBoot, "enable", false, "enable position control on start")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a scripted scenario against the simulated actuator",
		Args:  cobra.NoArgs,
		RunE:  runScenario,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().StringVar(&scenarioFile, "scenario", "", "scenario file (yaml); default is a single step")
	runCmd.Flags().StringVar(&runName, "name", "", "name stored with the run")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&series, "series", []string{"position", "command"}, "series to plot")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id] [file]",
		Short: "export a run with its samples to JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  exportJSON,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMODEL\tMAX SPEED\tTHRESHOLD\tSTEP\tLOOP")
			for _, name := range config.ListPresets() {
				c := config.GetPreset(name)
				loop := "closed"
				if !c.ClosedLoop {
					loop = "open"
				}
				fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%g\t%s\n", name, c.Plant.Model, c.MaxSpeed, c.Threshold, c.Step, loop)
			}
			return w.Flush()
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "write the effective configuration to a yaml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}
	addConfigFlags(initCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "grid search controller settings over simulated runs",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&scenarioFile, "scenario", "", "scenario file (yaml); default is a single step")
	sweepCmd.Flags().StringArrayVar(&sweepParams, "param", []string{"max_speed=0.3:1:8", "threshold=0.0005:0.05:5"}, "name=lo:hi:n, repeatable")
	sweepCmd.Flags().StringVar(&sweepMetric, "metric", "settling_time", "metric to minimise: "+strings.Join(metrics.Names(), ", "))
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "parallel runs (default GOMAXPROCS)")

	rootCmd.AddCommand(consoleCmd, serveCmd, runCmd, listCmd, plotCmd, exportCmd, exportJSONCmd, presetsCmd, initCmd, sweepCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.DurationVar(&duration, "time", config.DefaultDuration, "run duration")
	f.DurationVar(&tick, "tick", config.DefaultTick, "control period")
	f.Float64Var(&maxSpeed, "max-speed", 0, "speed cap in (0, 1]")
	f.Float64Var(&threshold, "threshold", 0, "arrival tolerance in rotations")
	f.Float64Var(&step, "step", 0, "rotations per increase/decrease press")
	f.StringVar(&model, "model", config.DefaultModel, "motor model")
	f.StringVar(&integrator, "integrator", config.DefaultIntegrator, "integrator")
	f.BoolVar(&openLoop, "open-loop", false, "drive by duty cycle with no gain sync")
	f.StringVar(&listen, "listen", config.DefaultListen, "dashboard listen address")
	f.StringVar(&remote, "remote", "", "use the dashboard server at this URL")
}

// loadConfig starts from the defaults, then the preset, then the config
// file. Flags override only when given explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, errors.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("tick") {
		cfg.Tick = tick
	}
	if flags.Changed("max-speed") {
		cfg.MaxSpeed = maxSpeed
	}
	if flags.Changed("threshold") {
		cfg.Threshold = threshold
	}
	if flags.Changed("step") {
		cfg.Step = step
	}
	if flags.Changed("model") {
		cfg.Plant.Model = model
	}
	if flags.Changed("integrator") {
		cfg.Plant.Integrator = integrator
	}
	if flags.Changed("open-loop") {
		cfg.ClosedLoop = !openLoop
	}
	if flags.Changed("listen") {
		cfg.Telemetry.Listen = listen
	}
	if flags.Changed("remote") {
		cfg.Telemetry.Remote = remote
	}
	if flags.Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("data") || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	return logging.New("posctl", cfg.LogLevel)
}

// fileLogger writes to a log file in the data directory so log lines do not
// tear the console.
func fileLogger(cfg *config.Config) (*zap.SugaredLogger, string, error) {
	lvl, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, "", errors.Wrap(err, "creating data directory")
	}
	path := filepath.Join(cfg.DataDir, "posctl.log")
	logger, err := logging.NewAt("posctl", lvl, path)
	return logger, path, err
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadScenario(duration time.Duration) (*automation.Scenario, error) {
	if scenarioFile == "" {
		return automation.StepScenario(duration), nil
	}
	return automation.LoadScenario(scenarioFile)
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	scenario, err := loadScenario(cfg.Duration)
	if err != nil {
		return err
	}
	runCfg, err := scenario.Config(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	registry := experiment.NewRegistry()
	start := time.Now()
	result, err := automation.RunScenario(ctx, scenario, cfg, registry, logger)
	if err != nil {
		return err
	}

	final := result.Final()
	fmt.Printf("scenario: %s\n", scenario.Name)
	fmt.Printf("samples:  %d (%v wall)\n", len(result.Records), time.Since(start).Round(time.Millisecond))
	fmt.Printf("final:    position %.4f  target %.4f  command %.4f\n", final.Position, final.Target, final.Command)
	fmt.Printf("writes:   %d gain writes, %d tick errors\n\n", result.Writes, result.TickErrors)
	printMetrics(result.Metrics)

	if noSave {
		return nil
	}
	st := storage.New(cfg.DataDir)
	if err := st.Init(); err != nil {
		return err
	}
	name := runName
	if name == "" {
		name = scenario.Name
	}
	runID, err := st.Save(name, runCfg, result)
	if err != nil {
		return err
	}
	fmt.Printf("\nsaved: %s\n", runID)
	return nil
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%.4f\n", name, m[name])
	}
	w.Flush()
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
	fmt.Fprintln(w, "ID\tNAME\tTIME\tMODEL\tDURATION\tMAX SPEED\tSETTLING\tWRITES")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2fs\t%g\t%.3fs\t%d\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Model,
			run.Duration,
			run.MaxSpeed,
			run.Metrics["settling_time"],
			run.Writes,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	records, err := st.LoadRecords(runID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.New("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("motor: %s (%s)\n", meta.Motor, meta.Model)
	fmt.Printf("samples: %d\n\n", len(records))

	result := &experiment.Result{Records: records}
	for _, name := range series {
		data, err := result.Series(name)
		if err != nil {
			return err
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s vs time", name)),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, &storage.ExportData{Run: *meta})
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	data, err := st.Export(args[0])
	if err != nil {
		return err
	}
	if len(args) == 1 {
		return storage.ExportJSON(os.Stdout, data)
	}
	if err := storage.ExportJSONFile(args[1], data); err != nil {
		return err
	}
	fmt.Printf("exported %d samples to %s\n", len(data.Records), args[1])
	return nil
}

// parseSweepParam reads name=lo:hi:n.
func parseSweepParam(s string) (string, []float64, error) {
	name, spec, ok := strings.Cut(s, "=")
	if !ok {
		return "", nil, errors.Errorf("sweep parameter %q: want name=lo:hi:n", s)
	}
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return "", nil, errors.Errorf("sweep parameter %q: want name=lo:hi:n", s)
	}
	lo, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return "", nil, errors.Wrapf(err, "sweep parameter %q", s)
	}
	hi, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", nil, errors.Wrapf(err, "sweep parameter %q", s)
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 1 {
		return "", nil, errors.Errorf("sweep parameter %q: count must be a positive integer", s)
	}
	return strings.TrimSpace(name), optim.Linspace(lo, hi, n), nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var names []string
	var ranges [][]float64
	for _, s := range sweepParams {
		name, values, err := parseSweepParam(s)
		if err != nil {
			return err
		}
		if err := optim.Apply(cfg.Clone(), name, values[0]); err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	scenario, err := loadScenario(cfg.Duration)
	if err != nil {
		return err
	}
	base, err := scenario.Config(cfg)
	if err != nil {
		return err
	}
	actions, err := scenario.Actions()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	gs := optim.NewGridSearch(names, ranges)
	gs.SetWorkers(workers)
	fmt.Printf("sweeping %d points over %s, minimising %s\n\n", len(gs.Points()), strings.Join(names, " x "), sweepMetric)

	evals, err := gs.Search(ctx, optim.Builder(base, experiment.NewRegistry(), actions), sweepMetric)
	if len(evals) == 0 {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(append(append([]string(nil), names...), sweepMetric), "\t")))
	limit := len(evals)
	if limit > 10 {
		limit = 10
	}
	for _, ev := range evals[:limit] {
		cols := make([]string, 0, len(names)+1)
		for _, name := range names {
			cols = append(cols, strconv.FormatFloat(ev.Params[name], 'g', 4, 64))
		}
		if ev.Err != nil {
			cols = append(cols, "error: "+ev.Err.Error())
		} else {
			cols = append(cols, fmt.Sprintf("%.4f", ev.Metrics[sweepMetric]))
		}
		fmt.Fprintln(w, strings.Join(cols, "\t"))
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}
