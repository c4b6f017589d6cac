package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"strand/internal/config"
	"strand/internal/jobs"
	"strand/internal/poll"
	"strand/internal/sched"
	"strand/internal/trace"
	"strand/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [dir]",
	Short: "Run the project's build jobs",
	Long:  `Load strand.toml and run its jobs concurrently on the coroutine scheduler`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobs,
}

func init() {
	runCmd.Flags().Bool("ui", false, "show interactive progress (auto-disabled without a terminal)")
	runCmd.Flags().StringSlice("jobs", nil, "run only the named jobs")
	runCmd.Flags().String("trace", "", "write a runtime trace to this path (\"-\" for stderr)")
	runCmd.Flags().String("trace-level", "", "trace verbosity (off|error|task|detail|debug)")
	runCmd.Flags().String("trace-format", "", "trace encoding (text|msgpack)")
}

func runJobs(cmd *cobra.Command, args []string) error {
	startDir := "."
	if len(args) == 1 {
		startDir = args[0]
	}

	manifestPath, ok, err := config.Find(startDir)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no %s found under %q", config.ManifestName, startDir)
	}
	manifest, err := config.Load(manifestPath)
	if err != nil {
		return err
	}

	jobList, err := selectJobs(cmd, manifest)
	if err != nil {
		return err
	}
	if len(jobList) == 0 {
		return fmt.Errorf("manifest %q defines no jobs", manifestPath)
	}

	// Resolve every command up front, in parallel, before the
	// single-threaded loop starts.
	var group errgroup.Group
	for _, job := range jobList {
		job := job
		group.Go(func() error {
			if _, err := exec.LookPath(job.Argv[0]); err != nil {
				return fmt.Errorf("job %q: %w", job.Name, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	tracer, err := buildTracer(cmd, manifest)
	if err != nil {
		return err
	}
	defer func() {
		_ = tracer.Close()
	}()

	poller, err := poll.New()
	if err != nil {
		return err
	}
	defer func() {
		_ = poller.Close()
	}()

	s := sched.New(poller,
		sched.WithTracer(tracer),
		sched.WithPollTimeout(manifest.Config.Sched.PollTimeoutMS))

	useUI, err := cmd.Flags().GetBool("ui")
	if err != nil {
		return err
	}
	useUI = useUI && isTerminal(os.Stdout)

	var events chan jobs.Event
	var uiDone chan error
	if useUI {
		events = make(chan jobs.Event, 64)
		uiDone = make(chan error, 1)
		model := ui.NewProgressModel(manifest.Config.Project.Name, jobList, events)
		prog := tea.NewProgram(model)
		go func() {
			_, err := prog.Run()
			uiDone <- err
		}()
	}

	runner := jobs.NewRunner(s, events)
	if err := runner.Start(jobList); err != nil {
		return err
	}

	started := time.Now()
	loopErr := s.RunLoop()

	if useUI {
		close(events)
		if err := <-uiDone; err != nil {
			fmt.Fprintf(os.Stderr, "progress ui failed: %v\n", err)
		}
	}
	if loopErr != nil {
		if ring, ok := tracer.(*trace.RingTracer); ok {
			_ = ring.Dump(os.Stderr)
		}
		return loopErr
	}

	return printSummary(cmd, runner.Results(), time.Since(started))
}

func selectJobs(cmd *cobra.Command, manifest *config.Manifest) ([]jobs.Job, error) {
	only, err := cmd.Flags().GetStringSlice("jobs")
	if err != nil {
		return nil, err
	}
	all := jobs.FromConfig(manifest.Config.Jobs)
	if len(only) == 0 {
		return all, nil
	}
	byName := make(map[string]jobs.Job, len(all))
	for _, job := range all {
		byName[job.Name] = job
	}
	out := make([]jobs.Job, 0, len(only))
	for _, name := range only {
		job, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown job %q", name)
		}
		out = append(out, job)
	}
	return out, nil
}

func buildTracer(cmd *cobra.Command, manifest *config.Manifest) (trace.Tracer, error) {
	cfg, err := manifest.TraceConfig()
	if err != nil {
		return nil, err
	}
	if path, err := cmd.Flags().GetString("trace"); err != nil {
		return nil, err
	} else if path != "" {
		cfg.OutputPath = path
		if cfg.Level == trace.LevelOff {
			cfg.Level = trace.LevelTask
		}
	}
	if level, err := cmd.Flags().GetString("trace-level"); err != nil {
		return nil, err
	} else if level != "" {
		cfg.Level, err = trace.ParseLevel(level)
		if err != nil {
			return nil, err
		}
	}
	if format, err := cmd.Flags().GetString("trace-format"); err != nil {
		return nil, err
	} else if format != "" {
		cfg.Format, err = trace.ParseFormat(format)
		if err != nil {
			return nil, err
		}
	}
	return trace.New(cfg)
}

func printSummary(cmd *cobra.Command, results []jobs.Result, total time.Duration) error {
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return err
	}
	colorMode, err := cmd.Flags().GetString("color")
	if err != nil {
		return err
	}
	switch colorMode {
	case "off":
		color.NoColor = true
	case "on":
		color.NoColor = false
	default:
		color.NoColor = !isTerminal(os.Stdout)
	}
	okColor := color.New(color.FgGreen, color.Bold)
	failColor := color.New(color.FgRed, color.Bold)

	failed := 0
	for _, res := range results {
		verdict := okColor.Sprint("ok")
		if res.Status != jobs.StatusOK {
			verdict = failColor.Sprint(res.Status.String())
			failed++
		}
		if !quiet {
			fmt.Printf("%-16s %s  %s, %s\n", res.Job.Name, verdict,
				humanize.Bytes(uint64(len(res.Output))), res.Duration.Round(time.Millisecond))
			if res.Status != jobs.StatusOK && len(res.Output) > 0 {
				fmt.Printf("%s\n", res.Output)
			}
			if res.Err != nil {
				fmt.Printf("  %v\n", res.Err)
			}
		}
	}
	if !quiet {
		fmt.Printf("%d job(s) in %s\n", len(results), total.Round(time.Millisecond))
	}
	if failed > 0 {
		return fmt.Errorf("%d job(s) failed", failed)
	}
	return nil
}
