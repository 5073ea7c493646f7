// Package main is the entry point for the mvmnt timing & transport CLI.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Maokus/MVMNT-sub000/api"
	"github.com/Maokus/MVMNT-sub000/config"
	"github.com/Maokus/MVMNT-sub000/debug"
	"github.com/Maokus/MVMNT-sub000/engine"
	"github.com/Maokus/MVMNT-sub000/exporter"
	"github.com/Maokus/MVMNT-sub000/midi"
	"github.com/Maokus/MVMNT-sub000/theme"
	"github.com/Maokus/MVMNT-sub000/timing"
	"github.com/Maokus/MVMNT-sub000/transport"
	"github.com/Maokus/MVMNT-sub000/tui"
)

var (
	debugLog   bool
	serverPort int
	outputFile string
	exportFPS  float64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mvmnt",
	Short: "Musical timing and transport engine",
	Long: `mvmnt maintains a single authoritative musical-time position, converts
between tick/beat/second domains under a tempo map, and compiles look-ahead
schedules for rendering and export.

Examples:
  mvmnt tui song.mid
  mvmnt serve song.mid --port 8080
  mvmnt export song.mid -o rendered.mid
  mvmnt inspect song.mid`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debugLog {
			if err := debug.Enable(); err != nil {
				fmt.Fprintf(os.Stderr, "debug log unavailable: %v\n", err)
			}
		}
	},
}

var tuiCmd = &cobra.Command{
	Use:   "tui [file.mid]",
	Short: "Run the interactive transport panel",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve [file.mid]",
	Short: "Run the HTTP transport control API",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runServe,
}

var exportCmd = &cobra.Command{
	Use:   "export <file.mid>",
	Short: "Render the compiled schedule to a MIDI file under frozen timing",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.mid>",
	Short: "Print timing information about a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "write a debug trace to ~/.config/mvmnt/debug.log")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "port for the control API")
	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file (default: input with .export.mid)")
	exportCmd.Flags().Float64Var(&exportFPS, "fps", 0, "frame rate for the export report (default from config)")

	rootCmd.AddCommand(tuiCmd, serveCmd, exportCmd, inspectCmd)
}

// buildManager assembles an engine from config, optionally loading a file.
func buildManager(file string, withOutput bool) (*engine.Manager, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	tm := timing.MustTempoMap(nil, timing.DefaultPPQ)
	var out *midi.Output
	if withOutput {
		out = midi.NewOutput(cfg.MIDI.DefaultPort)
	}

	m := engine.NewManager(tm, cfg.Transport.BeatsPerBar, out)

	if file != "" {
		im, err := midi.ImportFile(file)
		if err != nil {
			return nil, nil, err
		}
		if _, err := m.LoadImport(im); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Transport.Rate > 0 {
		m.SetRate(cfg.Transport.Rate)
	}
	if cfg.Transport.Quantize == "bar" {
		m.SetQuantize(transport.QuantizeBar)
	}
	if cfg.Transport.LoopEnabled {
		m.SetLoop(cfg.Transport.LoopStart, cfg.Transport.LoopEnd, true)
	}
	return m, cfg, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	file := ""
	if len(args) == 1 {
		file = args[0]
	}

	m, _, err := buildManager(file, true)
	if err != nil {
		return err
	}
	m.StartRuntime()
	defer m.Stop()

	model := tui.NewModel(m, theme.New())
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	file := ""
	if len(args) == 1 {
		file = args[0]
	}

	m, _, err := buildManager(file, true)
	if err != nil {
		return err
	}
	m.StartRuntime()
	defer m.Stop()

	fmt.Printf("mvmnt transport API on :%d\n", serverPort)
	return api.StartServer(m, serverPort)
}

func runExport(cmd *cobra.Command, args []string) error {
	m, cfg, err := buildManager(args[0], false)
	if err != nil {
		return err
	}

	fps := exportFPS
	if fps <= 0 {
		fps = cfg.Export.FPS
	}
	if fps <= 0 {
		fps = 30
	}

	ctl := m.Controller()
	snap := exporter.NewSnapshot(ctl.TempoMap(), ctl.Rate())

	end := ctl.ContentMax()
	batch := m.Scheduler().CompileWindow(0, end+1, ctl.Epoch())

	out := outputFile
	if out == "" {
		out = args[0] + ".export.mid"
	}
	if err := exporter.WriteSMFFile(out, batch.Entries, snap); err != nil {
		return err
	}

	frames := int(snap.TickToSeconds(end)*fps) + 1
	fmt.Printf("wrote %s: %d events, %d frames at %.0f fps\n", out, len(batch.Entries), frames, fps)
	for _, w := range batch.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	im, err := midi.ImportFile(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", args[0])
	fmt.Printf("  ppq:      %d\n", im.PPQ)
	fmt.Printf("  end tick: %d\n", im.EndTick())

	tm, err := timing.NewTempoMap(im.Tempo, im.PPQ)
	if err != nil {
		return fmt.Errorf("tempo map: %w", err)
	}
	fmt.Printf("  duration: %.3fs\n", tm.TicksToSeconds(im.EndTick()))

	if len(im.Tempo) == 0 {
		fmt.Printf("  tempo:    %.1f bpm (default)\n", timing.DefaultBPM)
	}
	for _, e := range im.Tempo {
		fmt.Printf("  tempo:    %8.3fs  %.2f bpm\n", e.TimeSec, e.BPM)
	}

	for i, td := range im.Tracks {
		fmt.Printf("  track %d:  %-24s %d events\n", i+1, td.Name, len(td.Events))
	}
	return nil
}
