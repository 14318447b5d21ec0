package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/rstmdb/rstmload/internal/metrics"
)

// RunConfig holds load run parameters for display.
type RunConfig struct {
	Server         string        // host:port of the rstmdb server
	TLS            bool          // whether sessions use TLS
	Machine        string        // machine name and version, e.g. loadtest-x@1
	Instances      int           // total instances
	Events         int           // APPLY_EVENT calls per instance
	Workers        int           // number of workers
	Concurrency    int           // workers running at once
	Rate           int           // operations per second (0 = unlimited)
	ArrivalModel   string        // uniform or poisson
	RequestTimeout time.Duration // per-request timeout
	ConfigFile     string        // path to config file if used
}

// ExpectedOperations is the number of operations a run performs when nothing
// fails: create, each event, get and delete per instance.
func (c RunConfig) ExpectedOperations() int64 {
	return int64(c.Instances) * int64(c.Events+3)
}

// Dashboard renders a live terminal UI for load run metrics.
type Dashboard struct {
	collector    *metrics.Collector
	active       func() int
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	progressGauge  *widgets.Gauge
	opsTable       *widgets.Table
	errorList      *widgets.List
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph
	latencyHistory []float64
	cfg            RunConfig
}

// New creates a new Dashboard. active reports how many workers currently hold
// a concurrency slot and may be nil.
func New(collector *metrics.Collector, active func() int, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		collector:      collector,
		active:         active,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, 100),
		cfg:            cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "apply_event p99 (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Real-time Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Progress"
	d.progressGauge.Percent = 0
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.opsTable = widgets.NewTable()
	d.opsTable.Title = "Operations"
	d.opsTable.Rows = formatOperationRows(nil)
	d.opsTable.TextStyle = ui.NewStyle(ui.ColorWhite)
	d.opsTable.RowSeparator = false
	d.opsTable.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Errors"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Totals"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.18,
			ui.NewCol(0.5, d.progressGauge),
			ui.NewCol(0.5, d.metricsPara),
		),
		ui.NewRow(0.26,
			ui.NewCol(1.0, d.latencySparkle),
		),
		ui.NewRow(0.40,
			ui.NewCol(0.65, d.opsTable),
			ui.NewCol(0.35, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and cleans up.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// wait for Stop to cancel the context
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the collector.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	snaps := d.collector.Snapshots()
	elapsed := d.collector.Elapsed()

	var total, errs int64
	var rate float64
	for _, s := range snaps {
		total += s.Count
		errs += s.Errors
		rate += s.Throughput
	}

	apply := snaps[metrics.KindApplyEvent]
	if apply.Count > apply.Errors {
		p99 := float64(apply.P99) / float64(time.Millisecond)
		d.latencyHistory = append(d.latencyHistory, p99)
		if len(d.latencyHistory) > 100 {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Real-time Latency | apply_event p50: %.2fms | p99: %.2fms",
			float64(apply.P50)/float64(time.Millisecond),
			p99,
		)
	}

	expected := d.cfg.ExpectedOperations()
	d.progressGauge.Percent = progressPercent(total, expected)
	d.progressGauge.Label = fmt.Sprintf("%d / %d ops", total, expected)

	successRate := 0.0
	if total > 0 {
		successRate = float64(total-errs) / float64(total) * 100
	}
	activeWorkers := 0
	if d.active != nil {
		activeWorkers = d.active()
	}

	d.summaryPara.Text = fmt.Sprintf(
		"Server: %s | Machine: %s\n%s\nElapsed: %s | Active workers: %d | Success Rate: %.1f%%",
		d.cfg.Server,
		d.cfg.Machine,
		formatRunParams(d.cfg),
		elapsed.Round(time.Second),
		activeWorkers,
		successRate,
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Operations:        %d\nSuccessful:        %d\nFailed:            %d\nOps/sec:           %.2f",
		total,
		total-errs,
		errs,
		rate,
	)

	d.opsTable.Rows = formatOperationRows(snaps)
	d.errorList.Rows = formatErrorRows(snaps, 10)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func progressPercent(done, expected int64) int {
	if expected <= 0 {
		return 0
	}
	pct := int(done * 100 / expected)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func formatOperationRows(snaps []metrics.Snapshot) [][]string {
	rows := [][]string{{"Operation", "Count", "Errors", "Ops/s", "P50", "P99"}}
	if len(snaps) == 0 {
		return append(rows, []string{"Awaiting data", "", "", "", "", ""})
	}
	for _, s := range snaps {
		rows = append(rows, []string{
			s.Operation,
			fmt.Sprintf("%d", s.Count),
			fmt.Sprintf("%d", s.Errors),
			fmt.Sprintf("%.1f", s.Throughput),
			fmt.Sprintf("%.2fms", float64(s.P50)/float64(time.Millisecond)),
			fmt.Sprintf("%.2fms", float64(s.P99)/float64(time.Millisecond)),
		})
	}
	return rows
}

func formatErrorRows(snaps []metrics.Snapshot, limit int) []string {
	var rows []string
	for _, s := range snaps {
		for _, ec := range s.ErrorBreakdown {
			rows = append(rows, fmt.Sprintf("[%s %s](fg:red) %d", s.Operation, ec.Label, ec.Count))
		}
	}
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// formatRunParams formats the run configuration parameters for display.
func formatRunParams(cfg RunConfig) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Instances: %d", cfg.Instances))
	parts = append(parts, fmt.Sprintf("Events: %d", cfg.Events))

	if cfg.Workers > 0 {
		parts = append(parts, fmt.Sprintf("Workers: %d", cfg.Workers))
	}
	if cfg.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Concurrency: %d", cfg.Concurrency))
	}

	if cfg.Rate > 0 {
		rate := fmt.Sprintf("Rate: %d/s", cfg.Rate)
		if cfg.ArrivalModel != "" && cfg.ArrivalModel != "uniform" {
			rate += " " + cfg.ArrivalModel
		}
		parts = append(parts, rate)
	} else {
		parts = append(parts, "Rate: unlimited")
	}

	if cfg.RequestTimeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", cfg.RequestTimeout))
	}
	if cfg.TLS {
		parts = append(parts, "TLS")
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
