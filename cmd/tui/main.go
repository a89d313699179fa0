// adscope-tui is a terminal monitor for a running adscope server. It shows
// the download history, active generation tasks, the download queue, and
// export progress, refreshing on an interval.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

type historyEntry struct {
	EntryID         string    `json:"entry_id"`
	AdArchiveID     string    `json:"ad_archive_id"`
	Source          string    `json:"source"`
	PageName        string    `json:"page_name"`
	MediaType       string    `json:"media_type"`
	VideoCount      int       `json:"video_count"`
	ImageCount      int       `json:"image_count"`
	AnalysisCount   int       `json:"analysis_count"`
	GenerationCount int       `json:"generation_count"`
	MergeCount      int       `json:"merge_count"`
	CreatedAt       time.Time `json:"created_at"`
}

type historyPage struct {
	Entries []historyEntry `json:"entries"`
	Total   int            `json:"total"`
}

type generationTask struct {
	TaskID           string `json:"task_id"`
	State            string `json:"state"`
	PromptHash       string `json:"prompt_hash"`
	Error            string `json:"error"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type taskList struct {
	Tasks []generationTask `json:"tasks"`
}

type exportStatus struct {
	Phase        string `json:"phase"`
	TotalFiles   int    `json:"total_files"`
	WrittenFiles int    `json:"written_files"`
	BytesWritten int64  `json:"bytes_written"`
	CurrentFile  string `json:"current_file"`
	Error        string `json:"error"`
}

// client is a minimal read-only API client for the monitor.
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *client) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type monitor struct {
	app     *tview.Application
	client  *client
	history *tview.Table
	tasks   *tview.TextView
	queue   *tview.TextView
	export  *tview.TextView
	status  *tview.TextView
}

func newMonitor(c *client) *monitor {
	m := &monitor{
		app:    tview.NewApplication(),
		client: c,
	}

	m.history = tview.NewTable().SetSelectable(true, false).SetFixed(1, 0)
	m.history.SetBorder(true).SetTitle(" Download History ")

	m.tasks = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	m.tasks.SetBorder(true).SetTitle(" Generation Tasks ")

	m.queue = tview.NewTextView().SetDynamicColors(true)
	m.queue.SetBorder(true).SetTitle(" Download Queue ")

	m.export = tview.NewTextView().SetDynamicColors(true)
	m.export.SetBorder(true).SetTitle(" Export ")

	m.status = tview.NewTextView().SetDynamicColors(true)
	m.status.SetText("[gray]q: quit  r: refresh")

	sideColumn := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(m.tasks, 0, 2, false).
		AddItem(m.queue, 0, 1, false).
		AddItem(m.export, 0, 1, false)

	body := tview.NewFlex().
		AddItem(m.history, 0, 2, true).
		AddItem(sideColumn, 0, 1, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(m.status, 1, 0, false)

	m.app.SetRoot(root, true)
	m.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q':
			m.app.Stop()
			return nil
		case 'r':
			go m.refresh()
			return nil
		}
		return event
	})

	return m
}

func (m *monitor) run() error {
	go m.refresh()
	go func() {
		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			m.refresh()
		}
	}()
	return m.app.Run()
}

// refresh pulls fresh data from the server and redraws every panel.
func (m *monitor) refresh() {
	var page historyPage
	historyErr := m.client.get("/api/v1/ads/history?limit=50", &page)

	var tasks taskList
	tasksErr := m.client.get("/api/v1/generations/tasks", &tasks)

	var queue map[string]int
	queueErr := m.client.get("/api/v1/queue", &queue)

	var export exportStatus
	exportErr := m.client.get("/api/v1/export/status", &export)

	m.app.QueueUpdateDraw(func() {
		if historyErr == nil {
			m.drawHistory(page)
		}
		if tasksErr == nil {
			m.drawTasks(tasks.Tasks)
		}
		if queueErr == nil {
			m.drawQueue(queue)
		}
		if exportErr == nil {
			m.drawExport(export)
		}

		if err := firstError(historyErr, tasksErr, queueErr, exportErr); err != nil {
			m.status.SetText(fmt.Sprintf("[red]%v[gray]  q: quit  r: refresh", err))
		} else {
			m.status.SetText(fmt.Sprintf("[gray]updated %s  q: quit  r: refresh",
				time.Now().Format("15:04:05")))
		}
	})
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *monitor) drawHistory(page historyPage) {
	m.history.Clear()
	m.history.SetTitle(fmt.Sprintf(" Download History (%d) ", page.Total))

	headers := []string{"Ad ID", "Page", "Source", "Media", "An", "Gen", "Mrg", "Fetched"}
	for col, h := range headers {
		m.history.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}

	for row, e := range page.Entries {
		pageName := e.PageName
		if pageName == "" {
			pageName = "-"
		}
		media := fmt.Sprintf("%dv/%di", e.VideoCount, e.ImageCount)
		cells := []string{
			e.AdArchiveID,
			pageName,
			e.Source,
			media,
			fmt.Sprintf("%d", e.AnalysisCount),
			fmt.Sprintf("%d", e.GenerationCount),
			fmt.Sprintf("%d", e.MergeCount),
			e.CreatedAt.Local().Format("Jan 02 15:04"),
		}
		for col, text := range cells {
			m.history.SetCell(row+1, col, tview.NewTableCell(text))
		}
	}
}

func (m *monitor) drawTasks(tasks []generationTask) {
	var b strings.Builder
	if len(tasks) == 0 {
		b.WriteString("[gray]no active tasks")
	}
	for _, t := range tasks {
		color := "white"
		switch t.State {
		case "SUCCESS":
			color = "green"
		case "FAILURE":
			color = "red"
		case "PROGRESS":
			color = "yellow"
		}
		b.WriteString(fmt.Sprintf("[%s]%-10s[white] %s", color, t.State, t.TaskID))
		if t.RemainingSeconds > 0 {
			b.WriteString(fmt.Sprintf("  ~%ds", t.RemainingSeconds))
		}
		if t.Error != "" {
			b.WriteString(fmt.Sprintf("\n  [red]%s[white]", t.Error))
		}
		b.WriteString("\n")
	}
	m.tasks.SetText(b.String())
}

func (m *monitor) drawQueue(queue map[string]int) {
	m.queue.SetText(fmt.Sprintf(
		"queued     %d\nprocessing %d\ncompleted  %d\nfailed     %d\nretrying   %d",
		queue["queued"], queue["processing"], queue["completed"],
		queue["failed"], queue["retrying"]))
}

func (m *monitor) drawExport(export exportStatus) {
	switch export.Phase {
	case "", "idle":
		m.export.SetText("[gray]no export running")
	case "failed":
		m.export.SetText(fmt.Sprintf("[red]failed: %s", export.Error))
	case "completed":
		m.export.SetText(fmt.Sprintf("[green]completed  %d files, %d bytes",
			export.WrittenFiles, export.BytesWritten))
	default:
		m.export.SetText(fmt.Sprintf("[yellow]%s[white]  %d/%d files\n%s",
			export.Phase, export.WrittenFiles, export.TotalFiles, export.CurrentFile))
	}
}

func readAPIKey() (string, error) {
	if key := os.Getenv("ADSCOPE_API_KEY"); key != "" {
		return key, nil
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("no ADSCOPE_API_KEY set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "API key: ")
	key, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(key)), nil
}

func main() {
	baseURL := flag.String("server", "http://localhost:9614", "adscope server base URL")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("adscope-tui %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	apiKey, err := readAPIKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	c := &client{
		baseURL: strings.TrimRight(*baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	if err := newMonitor(c).run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
