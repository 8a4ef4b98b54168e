// Package launcher runs booking automations as child processes and tracks
// their lifecycle. The server shell hands it requests; it hands back run
// ids that can be polled for status and the eventual payment URL.
package launcher

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status is a run's lifecycle phase.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result is a finished run's outcome.
type Result struct {
	PaymentURL string `json:"paymentUrl,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Request carries the booking parameters a run needs.
type Request struct {
	Username         string
	Password         string
	Date             string
	Court            string
	TimeSlot         string
	UseChromeProfile bool
}

// Snapshot is a point-in-time copy of a run's state, safe to hand out.
type Snapshot struct {
	ID        string
	Status    Status
	StartTime time.Time
	Result    *Result
}

type run struct {
	id        string
	cmd       *exec.Cmd
	startTime time.Time
	status    Status
	result    *Result
}

// Manager starts and tracks automation child processes.
type Manager struct {
	binary      string
	deviceToken string
	log         zerolog.Logger

	mu   sync.Mutex
	runs map[string]*run
}

// NewManager launches runs by executing binary, passing deviceToken down so
// children can pass the device-auth gate without re-registering.
func NewManager(binary, deviceToken string, log zerolog.Logger) *Manager {
	return &Manager{
		binary:      binary,
		deviceToken: deviceToken,
		log:         log,
		runs:        make(map[string]*run),
	}
}

// Start spawns one automation child and begins scanning its output. It
// returns as soon as the process is up; progress is reported via Get.
func (m *Manager) Start(req Request) (string, error) {
	id := fmt.Sprintf("mobile-%d-%04d", time.Now().UnixMilli(), rand.Intn(10000))

	profile := "0"
	if req.UseChromeProfile {
		profile = "1"
	}
	cmd := exec.Command(m.binary)
	cmd.Env = append(os.Environ(),
		"USERNAME="+req.Username,
		"PASSWORD="+req.Password,
		"BOOKING_DATE="+req.Date,
		"COURT_NUMBER="+req.Court,
		"TIME_SLOT="+req.TimeSlot,
		"USE_CHROME_PROFILE="+profile,
		"AUTOMATION_ID="+id,
		"DEVICE_TOKEN="+m.deviceToken,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("piping stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("piping stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("starting automation: %w", err)
	}

	r := &run{id: id, cmd: cmd, startTime: time.Now(), status: StatusRunning}
	m.mu.Lock()
	m.runs[id] = r
	m.mu.Unlock()

	m.log.Info().Str("run_id", id).Str("date", req.Date).
		Str("court", req.Court).Str("slot", req.TimeSlot).Msg("automation started")

	// Wait must not run until both pipe readers are drained: it closes the
	// pipes on exit, and a fast child's final lines would be lost.
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		m.scanOutput(r, bufio.NewScanner(stdout))
	}()
	go func() {
		defer readers.Done()
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			m.log.Warn().Str("run_id", id).Str("line", sc.Text()).Msg("automation stderr")
		}
	}()
	go m.wait(r, &readers)

	return id, nil
}

// scanOutput watches the child's stdout for the payment-URL marker.
func (m *Manager) scanOutput(r *run, sc *bufio.Scanner) {
	for sc.Scan() {
		line := sc.Text()
		m.log.Info().Str("run_id", r.id).Str("line", line).Msg("automation output")
		if url, ok := ParsePaymentMarker(line); ok {
			m.mu.Lock()
			r.result = &Result{PaymentURL: url, Success: true}
			r.status = StatusCompleted
			m.mu.Unlock()
		}
	}
}

func (m *Manager) wait(r *run, readers *sync.WaitGroup) {
	readers.Wait()
	err := r.cmd.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		// A reported payment URL stands even if teardown exits non-zero.
		if r.result == nil {
			r.status = StatusFailed
			r.result = &Result{Success: false, Error: fmt.Sprintf("process failed: %v", err)}
		}
		m.log.Warn().Str("run_id", r.id).Err(err).Msg("automation exited")
		return
	}
	if r.status == StatusRunning {
		r.status = StatusCompleted
	}
	m.log.Info().Str("run_id", r.id).Str("status", string(r.status)).Msg("automation exited")
}

// Get returns a snapshot of one run.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return Snapshot{}, false
	}
	return r.snapshot(), true
}

// List returns snapshots of every tracked run, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// Stop kills a running automation. Finished runs are left as-is.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	if r.status != StatusRunning {
		return nil
	}
	return r.cmd.Process.Kill()
}

func (r *run) snapshot() Snapshot {
	s := Snapshot{ID: r.id, Status: r.status, StartTime: r.startTime}
	if r.result != nil {
		cp := *r.result
		s.Result = &cp
	}
	return s
}
