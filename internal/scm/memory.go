package scm

import (
	"strings"
	"sync"
	"time"

	"github.com/oshokin/update-service/internal/domain/service"
)

// Memory is an in-process service control manager. It follows the state
// transitions and error codes of the real SCM closely enough to drive the
// lifecycle and the trigger end to end.
type Memory struct {
	mu       sync.Mutex
	services map[string]*memoryRecord
	faults   map[string][]uint32
	starts   [][]string
	scopes   []Scope

	// OnStart runs outside the lock after a successful start request with
	// the service name and its arguments. The service is Running while it
	// runs and returns to Stopped when it returns, the way a worker that
	// handles one command and exits behaves.
	OnStart func(name string, args []string)
	// StopPolls is how many queries report StopPending after a stop control.
	StopPolls int
	// WaitHint is reported while a stop is pending.
	WaitHint time.Duration
}

type memoryRecord struct {
	cfg            Config
	state          service.State
	access         service.AccessDescriptor
	pendingQueries int
	deleted        bool
}

// NewMemory creates an empty Memory.
func NewMemory() *Memory {
	return &Memory{
		services: make(map[string]*memoryRecord),
		faults:   make(map[string][]uint32),
	}
}

// Install adds a record directly, bypassing CreateService.
func (m *Memory) Install(name string, cfg Config, state service.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.services[strings.ToLower(name)] = &memoryRecord{cfg: cfg, state: state}
}

// Fail makes the next call of op fail with code. Ops are the Service and
// Manager method names, e.g. "Stop" or "OpenService".
func (m *Memory) Fail(op string, code uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.faults[op] = append(m.faults[op], code)
}

// Record returns a copy of the named record.
func (m *Memory) Record(name string) (service.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, found := m.services[strings.ToLower(name)]
	if !found || rec.deleted {
		return service.Record{}, false
	}

	return service.Record{
		BinaryPath: rec.cfg.BinaryPath,
		State:      rec.state,
		Access:     rec.access,
	}, true
}

// SetState forces the run state of the named record. A forced StopPending
// lasts StopPolls queries.
func (m *Memory) SetState(name string, state service.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, found := m.services[strings.ToLower(name)]; found {
		rec.state = state
		rec.pendingQueries = m.StopPolls
	}
}

// Starts returns the argument lists of every accepted start request.
func (m *Memory) Starts() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([][]string(nil), m.starts...)
}

// Scopes returns the scope of every Connect call.
func (m *Memory) Scopes() []Scope {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Scope(nil), m.scopes...)
}

// Connect implements Connector.
func (m *Memory) Connect(scope Scope) (Manager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faultLocked("Connect"); err != nil {
		return nil, err
	}

	m.scopes = append(m.scopes, scope)

	return &memoryManager{memory: m, scope: scope}, nil
}

// faultLocked pops a queued failure for op.
func (m *Memory) faultLocked(op string) error {
	queue := m.faults[op]
	if len(queue) == 0 {
		return nil
	}

	m.faults[op] = queue[1:]

	return &Error{Op: op, Code: queue[0]}
}

func (m *Memory) lookupLocked(op, name string) (*memoryRecord, error) {
	rec, found := m.services[strings.ToLower(name)]
	if !found || rec.deleted {
		return nil, &Error{Op: op, Code: CodeServiceDoesNotExist}
	}

	return rec, nil
}

type memoryManager struct {
	memory *Memory
	scope  Scope
}

func (mm *memoryManager) OpenService(name string) (Service, error) {
	m := mm.memory

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faultLocked("OpenService"); err != nil {
		return nil, err
	}

	if _, err := m.lookupLocked("OpenService", name); err != nil {
		return nil, err
	}

	return &memoryService{memory: m, name: name, scope: mm.scope}, nil
}

func (mm *memoryManager) CreateService(name string, cfg Config) (Service, error) {
	m := mm.memory

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faultLocked("CreateService"); err != nil {
		return nil, err
	}

	if mm.scope != ScopeFull {
		return nil, &Error{Op: "CreateService", Code: CodeAccessDenied}
	}

	if rec, found := m.services[strings.ToLower(name)]; found {
		if rec.deleted {
			return nil, &Error{Op: "CreateService", Code: CodeServiceMarkedForDelete}
		}

		return nil, &Error{Op: "CreateService", Code: CodeServiceExists}
	}

	m.services[strings.ToLower(name)] = &memoryRecord{cfg: cfg, state: service.StateStopped}

	return &memoryService{memory: m, name: name, scope: mm.scope}, nil
}

func (mm *memoryManager) Close() error {
	return nil
}

type memoryService struct {
	memory *Memory
	name   string
	scope  Scope
}

func (ms *memoryService) Query() (Status, error) {
	m := ms.memory

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faultLocked("Query"); err != nil {
		return Status{}, err
	}

	rec, err := m.lookupLocked("Query", ms.name)
	if err != nil {
		return Status{}, err
	}

	status := Status{State: rec.state}

	if rec.state == service.StateStopPending {
		status.WaitHint = m.WaitHint

		if rec.pendingQueries <= 0 {
			rec.state = service.StateStopped
			status.State = service.StateStopped
		}

		rec.pendingQueries--
	}

	return status, nil
}

func (ms *memoryService) Config() (Config, error) {
	m := ms.memory

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faultLocked("Config"); err != nil {
		return Config{}, err
	}

	rec, err := m.lookupLocked("Config", ms.name)
	if err != nil {
		return Config{}, err
	}

	return rec.cfg, nil
}

func (ms *memoryService) Start(args ...string) error {
	m := ms.memory

	m.mu.Lock()

	if err := m.faultLocked("Start"); err != nil {
		m.mu.Unlock()

		return err
	}

	rec, err := m.lookupLocked("Start", ms.name)
	if err != nil {
		m.mu.Unlock()

		return err
	}

	if rec.state != service.StateStopped {
		m.mu.Unlock()

		return &Error{Op: "Start", Code: CodeAlreadyRunning}
	}

	rec.state = service.StateRunning
	m.starts = append(m.starts, append([]string(nil), args...))
	onStart := m.OnStart

	m.mu.Unlock()

	if onStart != nil {
		onStart(ms.name, args)

		m.mu.Lock()
		if rec.state == service.StateRunning {
			rec.state = service.StateStopped
		}
		m.mu.Unlock()
	}

	return nil
}

func (ms *memoryService) Stop() (Status, error) {
	m := ms.memory

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faultLocked("Stop"); err != nil {
		return Status{}, err
	}

	rec, err := m.lookupLocked("Stop", ms.name)
	if err != nil {
		return Status{}, err
	}

	switch rec.state {
	case service.StateStopped:
		return Status{}, &Error{Op: "Stop", Code: CodeServiceNotActive}
	case service.StateStopPending:
		return Status{State: rec.state, WaitHint: m.WaitHint}, nil
	}

	rec.state = service.StateStopPending
	rec.pendingQueries = m.StopPolls

	return Status{State: rec.state, WaitHint: m.WaitHint}, nil
}

func (ms *memoryService) Delete() error {
	m := ms.memory

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faultLocked("Delete"); err != nil {
		return err
	}

	if ms.scope != ScopeFull {
		return &Error{Op: "Delete", Code: CodeAccessDenied}
	}

	rec, found := m.services[strings.ToLower(ms.name)]
	if !found {
		return &Error{Op: "Delete", Code: CodeServiceDoesNotExist}
	}

	if rec.deleted {
		return &Error{Op: "Delete", Code: CodeServiceMarkedForDelete}
	}

	rec.deleted = true

	return nil
}

func (ms *memoryService) ResetAccess() error {
	m := ms.memory

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faultLocked("ResetAccess"); err != nil {
		return err
	}

	if ms.scope != ScopeFull {
		return &Error{Op: "ResetAccess", Code: CodeAccessDenied}
	}

	rec, err := m.lookupLocked("ResetAccess", ms.name)
	if err != nil {
		return err
	}

	rec.access = service.HardenedAccess()

	return nil
}

func (ms *memoryService) Close() error {
	return nil
}
