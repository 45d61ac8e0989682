// Package editor orchestrates one editing session: the graph store, draft
// persistence, backend saves and streamed test runs.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nodeloom/nodeloom/pkg/client"
	"github.com/nodeloom/nodeloom/pkg/drafts"
	"github.com/nodeloom/nodeloom/pkg/eventbus"
	"github.com/nodeloom/nodeloom/pkg/events"
	"github.com/nodeloom/nodeloom/pkg/graph"
	"github.com/nodeloom/nodeloom/pkg/models"
	"github.com/nodeloom/nodeloom/pkg/resilience"
	"github.com/nodeloom/nodeloom/pkg/store"
	"github.com/nodeloom/nodeloom/pkg/stream"
	"github.com/nodeloom/nodeloom/pkg/tracing"
	"github.com/nodeloom/nodeloom/pkg/wire"
)

// ErrRunInProgress is returned when a test run is started while another one
// is still live.
var ErrRunInProgress = errors.New("a test run is already in progress")

// ErrWorkflowInvalid is returned when RunTest finds validation errors; the
// individual rules ride in the message.
var ErrWorkflowInvalid = errors.New("workflow is not valid")

const (
	defaultAutosaveSpec  = "@every 30s"
	defaultDebounceDelay = 500 * time.Millisecond
)

// Config wires a Session. Drafts, API and Bus may each be nil; the session
// degrades to in-memory only for the missing pieces.
type Config struct {
	WorkflowID string
	Name       string

	Drafts drafts.Repository
	API    *client.Client
	Bus    eventbus.EventBus
	Logger *slog.Logger
	Tracer trace.Tracer

	// AutosaveSpec is a cron spec; empty means every 30 seconds.
	AutosaveSpec string

	// DebounceDelay is the quiet period for field-edit saves.
	DebounceDelay time.Duration
}

// Session is one user's live editing session for one workflow.
type Session struct {
	workflowID string

	store  *store.Store
	drafts drafts.Repository
	api    *client.Client
	bus    eventbus.EventBus
	logger *slog.Logger
	tracer trace.Tracer

	cron     *cron.Cron
	debounce *resilience.Debouncer

	mu        sync.Mutex
	name      string
	viewport  *models.Viewport
	handle    *stream.Handle
	runID     string
	startedAt time.Time
}

// NewSession builds a session around a fresh store. Call Start to begin
// autosaving and Close to tear everything down.
func NewSession(config Config) *Session {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("module", "editor", "workflow_id", config.WorkflowID)

	spec := config.AutosaveSpec
	if spec == "" {
		spec = defaultAutosaveSpec
	}

	delay := config.DebounceDelay
	if delay <= 0 {
		delay = defaultDebounceDelay
	}

	tracer := config.Tracer
	if tracer == nil {
		// The global provider is a no-op until an exporter is installed.
		tracer = otel.Tracer("nodeloom/editor")
	}

	s := &Session{
		workflowID: config.WorkflowID,
		name:       config.Name,
		store:      store.NewStore(logger),
		drafts:     config.Drafts,
		api:        config.API,
		bus:        config.Bus,
		logger:     logger,
		tracer:     tracer,
		cron:       cron.New(),
		debounce:   resilience.NewDebouncer(delay),
	}

	// The schedule is validated above via the default; a bad custom spec is
	// a programming error worth surfacing loudly.
	if _, err := s.cron.AddFunc(spec, s.autosave); err != nil {
		logger.Error("invalid autosave spec, autosave disabled", "spec", spec, "error", err)
	}

	return s
}

// Store exposes the session's graph store.
func (s *Session) Store() *store.Store {
	return s.store
}

// SetName renames the workflow being edited.
func (s *Session) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.name = name
}

// SetViewport records the canvas pan/zoom for the next save.
func (s *Session) SetViewport(v models.Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.viewport = &v
}

// Start begins the timed autosave loop.
func (s *Session) Start() {
	s.cron.Start()
}

// Close stops autosave, flushes a final draft, and aborts any live run.
func (s *Session) Close(ctx context.Context) {
	s.cron.Stop()
	s.debounce.Stop()

	s.AbortRun(ctx)

	if len(s.store.Nodes()) > 0 {
		s.SaveDraft(ctx, "manual")
	}
}

// autosave runs on the cron schedule; empty graphs are not worth a draft.
func (s *Session) autosave() {
	if len(s.store.Nodes()) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.SaveDraft(ctx, "autosave")
}

// QueueFieldSave schedules a debounced draft save. A burst of keystrokes
// collapses to one write after the quiet period.
func (s *Session) QueueFieldSave() {
	s.debounce.Trigger(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.SaveDraft(ctx, "debounce")
	})
}

// SaveDraft writes the current graph to the draft store. Draft persistence is
// best-effort: failures are logged and swallowed.
func (s *Session) SaveDraft(ctx context.Context, trigger string) {
	if s.drafts == nil {
		return
	}

	dto := s.serialize()

	if err := s.drafts.Save(ctx, s.workflowID, dto); err != nil {
		s.logger.Warn("draft save failed", "trigger", trigger, "error", err)

		return
	}

	s.publish(ctx, events.DraftSaved{
		BaseEvent: events.NewBaseEvent(events.DraftSavedEvent, s.workflowID),
		Trigger:   trigger,
	})
}

// RestoreDraft loads the stored draft, if any, into the store. It reports
// whether a draft was found.
func (s *Session) RestoreDraft(ctx context.Context) (bool, error) {
	if s.drafts == nil {
		return false, nil
	}

	dto, err := s.drafts.Load(ctx, s.workflowID)
	if err != nil {
		return false, err
	}

	if dto == nil {
		return false, nil
	}

	nodes, edges, viewport := wire.Deserialize(*dto)
	s.store.Load(nodes, edges)

	s.mu.Lock()
	if dto.Name != "" {
		s.name = dto.Name
	}

	s.viewport = viewport
	s.mu.Unlock()

	return true, nil
}

// Persist saves the workflow to the backend, then clears the draft. The
// stored copy's id becomes the session's id on first save.
func (s *Session) Persist(ctx context.Context) (*models.WorkflowDTO, error) {
	if s.api == nil {
		return nil, errors.New("no backend client configured")
	}

	dto := s.serialize()

	var (
		saved *models.WorkflowDTO
		err   error
	)

	if s.workflowID == "" {
		saved, err = s.api.Create(ctx, dto)
	} else {
		saved, err = s.api.Update(ctx, s.workflowID, map[string]any{
			"name":     dto.Name,
			"nodes":    dto.Nodes,
			"edges":    dto.Edges,
			"viewport": dto.Viewport,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("persist workflow: %w", err)
	}

	s.mu.Lock()
	if s.workflowID == "" {
		s.workflowID = saved.ID
	}
	s.mu.Unlock()

	s.publish(ctx, events.WorkflowSaved{
		BaseEvent: events.NewBaseEvent(events.WorkflowSavedEvent, saved.ID),
		Name:      saved.Name,
		NodeCount: len(saved.Nodes),
		EdgeCount: len(saved.Edges),
		Version:   saved.Version,
	})

	if s.drafts != nil {
		if err := s.drafts.Clear(ctx, s.workflowID); err != nil {
			s.logger.Warn("draft clear failed", "error", err)
		}
	}

	return saved, nil
}

// Validate returns the current graph's violated rules.
func (s *Session) Validate() []string {
	g := s.store.Graph()

	return graph.ValidateWorkflow(g.Nodes, g.Edges)
}

// RunTest validates the graph, saves a draft, then opens the execution stream
// and applies its transitions to the store. Only one run may be live.
func (s *Session) RunTest(ctx context.Context, inputs map[string]any) error {
	if s.api == nil {
		return errors.New("no backend client configured")
	}

	if errs := s.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrWorkflowInvalid, strings.Join(errs, "; "))
	}

	s.mu.Lock()
	if s.handle != nil {
		s.mu.Unlock()

		return ErrRunInProgress
	}

	runID := uuid.NewString()
	s.runID = runID
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.SaveDraft(ctx, "manual")
	s.resetNodeStatuses()

	runCtx, span := tracing.StartSpan(ctx, s.tracer, "editor.test_run",
		attribute.String(tracing.WorkflowIDKey, s.workflowID),
		attribute.String(tracing.RunIDKey, runID),
	)

	handle, err := s.api.ExecuteStream(runCtx, s.workflowID, inputs, s.streamCallbacks(runCtx, runID, span))
	if err != nil {
		tracing.SetError(span, err)
		span.End()

		s.mu.Lock()
		s.runID = ""
		s.mu.Unlock()

		return fmt.Errorf("open test run: %w", err)
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()

	s.publish(ctx, events.ExecutionStarted{
		BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, s.workflowID),
		RunID:     runID,
		NodeCount: len(s.store.Nodes()),
	})

	go func() {
		<-handle.Done()

		if err := handle.Err(); err != nil {
			tracing.SetError(span, err)
		}

		span.End()

		s.mu.Lock()
		if s.handle == handle {
			s.handle = nil
		}
		s.mu.Unlock()
	}()

	return nil
}

// Wait blocks until the live run finishes. It returns immediately when no run
// is live.
func (s *Session) Wait() {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()

	if handle != nil {
		<-handle.Done()
	}
}

// AbortRun cancels the live run and marks every node the stream still had
// running as failed. Safe to call with no run live.
func (s *Session) AbortRun(ctx context.Context) {
	s.mu.Lock()
	handle := s.handle
	runID := s.runID
	s.handle = nil
	s.mu.Unlock()

	if handle == nil {
		return
	}

	handle.Abort()

	interrupted := handle.RunningNodes()

	for _, nodeID := range interrupted {
		s.setStatus(ctx, nodeID, models.NodeStatusError)
	}

	s.publish(ctx, events.ExecutionAborted{
		BaseEvent:        events.NewBaseEvent(events.ExecutionAbortedEvent, s.workflowID),
		RunID:            runID,
		InterruptedNodes: interrupted,
	})
}

func (s *Session) streamCallbacks(ctx context.Context, runID string, span trace.Span) stream.Callbacks {
	return stream.Callbacks{
		OnNodeStart: func(nodeID, _ string) {
			s.setStatus(ctx, nodeID, models.NodeStatusRunning)
		},
		OnChunk: func(nodeID, accumulated string, _ int) {
			if err := s.store.UpdateNodeTransient(nodeID, func(n *models.Node) {
				n.Data.Output = accumulated
			}); err != nil {
				s.logger.Warn("chunk for unknown node", "node_id", nodeID)
			}
		},
		OnNodeEnd: func(nodeID, output string, _ stream.Usage) {
			s.finishNode(ctx, nodeID, output)
		},
		OnNodeComplete: func(nodeID, output string, _ float64) {
			s.finishNode(ctx, nodeID, output)
		},
		OnWorkflowComplete: func(finalOutput string, totalCost float64) {
			s.mu.Lock()
			duration := time.Since(s.startedAt)
			s.mu.Unlock()

			s.publish(ctx, events.ExecutionCompleted{
				BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, s.workflowID),
				RunID:       runID,
				FinalOutput: finalOutput,
				TotalCost:   totalCost,
				Duration:    duration,
			})
		},
		OnError: func(nodeID, message string) {
			if nodeID != "" {
				s.setStatus(ctx, nodeID, models.NodeStatusError)

				return
			}

			tracing.SetError(span, errors.New(message),
				attribute.String(tracing.RunIDKey, runID))

			s.publish(ctx, events.ExecutionFailed{
				BaseEvent: events.NewBaseEvent(events.ExecutionFailedEvent, s.workflowID),
				RunID:     runID,
				Error:     message,
			})
		},
	}
}

// finishNode lands a terminal success transition from either node_end or
// node_complete.
func (s *Session) finishNode(ctx context.Context, nodeID, output string) {
	if err := s.store.UpdateNodeTransient(nodeID, func(n *models.Node) {
		n.Data.Status = models.NodeStatusSuccess
		n.Data.Output = output
	}); err != nil {
		s.logger.Warn("completion for unknown node", "node_id", nodeID)

		return
	}

	s.publishStatus(ctx, nodeID, models.NodeStatusRunning, models.NodeStatusSuccess)
}

func (s *Session) resetNodeStatuses() {
	for _, node := range s.store.Nodes() {
		if node.Data.Status != models.NodeStatusIdle || node.Data.Output != "" {
			_ = s.store.UpdateNodeTransient(node.ID, func(n *models.Node) {
				n.Data.Status = models.NodeStatusIdle
				n.Data.Output = ""
			})
		}
	}
}

func (s *Session) setStatus(ctx context.Context, nodeID string, status models.NodeStatus) {
	previous := models.NodeStatusIdle

	if node, ok := s.store.Graph().NodeByID(nodeID); ok {
		previous = node.Data.Status
	}

	if err := s.store.SetNodeStatus(nodeID, status); err != nil {
		s.logger.Warn("status for unknown node", "node_id", nodeID, "status", status)

		return
	}

	s.publishStatus(ctx, nodeID, previous, status)
}

func (s *Session) publishStatus(ctx context.Context, nodeID string, previous, current models.NodeStatus) {
	s.publish(ctx, events.NodeStatusChanged{
		BaseEvent: events.NewBaseEvent(events.NodeStatusChangedEvent, s.workflowID),
		NodeID:    nodeID,
		Previous:  previous,
		Current:   current,
	})
}

func (s *Session) serialize() models.WorkflowDTO {
	s.mu.Lock()
	name := s.name
	viewport := s.viewport
	s.mu.Unlock()

	g := s.store.Graph()

	return wire.Serialize(name, g.Nodes, g.Edges, viewport)
}

// publish is best-effort; a down bus never blocks editing.
func (s *Session) publish(ctx context.Context, event eventbus.Event) {
	if s.bus == nil {
		return
	}

	if err := s.bus.Publish(ctx, s.workflowID, event); err != nil {
		s.logger.Warn("event publish failed", "type", event.GetType(), "error", err)
	}
}
