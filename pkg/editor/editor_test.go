package editor

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeloom/nodeloom/pkg/client"
	"github.com/nodeloom/nodeloom/pkg/drafts"
	"github.com/nodeloom/nodeloom/pkg/models"
	"github.com/nodeloom/nodeloom/pkg/resilience"
)

func buildRunnableGraph(t *testing.T, s *Session) (start, model, end models.Node) {
	t.Helper()

	st := s.Store()

	start = st.AddNode(models.NodeTypeStart, models.Position{}, models.NodeData{})
	model = st.AddNode(models.NodeTypeModel, models.Position{X: 200}, models.NodeData{})
	end = st.AddNode(models.NodeTypeEnd, models.Position{X: 400}, models.NodeData{})

	_, err := st.Connect(start.ID, model.ID)
	require.NoError(t, err)
	_, err = st.Connect(model.ID, end.ID)
	require.NoError(t, err)

	return start, model, end
}

func newAPIClient(t *testing.T, server *httptest.Server) *client.Client {
	t.Helper()

	c, err := client.New(client.Config{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Retry:      resilience.RetryConfig{MaxAttempts: 1},
	})
	require.NoError(t, err)

	return c
}

func TestRunTestRejectsInvalidWorkflow(t *testing.T) {
	session := NewSession(Config{WorkflowID: "wf-1", Name: "demo"})

	// No start or end node yet.
	session.Store().AddNode(models.NodeTypeModel, models.Position{}, models.NodeData{})

	err := session.RunTest(t.Context(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowInvalid)
}

func TestRunTestAppliesStreamTransitions(t *testing.T) {
	var modelID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/workflows/wf-1/execute/stream", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		for _, line := range []string{
			`data: {"type":"workflow_start"}`,
			`data: {"type":"node_start","node_id":"` + modelID + `"}`,
			`data: {"type":"chunk","node_id":"` + modelID + `","content":"partial "}`,
			`data: {"type":"chunk","node_id":"` + modelID + `","content":"answer"}`,
			`data: {"type":"node_complete","node_id":"` + modelID + `","output":"partial answer","cost":0.02}`,
			`data: {"type":"workflow_complete","final_output":"partial answer","total_cost":0.02}`,
		} {
			_, _ = w.Write([]byte(line + "\n\n"))
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)

	session := NewSession(Config{
		WorkflowID: "wf-1",
		Name:       "demo",
		API:        newAPIClient(t, server),
	})

	_, model, _ := buildRunnableGraph(t, session)
	modelID = model.ID

	require.NoError(t, session.RunTest(t.Context(), map[string]any{"prompt": "hi"}))
	session.Wait()

	node, ok := session.Store().Graph().NodeByID(modelID)
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSuccess, node.Data.Status)
	assert.Equal(t, "partial answer", node.Data.Output)
}

func TestRunTestFinalizesNodesOnNodeEnd(t *testing.T) {
	var modelID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		// LLM nodes get node_end as their one terminal event, carrying
		// the output and usage figures.
		for _, line := range []string{
			`data: {"type":"workflow_start"}`,
			`data: {"type":"node_start","node_id":"` + modelID + `","node_name":"Claude"}`,
			`data: {"type":"chunk","node_id":"` + modelID + `","content":"an"}`,
			`data: {"type":"chunk","node_id":"` + modelID + `","content":"swer","chunk_index":1}`,
			`data: {"type":"node_end","node_id":"` + modelID + `","output":"answer","tokens_used":2,"cost":0.03,"duration_ms":20}`,
			`data: {"type":"workflow_complete","final_output":"answer","total_cost":0.03}`,
		} {
			_, _ = w.Write([]byte(line + "\n\n"))
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)

	session := NewSession(Config{
		WorkflowID: "wf-1",
		Name:       "demo",
		API:        newAPIClient(t, server),
	})

	_, model, _ := buildRunnableGraph(t, session)
	modelID = model.ID

	require.NoError(t, session.RunTest(t.Context(), nil))
	session.Wait()

	node, ok := session.Store().Graph().NodeByID(modelID)
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSuccess, node.Data.Status)
	assert.Equal(t, "answer", node.Data.Output)

	// The finished node is not among the interrupted ones; a late abort
	// must not flip it to error.
	session.AbortRun(t.Context())

	node, ok = session.Store().Graph().NodeByID(modelID)
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSuccess, node.Data.Status)
}

func TestAbortMarksRunningNodesFailed(t *testing.T) {
	var modelID string

	started := make(chan struct{}, 2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		_, _ = w.Write([]byte(`data: {"type":"node_start","node_id":"` + modelID + `"}` + "\n\n"))
		flusher.Flush()

		started <- struct{}{}
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	session := NewSession(Config{
		WorkflowID: "wf-1",
		Name:       "demo",
		API:        newAPIClient(t, server),
	})
	t.Cleanup(func() { session.AbortRun(t.Context()) })

	_, model, _ := buildRunnableGraph(t, session)
	modelID = model.ID

	require.NoError(t, session.RunTest(t.Context(), nil))
	<-started

	// Let the node_start transition land in the store.
	require.Eventually(t, func() bool {
		node, ok := session.Store().Graph().NodeByID(modelID)

		return ok && node.Data.Status == models.NodeStatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	session.AbortRun(t.Context())

	node, ok := session.Store().Graph().NodeByID(modelID)
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusError, node.Data.Status)

	// A new run is allowed after the abort.
	assert.NotErrorIs(t, session.RunTest(t.Context(), nil), ErrRunInProgress)
}

func TestRunTestRefusesConcurrentRuns(t *testing.T) {
	var modelID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")

		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte(`data: {"type":"node_start","node_id":"` + modelID + `"}` + "\n\n"))
		flusher.Flush()

		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	session := NewSession(Config{
		WorkflowID: "wf-1",
		Name:       "demo",
		API:        newAPIClient(t, server),
	})
	t.Cleanup(func() { session.AbortRun(t.Context()) })

	_, model, _ := buildRunnableGraph(t, session)
	modelID = model.ID

	require.NoError(t, session.RunTest(t.Context(), nil))
	assert.ErrorIs(t, session.RunTest(t.Context(), nil), ErrRunInProgress)
}

func TestDraftSaveAndRestore(t *testing.T) {
	repo, err := drafts.NewFileRepository(t.TempDir())
	require.NoError(t, err)

	session := NewSession(Config{WorkflowID: "wf-1", Name: "demo", Drafts: repo})
	buildRunnableGraph(t, session)
	session.SetViewport(models.Viewport{X: 10, Y: 20, Zoom: 1.25})

	session.SaveDraft(t.Context(), "manual")

	restored := NewSession(Config{WorkflowID: "wf-1", Drafts: repo})

	found, err := restored.RestoreDraft(t.Context())
	require.NoError(t, err)
	require.True(t, found)

	assert.Len(t, restored.Store().Nodes(), 3)
	assert.Len(t, restored.Store().Edges(), 2)

	// Loaded counter-style ids keep future ids unique.
	node := restored.Store().AddNode(models.NodeTypePin, models.Position{}, models.NodeData{})
	assert.Equal(t, "node_4", node.ID)
}

func TestRestoreDraftWithoutDraft(t *testing.T) {
	repo, err := drafts.NewFileRepository(t.TempDir())
	require.NoError(t, err)

	session := NewSession(Config{WorkflowID: "wf-1", Drafts: repo})

	found, err := session.RestoreDraft(t.Context())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestQueueFieldSaveDebounces(t *testing.T) {
	repo, err := drafts.NewFileRepository(t.TempDir())
	require.NoError(t, err)

	session := NewSession(Config{
		WorkflowID:    "wf-1",
		Name:          "demo",
		Drafts:        repo,
		DebounceDelay: 20 * time.Millisecond,
	})
	buildRunnableGraph(t, session)

	// A burst of edits collapses to one trailing save.
	for range 5 {
		session.QueueFieldSave()
	}

	require.Eventually(t, func() bool {
		dto, loadErr := repo.Load(t.Context(), "wf-1")

		return loadErr == nil && dto != nil
	}, 2*time.Second, 10*time.Millisecond)

	dto, err := repo.Load(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Len(t, dto.Nodes, 3)
}

func TestPersistClearsDraft(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/workflows/wf-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"wf-1","name":"demo","nodes":[],"edges":[],"version":2}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	repo, err := drafts.NewFileRepository(t.TempDir())
	require.NoError(t, err)

	session := NewSession(Config{
		WorkflowID: "wf-1",
		Name:       "demo",
		Drafts:     repo,
		API:        newAPIClient(t, server),
	})
	buildRunnableGraph(t, session)

	session.SaveDraft(t.Context(), "manual")

	saved, err := session.Persist(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)

	dto, err := repo.Load(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Nil(t, dto, "draft cleared after successful persist")
}
