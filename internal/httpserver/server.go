// Package httpserver exposes stored journals over a JSON HTTP API.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/tinytelemetry/journalscope/internal/model"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "0.0.0.0:3000"

// Options tunes the server.
type Options struct {
	// MaxConcurrentQueries bounds in-flight store reads. Zero disables
	// the bound.
	MaxConcurrentQueries int64
	// Metrics serves the default Prometheus registry at /metrics.
	Metrics bool
}

// Server provides the HTTP read API.
type Server struct {
	addr      string
	store     model.ReadAPI
	opts      Options
	readSem   *semaphore.Weighted
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates an HTTP API server over store.
func NewServer(addr string, store model.ReadAPI, opts ...Options) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      addr,
		store:     store,
		opts:      o,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	if o.MaxConcurrentQueries > 0 {
		s.readSem = semaphore.NewWeighted(o.MaxConcurrentQueries)
	}
	return s
}

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api", s.limitReads)
	api.GET("/health", s.handleHealth)
	api.GET("/schema", s.handleSchema)
	api.POST("/query", s.handleQuery)
	api.GET("/journals", s.handleJournals)
	api.GET("/journals/:id", s.handleJournal)
	api.GET("/journals/:id/kinds", s.handleKinds)
	api.GET("/journals/:id/records", s.handleRecords)

	if s.opts.Metrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	return r
}

// Start begins serving HTTP requests in the background.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen %s: %w", s.addr, err)
	}
	s.addr = listener.Addr().String()
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the listen address, resolved once the server has started.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// limitReads holds a semaphore slot for the duration of a request.
func (s *Server) limitReads(c *gin.Context) {
	if s.readSem == nil {
		c.Next()
		return
	}
	if err := s.readSem.Acquire(c.Request.Context(), 1); err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled while waiting for a query slot"})
		return
	}
	defer s.readSem.Release(1)
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.store.TotalRecordCount(model.QueryOpts{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"uptime":       time.Since(s.startTime).String(),
		"record_count": count,
	})
}

func (s *Server) handleSchema(c *gin.Context) {
	tables, err := s.store.ExecuteQuery(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' ORDER BY table_name, ordinal_position",
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}

	schema := make(map[string][]map[string]string)
	for _, row := range tables {
		table := fmt.Sprintf("%v", row["table_name"])
		schema[table] = append(schema[table], map[string]string{
			"column": fmt.Sprintf("%v", row["column_name"]),
			"type":   fmt.Sprintf("%v", row["data_type"]),
		})
	}

	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": s.store.GetSchemaDescription(),
		"tables":      schema,
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.store.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var columns []string
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}

func (s *Server) handleJournals(c *gin.Context) {
	limit, err := intQuery(c, "limit", model.DefaultJournalLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	journals, err := s.store.ListJournals(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list journals"})
		return
	}
	out := make([]journalJSON, 0, len(journals))
	for _, j := range journals {
		out = append(out, toJournalJSON(j))
	}
	c.JSON(http.StatusOK, gin.H{"journals": out, "count": len(out)})
}

func (s *Server) handleJournal(c *gin.Context) {
	j, ok := s.lookupJournal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toJournalJSON(j))
}

func (s *Server) handleKinds(c *gin.Context) {
	j, ok := s.lookupJournal(c)
	if !ok {
		return
	}
	counts, err := s.store.KindCounts(model.QueryOpts{JournalID: j.ID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count kinds"})
		return
	}
	kinds := make(map[string]int64, len(counts))
	for _, kc := range counts {
		kinds[kc.Kind] = kc.Count
	}
	c.JSON(http.StatusOK, gin.H{"journal_id": j.ID, "kinds": kinds})
}

func (s *Server) handleRecords(c *gin.Context) {
	j, ok := s.lookupJournal(c)
	if !ok {
		return
	}
	filter, err := parseRecordFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter.JournalID = j.ID

	rows, err := s.store.RecordsFiltered(filter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []model.RecordRow{}
	}
	c.JSON(http.StatusOK, gin.H{"journal_id": j.ID, "records": rows, "count": len(rows)})
}

// lookupJournal resolves the :id parameter, writing the error response
// itself when the journal cannot be returned.
func (s *Server) lookupJournal(c *gin.Context) (model.JournalRow, bool) {
	id := c.Param("id")
	j, ok, err := s.store.GetJournal(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read journal"})
		return j, false
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("journal %q not found", id)})
		return j, false
	}
	return j, true
}

// parseRecordFilter reads kind, severity, block, from, to, match and limit.
// kind and block may repeat or hold comma-separated lists.
func parseRecordFilter(c *gin.Context) (model.RecordFilter, error) {
	var f model.RecordFilter
	for _, name := range splitList(c.QueryArray("kind")) {
		k, ok := model.ParseKind(name)
		if !ok {
			return f, fmt.Errorf("unknown kind %q", name)
		}
		f.Kinds = append(f.Kinds, k.String())
	}
	for _, b := range splitList(c.QueryArray("block")) {
		n, err := strconv.Atoi(b)
		if err != nil {
			return f, fmt.Errorf("invalid block %q", b)
		}
		f.Blocks = append(f.Blocks, n)
	}
	f.Severity = c.Query("severity")
	f.MatchPattern = c.Query("match")

	var err error
	if f.From, err = timeQuery(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = timeQuery(c, "to"); err != nil {
		return f, err
	}
	if f.Limit, err = intQuery(c, "limit", model.DefaultRecordLimit); err != nil {
		return f, err
	}
	return f, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

func timeQuery(c *gin.Context, name string) (time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: want RFC 3339", name, v)
	}
	return t, nil
}

type journalJSON struct {
	ID                string    `json:"id"`
	Source            string    `json:"source"`
	Path              string    `json:"path,omitempty"`
	Version           int       `json:"version"`
	Release           string    `json:"release,omitempty"`
	Build             string    `json:"build,omitempty"`
	Branch            string    `json:"branch,omitempty"`
	Username          string    `json:"username,omitempty"`
	MachineName       string    `json:"machine_name,omitempty"`
	OSVersion         string    `json:"os_version,omitempty"`
	SessionID         string    `json:"session_id,omitempty"`
	BlockCount        int       `json:"block_count"`
	RecordCount       int       `json:"record_count"`
	SessionSeconds    float64   `json:"session_seconds"`
	TerminatedCleanly bool      `json:"terminated_cleanly"`
	HasAPIErrors      bool      `json:"has_api_errors"`
	HasExceptions     bool      `json:"has_exceptions"`
	ProcessingMillis  int64     `json:"processing_ms"`
	DecodedAt         time.Time `json:"decoded_at"`
}

func toJournalJSON(j model.JournalRow) journalJSON {
	return journalJSON(j)
}
