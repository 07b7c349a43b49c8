package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/analysis"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/config"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/logger"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/render"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/report"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/correlation"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/params"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/secrets"
)

// AnalyzeRequest overrides configured analysis options for one run
type AnalyzeRequest struct {
	TrackMode      string   `json:"track_mode"`
	MinValueLength int      `json:"min_value_length"`
	IgnoreEmpty    *bool    `json:"ignore_empty"`
	IgnoreNames    []string `json:"ignore_names"`
	Scope          []string `json:"scope"`
}

type SecretRequest struct {
	Name  string `json:"name" binding:"required"`
	Regex bool   `json:"regex"`
	Match string `json:"match" binding:"required"`
}

type StatusResponse struct {
	Running  bool              `json:"running"`
	RunID    string            `json:"run_id,omitempty"`
	Status   string            `json:"status,omitempty"`
	Progress int               `json:"progress"`
	Last     *analysis.Summary `json:"last,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": logger.Version,
		"time":    time.Now().UTC(),
	})
}

func (s *Server) startAnalysis(c *gin.Context) {
	var body AnalyzeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	cfg := s.cfg.Analysis
	if body.TrackMode != "" {
		switch body.TrackMode {
		case config.TrackSecrets, config.TrackAll, config.TrackAuto:
			cfg.TrackMode = body.TrackMode
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "track_mode must be one of secrets, all, auto"})
			return
		}
	}
	if body.MinValueLength > 0 {
		cfg.MinValueLength = body.MinValueLength
	}
	if body.IgnoreEmpty != nil {
		cfg.IgnoreEmpty = *body.IgnoreEmpty
	}
	if body.IgnoreNames != nil {
		cfg.IgnoreNames = body.IgnoreNames
	}
	if body.Scope != nil {
		cfg.Scope = body.Scope
	}

	pairs, err := s.source.Messages(c.Request.Context())
	if err != nil {
		s.logger.Errorw("Failed to read capture", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read capture"})
		return
	}
	pairs = capture.Scope{Hosts: cfg.Scope}.Filter(pairs)

	req := analysis.RequestFromConfig(cfg, s.cfg.Graph, pairs, s.secrets)
	run, err := s.manager.Start(s.baseCtx, req, s.hub)
	if errors.Is(err, analysis.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":   run.ID,
		"messages": len(pairs),
	})
}

func (s *Server) cancelAnalysis(c *gin.Context) {
	if !s.manager.Cancel() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis in progress"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"cancelled": true})
}

func (s *Server) status(c *gin.Context) {
	resp := StatusResponse{}
	if run := s.manager.Current(); run != nil {
		resp.Running = true
		resp.RunID = run.ID
		resp.Status = run.Status()
		resp.Progress = run.Progress()
	} else if last := s.manager.Last(); last != nil {
		summary := last.Summary()
		resp.RunID = last.RunID
		resp.Progress = 100
		resp.Last = &summary
	}
	c.JSON(http.StatusOK, resp)
}

// lastResult writes an error and returns nil when there is nothing to show
func (s *Server) lastResult(c *gin.Context) *analysis.Result {
	if s.manager.Current() != nil {
		c.JSON(http.StatusConflict, gin.H{"error": analysis.ErrRunInProgress.Error()})
		return nil
	}
	res := s.manager.Last()
	if res == nil || res.Correlation == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis results"})
		return nil
	}
	return res
}

func (s *Server) parameters(c *gin.Context) {
	name := c.Param("location")

	var filter func(*correlation.Result) []*correlation.CorrelatedParam
	switch name {
	case "all":
		filter = (*correlation.Result).Params
	case "secrets":
		filter = (*correlation.Result).ParamSecrets
	default:
		loc, err := params.ParseLocation(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter = func(r *correlation.Result) []*correlation.CorrelatedParam { return r.ByLocation(loc) }
	}

	res := s.lastResult(c)
	if res == nil {
		return
	}

	withInstances, _ := strconv.ParseBool(c.DefaultQuery("instances", "false"))
	list := report.Params(filter(res.Correlation), res.Correlation.ShowDecoded, withInstances)
	c.JSON(http.StatusOK, gin.H{
		"location":   name,
		"count":      len(list),
		"parameters": list,
	})
}

func (s *Server) findParam(c *gin.Context) (*analysis.Result, *correlation.CorrelatedParam) {
	res := s.lastResult(c)
	if res == nil {
		return nil, nil
	}
	p, ok := res.Correlation.ByFingerprint(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown parameter"})
		return nil, nil
	}
	return res, p
}

// markParameter flags a parameter as secret and imports its value into the
// live secret set so later runs match it
func (s *Server) markParameter(c *gin.Context) {
	res, p := s.findParam(c)
	if p == nil {
		return
	}
	p.MarkSecret()
	added := s.secrets.Import([]*correlation.CorrelatedParam{p})

	c.JSON(http.StatusOK, gin.H{
		"parameter": report.NewParam(p, res.Correlation.ShowDecoded, false),
		"imported":  len(added) > 0,
	})
}

func (s *Server) unmarkParameter(c *gin.Context) {
	res, p := s.findParam(c)
	if p == nil {
		return
	}
	removed := s.secrets.RemoveImported(p)

	c.JSON(http.StatusOK, gin.H{
		"parameter": report.NewParam(p, res.Correlation.ShowDecoded, false),
		"removed":   removed,
	})
}

// clearMarks drops every imported secret, with or without a finished run
func (s *Server) clearMarks(c *gin.Context) {
	var ps []*correlation.CorrelatedParam
	if res := s.manager.Last(); res != nil && res.Correlation != nil {
		ps = res.Correlation.Params()
	}
	c.JSON(http.StatusOK, gin.H{"removed": s.secrets.RemoveAllImported(ps)})
}

func (s *Server) cookies(c *gin.Context) {
	res := s.lastResult(c)
	if res == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"cookies": res.Correlation.CookieStatistics()})
}

func (s *Server) graph(c *gin.Context) {
	res := s.lastResult(c)
	if res == nil {
		return
	}
	if res.Graph == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no provenance graph"})
		return
	}

	scene := res.Graph.Render(render.DefaultMetrics())
	if c.Query("format") == "text" {
		c.String(http.StatusOK, strings.Join(render.Edges(scene), "\n"))
		return
	}
	c.JSON(http.StatusOK, report.NewGraph(scene))
}

func (s *Server) listSecrets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"secrets": report.Secrets(s.secrets.Secrets())})
}

func (s *Server) addSecret(c *gin.Context) {
	var body SecretRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sec, err := s.secrets.AddCustom(body.Name, body.Regex, body.Match)
	if err != nil {
		c.JSON(secretErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, report.Secrets([]*secrets.Secret{sec})[0])
}

func (s *Server) updateSecret(c *gin.Context) {
	var body struct {
		Regex bool   `json:"regex"`
		Match string `json:"match" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sec, err := s.secrets.Update(c.Param("name"), body.Regex, body.Match)
	if err != nil {
		c.JSON(secretErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report.Secrets([]*secrets.Secret{sec})[0])
}

func (s *Server) removeSecret(c *gin.Context) {
	if !s.secrets.Remove(c.Param("name")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown secret"})
		return
	}
	c.Status(http.StatusNoContent)
}

func secretErrorStatus(err error) int {
	switch {
	case errors.Is(err, secrets.ErrInvalidPattern):
		return http.StatusBadRequest
	case errors.Is(err, secrets.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, secrets.ErrUnknownSecret):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isLocalOrigin(origin)
	},
}

const writeWait = 5 * time.Second

// progress streams the in-flight run's events over a websocket and closes
// after the done event
func (s *Server) progress(c *gin.Context) {
	// subscribe first so no event between the check and the upgrade is lost
	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	run := s.manager.Current()
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis in progress"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warnw("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(ev analysis.Event) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(ev)
	}

	if err := write(analysis.Event{
		Kind:     analysis.EventStatus,
		RunID:    run.ID,
		Status:   run.Status(),
		Progress: run.Progress(),
		Time:     time.Now(),
	}); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-s.baseCtx.Done():
			return
		case ev, ok := <-events.Events():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "analysis finished"))
				return
			}
			if ev.RunID == "" {
				ev.RunID = run.ID
			}
			if err := write(ev); err != nil {
				s.logger.Debugw("Progress client went away", "error", err)
				return
			}
		}
	}
}
