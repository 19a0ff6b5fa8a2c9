package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HttpHandler exposes sessions over HTTP. Widget sessions run the backend's flows
// and report transcripts through the widget engine; preview sessions run a draft
// flow posted by the admin editor on a separate engine.
type HttpHandler struct {
	l       *slog.Logger
	widget  *Engine
	preview *Engine
	manager *Manager
	flows   FlowRepository
	starter SessionStarter
}

func NewHttpHandler(l *slog.Logger, widget, preview *Engine, manager *Manager, flows FlowRepository, starter SessionStarter) *HttpHandler {
	return &HttpHandler{
		l:       l,
		widget:  widget,
		preview: preview,
		manager: manager,
		flows:   flows,
		starter: starter,
	}
}

func (h *HttpHandler) Register(g gin.IRouter) {
	g.POST("/widget/sessions", h.startWidgetSession)
	g.POST("/preview/sessions", h.startPreviewSession)
	g.GET("/sessions/:id", h.getSession)
	g.POST("/sessions/:id/messages", h.submit)
	g.DELETE("/sessions/:id", h.closeSession)
}

type startWidgetRequest struct {
	FlowID string `json:"flowId"`
}

type submitRequest struct {
	Text string `json:"text"`
}

type sessionResponse struct {
	Result     Result      `json:"result"`
	InputCheck *InputCheck `json:"inputCheck,omitempty"`
	Snapshot   Snapshot    `json:"snapshot"`
}

var errNoFlowRepository = errors.New("no flow repository configured")

func (h *HttpHandler) startWidgetSession(c *gin.Context) {
	var req startWidgetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
			return
		}
	}

	ctx := c.Request.Context()
	cs, err := h.startChatSession(ctx)
	if err != nil {
		h.l.ErrorContext(ctx, "Session start failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"message": "Could not start a chat session"})
		return
	}

	flow, err := h.fetchFlow(ctx, req.FlowID)
	if err != nil {
		h.l.ErrorContext(ctx, "Flow unavailable", "flow", req.FlowID, "session", cs.SessionToken, "error", err)
	}

	session := h.widget.NewSession(cs)
	h.manager.Put(session)
	res := session.Load(ctx, flow)

	c.JSON(http.StatusCreated, sessionResponse{Result: res, Snapshot: session.Snapshot()})
}

func (h *HttpHandler) startChatSession(ctx context.Context) (ChatSession, error) {
	if h.starter == nil {
		id := uuid.New().String()
		return ChatSession{SessionToken: id, SessionID: id}, nil
	}
	return h.starter.StartSession(ctx)
}

// fetchFlow returns the requested or active flow, or nil with an error when it
// cannot be used. Flows with shape errors are not entered.
func (h *HttpHandler) fetchFlow(ctx context.Context, id string) (*ChatFlow, error) {
	if h.flows == nil {
		return nil, errNoFlowRepository
	}

	var (
		flow *ChatFlow
		err  error
	)
	if id != "" {
		flow, err = h.flows.Get(ctx, id)
	} else {
		flow, err = h.flows.Active(ctx)
	}
	if err != nil {
		return nil, err
	}

	report := h.widget.ValidateFlow(flow)
	for _, w := range report.Warnings {
		h.l.WarnContext(ctx, "Flow warning", "flow", flow.ID, "warning", w)
	}
	if !report.OK() {
		return nil, report.Err()
	}
	return flow, nil
}

func (h *HttpHandler) startPreviewSession(c *gin.Context) {
	var flow ChatFlow
	if err := c.ShouldBindJSON(&flow); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
		return
	}

	report := h.preview.ValidateFlow(&flow)
	if !report.OK() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message":  "Flow is not valid",
			"errors":   report.Errors,
			"warnings": report.Warnings,
		})
		return
	}

	token := "preview-" + uuid.New().String()
	session := h.preview.NewSession(ChatSession{SessionToken: token, SessionID: token})
	h.manager.Put(session)
	res := session.Load(c.Request.Context(), &flow)

	c.JSON(http.StatusCreated, gin.H{
		"result":   res,
		"snapshot": session.Snapshot(),
		"warnings": report.Warnings,
	})
}

func (h *HttpHandler) getSession(c *gin.Context) {
	session, ok := h.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *HttpHandler) submit(c *gin.Context) {
	session, ok := h.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Session not found"})
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
		return
	}

	text := req.Text
	var check *InputCheck
	if step, ok := session.currentStep(); ok {
		text = FormatInput(step, text)
		ic := CheckInput(step, text)
		check = &ic
	}

	res := session.Submit(c.Request.Context(), text)
	c.JSON(http.StatusOK, sessionResponse{Result: res, InputCheck: check, Snapshot: session.Snapshot()})
}

func (h *HttpHandler) closeSession(c *gin.Context) {
	if !h.manager.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
