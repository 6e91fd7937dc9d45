package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/dogeindexer/internal/chain"
	"github.com/rawblock/dogeindexer/internal/dunes"
	"github.com/rawblock/dogeindexer/internal/inscription"
	"github.com/rawblock/dogeindexer/internal/metrics"
	"github.com/rawblock/dogeindexer/internal/ordinals"
	"github.com/rawblock/dogeindexer/internal/query"
)

// Handler binds the query service to the router.
type Handler struct {
	queries *query.Service
	hub     *Hub
}

// SetupRouter builds the gin engine: /api/v1 read endpoints, the
// websocket stream, and /metrics.
func SetupRouter(queries *query.Service, hub *Hub) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestId())

	handler := &Handler{queries: queries, hub: hub}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", handler.handleHealth)
		v1.GET("/status", handler.handleStatus)
		v1.GET("/stream", hub.Subscribe)

		v1.GET("/sat/:number", handler.handleSat)
		v1.GET("/output/:outpoint", handler.handleOutput)

		v1.GET("/inscription/:id", handler.handleInscription)
		v1.GET("/inscription/:id/content", handler.handleInscriptionContent)
		v1.GET("/inscriptions/number/:number", handler.handleInscriptionByNumber)

		v1.GET("/dunes", handler.handleDunes)
		v1.GET("/dune/:name", handler.handleDune)
		v1.GET("/dune-id/:id", handler.handleDuneById)

		v1.GET("/drc20/tokens", handler.handleDrc20Tokens)
		v1.GET("/drc20/token/:tick", handler.handleDrc20Token)
		v1.GET("/drc20/balances/:address", handler.handleDrc20Balances)
		v1.GET("/drc20/transferable/:address", handler.handleDrc20Transferables)
	}

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

// requestId tags every request for log correlation.
func requestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set("requestId", id)
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}

// fail maps service errors onto the structured error envelope:
// NotFound for missing rows, Internal for everything else. Malformed
// identifiers are reported through badRequest instead.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, query.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "NotFound", "reason": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal", "reason": err.Error()})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "reason": err.Error()})
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleStatus(c *gin.Context) {
	status, err := h.queries.Status()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) handleSat(c *gin.Context) {
	sat, err := chain.ParseSat(c.Param("number"))
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.queries.Sat(sat))
}

func (h *Handler) handleOutput(c *gin.Context) {
	op, err := ordinals.ParseOutPoint(c.Param("outpoint"))
	if err != nil {
		badRequest(c, err)
		return
	}
	info, err := h.queries.Output(op)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) handleInscription(c *gin.Context) {
	id, err := inscription.ParseId(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	info, _, err := h.queries.Inscription(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) handleInscriptionContent(c *gin.Context) {
	id, err := inscription.ParseId(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	info, body, err := h.queries.Inscription(id)
	if err != nil {
		fail(c, err)
		return
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, body)
}

func (h *Handler) handleInscriptionByNumber(c *gin.Context) {
	number, err := strconv.ParseUint(c.Param("number"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	info, _, err := h.queries.InscriptionByNumber(number)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) handleDunes(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	infos, err := h.queries.Dunes(page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dunes": infos, "page": page})
}

func (h *Handler) handleDune(c *gin.Context) {
	info, err := h.queries.DuneByName(c.Param("name"))
	if err != nil {
		if errors.Is(err, query.ErrNotFound) {
			fail(c, err)
		} else {
			badRequest(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) handleDuneById(c *gin.Context) {
	id, err := dunes.ParseDuneId(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	info, err := h.queries.DuneById(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) handleDrc20Tokens(c *gin.Context) {
	infos, err := h.queries.Drc20Tokens()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": infos})
}

func (h *Handler) handleDrc20Token(c *gin.Context) {
	info, err := h.queries.Drc20Token(c.Param("tick"))
	if err != nil {
		if errors.Is(err, query.ErrNotFound) {
			fail(c, err)
		} else {
			badRequest(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) handleDrc20Balances(c *gin.Context) {
	balances, err := h.queries.Drc20Balances(c.Param("address"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

func (h *Handler) handleDrc20Transferables(c *gin.Context) {
	logs, err := h.queries.Drc20Transferables(c.Param("address"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transferable": logs})
}
