package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/microai-dao/truststack/internal/event"
	"github.com/microai-dao/truststack/internal/merkle"
)

// EventHandler exposes read-only HTTP endpoints over the trust event log:
// point lookups, per-date and per-agent listings, daily Merkle roots, and
// inclusion proofs.
type EventHandler struct {
	events *event.Logger
	anchor *merkle.DailyAnchor
	logger *zap.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(events *event.Logger, anchor *merkle.DailyAnchor, logger *zap.Logger) *EventHandler {
	return &EventHandler{events: events, anchor: anchor, logger: logger}
}

// Register mounts the event routes on the given router group.
func (h *EventHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/events", h.ListByDate)
	rg.GET("/events/:id", h.Get)
	rg.GET("/events/:id/proof", h.Proof)
	rg.GET("/agents/:id/events", h.ListByAgent)
	rg.GET("/roots/:date", h.Root)
	rg.GET("/roots/:date/anchor", h.Anchor)
}

// Get handles GET /events/:id — returns a single trust event.
func (h *EventHandler) Get(c *gin.Context) {
	e, err := h.events.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		h.logger.Error("event lookup", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}
	c.JSON(http.StatusOK, e)
}

// ListByDate handles GET /events?date=YYYY-MM-DD — all events of one UTC date
// in append order.
func (h *EventHandler) ListByDate(c *gin.Context) {
	date := c.Query("date")
	if !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	events, err := h.events.EventsByDate(c.Request.Context(), date)
	if err != nil {
		h.logger.Error("events by date", zap.String("date", date), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}
	if events == nil {
		events = []*event.TrustEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "count": len(events), "events": events})
}

// ListByAgent handles GET /agents/:id/events — recent events for one agent,
// newest partitions first, bounded by the limit query parameter.
func (h *EventHandler) ListByAgent(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	agentID := c.Param("id")
	events, err := h.events.EventsByAgent(c.Request.Context(), agentID, limit)
	if err != nil {
		h.logger.Error("events by agent", zap.String("agent_id", agentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}
	if events == nil {
		events = []*event.TrustEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "count": len(events), "events": events})
}

// Proof handles GET /events/:id/proof — builds the day's Merkle tree and
// returns the inclusion proof for the event's leaf hash.
func (h *EventHandler) Proof(c *gin.Context) {
	ctx := c.Request.Context()

	e, err := h.events.GetEvent(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		h.logger.Error("event lookup", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}

	hashes, err := h.events.DailyHashes(ctx, e.Date())
	if err != nil {
		h.logger.Error("daily hashes", zap.String("date", e.Date()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build daily tree"})
		return
	}

	tree, err := merkle.New(hashes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build daily tree"})
		return
	}
	proof, err := tree.Proof(event.LeafHash(e))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event not present in daily tree"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"event_id": e.EventID, "date": e.Date(), "proof": proof})
}

// Root handles GET /roots/:date — returns the Merkle root for a date,
// computing and caching it when not already cached. An empty day yields the
// sentinel empty-day root.
func (h *EventHandler) Root(c *gin.Context) {
	ctx := c.Request.Context()

	date := c.Param("date")
	if !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	root, err := h.anchor.RootForDate(ctx, date)
	if errors.Is(err, merkle.ErrRootNotCached) {
		hashes, herr := h.events.DailyHashes(ctx, date)
		if herr != nil {
			h.logger.Error("daily hashes", zap.String("date", date), zap.Error(herr))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build daily tree"})
			return
		}
		root, err = h.anchor.GenerateDailyRoot(ctx, date, hashes)
		if err == nil {
			RecordDailyRoot()
		}
	}
	if err != nil {
		h.logger.Error("daily root", zap.String("date", date), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve daily root"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"date": date, "merkle_root": root})
}

// Anchor handles GET /roots/:date/anchor — returns a pending anchor record
// for the date's root, ready for the on-chain anchoring collaborator.
func (h *EventHandler) Anchor(c *gin.Context) {
	ctx := c.Request.Context()

	date := c.Param("date")
	if !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	root, err := h.anchor.RootForDate(ctx, date)
	if err != nil {
		if errors.Is(err, merkle.ErrRootNotCached) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no root generated for date"})
			return
		}
		h.logger.Error("daily root", zap.String("date", date), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve daily root"})
		return
	}

	record := h.anchor.PrepareAnchorTransaction(date, root)
	callData, err := record.CallData()
	if err != nil {
		h.logger.Error("anchor call data", zap.String("date", date), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stored root is malformed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": record, "call_data": callData})
}

func validDate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}
