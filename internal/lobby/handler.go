package lobby

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GET /tables
func (h *Handler) List(c *gin.Context) {
	tables, err := h.svc.Tables(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

// GET /tables/:id
func (h *Handler) Get(c *gin.Context) {
	t, ok, err := h.svc.Table(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
		return
	}
	c.JSON(http.StatusOK, t)
}

// GET /me/table  (需带 JWT)
func (h *Handler) Mine(c *gin.Context) {
	addr := c.GetString("address")
	tableID, err := h.svc.TableOf(c.Request.Context(), addr)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, PlayerTable{Address: addr, TableID: tableID})
}
