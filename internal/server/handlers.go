package server

import (
	"errors"
	"net/http"

	"github.com/SolsticeMemorials/keepsake/backend/internal/memories"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type photoPayload struct {
	PublicID  string `json:"public_id"`
	Caption   string `json:"caption"`
	TakenAt   string `json:"taken_at"`
	SortIndex int    `json:"sort_index"`
}

type memoryRequestPayload struct {
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	Title          string         `json:"title"`
	Date           string         `json:"date"`
	Body           string         `json:"body"`
	Photos         []photoPayload `json:"photos"`
	ChallengeToken string         `json:"challenge_token"`
}

func (p memoryRequestPayload) toInput() memories.MemoryInput {
	photos := make([]memories.Photo, 0, len(p.Photos))
	for _, photo := range p.Photos {
		photos = append(photos, memories.Photo{
			PublicID:  photo.PublicID,
			Caption:   photo.Caption,
			TakenAt:   photo.TakenAt,
			SortIndex: photo.SortIndex,
		})
	}
	return memories.MemoryInput{
		Name:   p.Name,
		Email:  p.Email,
		Title:  p.Title,
		Date:   p.Date,
		Body:   p.Body,
		Photos: photos,
	}
}

// memoryResponsePayload is the public view of a memory. The author email is
// deliberately absent: it exists only for owner matching.
type memoryResponsePayload struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Title      string         `json:"title,omitempty"`
	Date       string         `json:"date"`
	Body       string         `json:"body"`
	Photos     []photoPayload `json:"photos"`
	PhotoCount int            `json:"photo_count"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
}

func toMemoryResponse(doc memories.MemoryDetail) memoryResponsePayload {
	photos := make([]photoPayload, 0, len(doc.Photos))
	for _, photo := range doc.Photos {
		photos = append(photos, photoPayload{
			PublicID:  photo.PublicID,
			Caption:   photo.Caption,
			TakenAt:   photo.TakenAt,
			SortIndex: photo.SortIndex,
		})
	}
	return memoryResponsePayload{
		ID:         doc.ID,
		Name:       doc.Name,
		Title:      doc.Title,
		Date:       doc.Date,
		Body:       doc.Body,
		Photos:     photos,
		PhotoCount: len(photos),
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func (h *httpHandler) handleCreateMemory(c *gin.Context) {
	var request memoryRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.antibot.Verify(c.Request.Context(), request.ChallengeToken, c.ClientIP()); err != nil {
		h.logger.Warn("challenge verification failed", zap.Error(err))
		c.JSON(http.StatusForbidden, gin.H{"error": "challenge_failed"})
		return
	}

	doc, err := h.memories.Create(c.Request.Context(), request.toInput())
	if err != nil {
		h.respondServiceError(c, err, "create_failed")
		return
	}

	editToken, _, err := h.tokens.IssueEditToken(doc.ID, doc.Email)
	if err != nil {
		// The memory exists; the author just loses self-service editing.
		h.logger.Error("edit token issuance failed", zap.String("memory_id", doc.ID), zap.Error(err))
		c.JSON(http.StatusCreated, gin.H{"id": doc.ID})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": doc.ID, "edit_token": editToken})
}

func (h *httpHandler) handleGetMemory(c *gin.Context) {
	id, err := memories.NewMemoryID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_memory_id"})
		return
	}

	doc, err := h.memories.Get(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err, "get_failed")
		return
	}
	c.JSON(http.StatusOK, toMemoryResponse(doc))
}

func (h *httpHandler) handleUpdateMemory(c *gin.Context) {
	id, err := memories.NewMemoryID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_memory_id"})
		return
	}
	if !h.authorizeMemoryAction(c, id) {
		return
	}

	var request memoryRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	doc, err := h.memories.Update(c.Request.Context(), id, request.toInput())
	if err != nil {
		h.respondServiceError(c, err, "update_failed")
		return
	}
	c.JSON(http.StatusOK, toMemoryResponse(doc))
}

func (h *httpHandler) handleDeleteMemory(c *gin.Context) {
	id, err := memories.NewMemoryID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_memory_id"})
		return
	}
	if !h.authorizeMemoryAction(c, id) {
		return
	}

	if err := h.memories.Delete(c.Request.Context(), id); err != nil {
		h.respondServiceError(c, err, "delete_failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListMemories(c *gin.Context) {
	items, err := h.memories.List(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err, "list_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": items, "count": len(items)})
}

type curatorSessionPayload struct {
	Password string `json:"password"`
}

func (h *httpHandler) handleCuratorSession(c *gin.Context) {
	var request curatorSessionPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.curatorGate.Authenticate(request.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"expires_in":   expiresIn,
		"token_type":   "Bearer",
	})
}

type bulkCreatePayload struct {
	Count int `json:"count"`
}

func (h *httpHandler) handleBulkCreate(c *gin.Context) {
	var request bulkCreatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	created, err := h.memories.SeedBulk(c.Request.Context(), request.Count)
	if err != nil {
		h.respondServiceError(c, err, "bulk_create_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created})
}

func (h *httpHandler) handleBulkDelete(c *gin.Context) {
	deleted, err := h.memories.PurgeSeeded(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err, "bulk_delete_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// authorizeMemoryAction checks that the validated bearer token may act on the
// memory: a curator token always may, an edit token only on its own memory.
func (h *httpHandler) authorizeMemoryAction(c *gin.Context, id memories.MemoryID) bool {
	claims, ok := sessionClaimsFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	if !claims.CanEdit(id.String()) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	return true
}

func (h *httpHandler) respondServiceError(c *gin.Context, err error, fallbackCode string) {
	if errors.Is(err, memories.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	if errors.Is(err, memories.ErrInvalidAuthorName) ||
		errors.Is(err, memories.ErrInvalidAuthorEmail) ||
		errors.Is(err, memories.ErrInvalidBody) ||
		errors.Is(err, memories.ErrInvalidMemoryID) {
		code := fallbackCode
		var serviceErr *memories.ServiceError
		if errors.As(err, &serviceErr) {
			code = serviceErr.Code()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": code})
		return
	}

	h.logger.Error("memory operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
