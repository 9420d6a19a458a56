package handler

import (
	"net/http"
	"strconv"

	"github.com/GoPolymarket/bulkgate/internal/bulkorder"
	"github.com/GoPolymarket/bulkgate/internal/model"
	"github.com/GoPolymarket/bulkgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/bulkgate/internal/service"
	"github.com/gin-gonic/gin"
)

type BulkHandler struct {
	svc *service.BulkOrderService
}

func NewBulkHandler(svc *service.BulkOrderService) *BulkHandler {
	return &BulkHandler{svc: svc}
}

func (h *BulkHandler) CreateBatch(c *gin.Context) {
	var req model.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	resp, err := h.svc.BuildBatch(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *BulkHandler) GetBatch(c *gin.Context) {
	resp, err := h.svc.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BulkHandler) GetProof(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.Error(apperrors.NewInvalidRequest("index must be an integer"))
		return
	}
	resp, err := h.svc.GetProof(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BulkHandler) AttachSignature(c *gin.Context) {
	var req model.AttachSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	resp, err := h.svc.AttachSignature(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BulkHandler) Verify(c *gin.Context) {
	var req model.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	resp, err := h.svc.VerifyOrder(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BulkHandler) TypeHashes(c *gin.Context) {
	max, ok := maxHeightParam(c)
	if !ok {
		return
	}
	resp, err := h.svc.TypeHashes(max)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BulkHandler) Directory(c *gin.Context) {
	max, ok := maxHeightParam(c)
	if !ok {
		return
	}
	resp, err := h.svc.DirectoryCode(max)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// maxHeightParam reads ?max=, defaulting to the largest supported height.
func maxHeightParam(c *gin.Context) (int, bool) {
	raw := c.Query("max")
	if raw == "" {
		return bulkorder.MaxHeight, true
	}
	max, err := strconv.Atoi(raw)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest("max must be an integer"))
		return 0, false
	}
	return max, true
}
