package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marketplace-service/internal/auth"
)

func (h *Handler) ListDownloads(c *gin.Context) {
	links, err := h.downloads.ListForOrder(c.Request.Context(), auth.Current(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, links)
}

func (h *Handler) RegenerateDownload(c *gin.Context) {
	link, err := h.downloads.Regenerate(c.Request.Context(), auth.Current(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

// RedeemDownload answers with the file location as JSON. Browsers asking
// for text/html are redirected to the file instead.
func (h *Handler) RedeemDownload(c *gin.Context) {
	dl, err := h.downloads.Redeem(c.Request.Context(), auth.Current(c), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}

	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML {
		c.Redirect(http.StatusFound, dl.FileURL)
		return
	}
	c.JSON(http.StatusOK, dl)
}
