package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/frames"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/httpclient"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const javascriptContentType = "application/javascript; charset=utf-8"

// BridgeScript serves the injectable bridge for pages loaded outside the
// proxy
func (h *Handlers) BridgeScript(c *gin.Context) {
	script, err := frames.BridgeScript(frames.DefaultScriptConfig(h.wsEndpoint))
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, javascriptContentType, []byte(script))
}

// Page fetches ?url= and serves it with the bridge injected at the top of
// <head>. Non-HTML responses pass through untouched.
func (h *Handlers) Page(c *gin.Context) {
	if !h.proxyEnabled || h.client == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "page proxy disabled"})
		return
	}

	target := c.Query("url")
	if target == "" {
		h.fail(c, http.StatusBadRequest, errors.New("url query parameter is required"))
		return
	}

	resp, err := h.client.Do(c.Request.Context(), httpclient.Request{
		Method: http.MethodGet,
		URL:    target,
		Header: http.Header{"Accept": {"text/html,application/xhtml+xml,*/*;q=0.8"}},
	})
	if err != nil {
		h.logger.Warn("Page fetch failed", zap.String("url", target), zap.Error(err))
		h.fail(c, proxyStatus(err), err)
		return
	}
	if h.maxPageBytes > 0 && int64(len(resp.Body)) > h.maxPageBytes {
		h.fail(c, http.StatusBadGateway, fmt.Errorf("page exceeds %d bytes", h.maxPageBytes))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if !frames.IsHTML(resp.Body, contentType) {
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Data(resp.Status, contentType, resp.Body)
		return
	}

	cfg := frames.DefaultScriptConfig(h.wsEndpoint)
	cfg.PageURL = resp.URL
	script, err := frames.BridgeScript(cfg)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	page, err := frames.InjectIntoHTML(resp.Body, contentType, script)
	if err != nil {
		h.logger.Warn("Bridge injection failed", zap.String("url", target), zap.Error(err))
		h.fail(c, http.StatusBadGateway, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(resp.Status, frames.HTMLContentType, page)
}

func proxyStatus(err error) int {
	switch {
	case errors.Is(err, httpclient.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, httpclient.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
