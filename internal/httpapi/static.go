package httpapi

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	apiPathPrefix = "/api"
	spaIndexFile  = "index.html"
	errorNotFound = "Not found"
)

// Icons browsers request on their own. When the build ships none they answer 404, not the index page.
var missingIconPaths = map[string]struct{}{
	"/favicon.ico":                      {},
	"/apple-touch-icon-precomposed.png": {},
}

// StaticSiteHandler serves the built frontend and falls back to index.html for client side routes.
type StaticSiteHandler struct {
	root string
}

func NewStaticSiteHandler(root string) *StaticSiteHandler {
	return &StaticSiteHandler{root: filepath.Clean(root)}
}

func (handler *StaticSiteHandler) Serve(context *gin.Context) {
	requestPath := context.Request.URL.Path
	if requestPath == apiPathPrefix || strings.HasPrefix(requestPath, apiPathPrefix+"/") {
		context.JSON(http.StatusNotFound, gin.H{jsonKeyError: errorNotFound})
		return
	}
	if context.Request.Method != http.MethodGet && context.Request.Method != http.MethodHead {
		context.Status(http.StatusNotFound)
		return
	}
	if _, missing := missingIconPaths[requestPath]; missing {
		if !handler.exists(requestPath) {
			context.Status(http.StatusNotFound)
			return
		}
	}
	if requestPath != "/" && handler.exists(requestPath) {
		context.File(handler.resolve(requestPath))
		return
	}
	context.File(filepath.Join(handler.root, spaIndexFile))
}

func (handler *StaticSiteHandler) resolve(requestPath string) string {
	return filepath.Join(handler.root, filepath.FromSlash(path.Clean("/"+requestPath)))
}

func (handler *StaticSiteHandler) exists(requestPath string) bool {
	info, statErr := os.Stat(handler.resolve(requestPath))
	return statErr == nil && !info.IsDir()
}
