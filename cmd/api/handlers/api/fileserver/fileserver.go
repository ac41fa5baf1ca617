// package fileserver serves media blobs directly when the filesystem
// storage backend is in use. With S3 the signed URLs point at the bucket
// and this handler is never registered.
package fileserver

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
)

type FileServer struct {
	root string
}

func NewFileServer(root string) *FileServer {
	return &FileServer{root: root}
}

// Serve handles GET /media/* requests. The key is validated against the
// storage root so a crafted path can never escape it.
func (fs *FileServer) Serve() echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Param("*")
		if key == "" {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		full := filepath.Join(fs.root, filepath.FromSlash(key))
		if !strings.HasPrefix(full, filepath.Clean(fs.root)+string(filepath.Separator)) {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		st, err := os.Stat(full)
		if err != nil || st.IsDir() {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		return c.File(full)
	}
}
