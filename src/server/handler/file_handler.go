package handler

import (
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"wserver/src/model"
	"wserver/src/server/conn"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const indexFile = "index.html"

var (
	ErrForbidden = errors.New("path escapes the root directory")
	ErrNotFound  = errors.New("file not found")
)

// Serves static files from a root directory, one request per connection.
//
// It is also the size probe of the SFF policy: Resolve reports the size of
// the file a connection asks for, before the connection is queued.
type FileHandler struct {
	root   string
	logger *log.Logger
}

func NewFileHandler(root string, logger *log.Logger) *FileHandler {
	return &FileHandler{
		root:   root,
		logger: logger,
	}
}

// Returns the size of the file requested on c.
//
// Only the request line is consumed; it stays cached on c for Handle.
func (h *FileHandler) Resolve(c *conn.Conn) (uint64, error) {
	line, err := c.RequestLine()
	if err != nil {
		return 0, err
	}
	req, err := model.ParseRequestLine(line)
	if err != nil {
		return 0, err
	}
	_, info, err := h.lookup(req.URI)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

// Handle one request. Closing c is left to the caller.
//
// Errors the client caused are answered and logged but not returned; the
// returned error means the response could not be delivered.
func (h *FileHandler) Handle(c *conn.Conn) error {
	entry := h.logger.WithFields(log.Fields{
		"conn":   c.ID,
		"remote": c.RemoteAddr,
	})

	line, err := c.RequestLine()
	if err != nil {
		return err
	}
	req, err := model.ParseRequestLine(line)
	if err != nil {
		entry.WithError(err).Debug("bad request")
		return h.respondError(c, model.StatusBadRequest)
	}
	if req.Headers, err = model.ReadHeaders(c.Reader()); err != nil {
		entry.WithError(err).Debug("bad request")
		return h.respondError(c, model.StatusBadRequest)
	}
	entry = entry.WithFields(log.Fields{"method": req.Method, "uri": req.URI})

	if req.Method != "GET" {
		entry.WithField("status", model.StatusNotImplemented).Info("request")
		return h.respondError(c, model.StatusNotImplemented)
	}

	name, info, err := h.lookup(req.URI)
	if err != nil {
		status := model.StatusNotFound
		if errors.Is(err, ErrForbidden) {
			status = model.StatusForbidden
		}
		entry.WithField("status", status).Info("request")
		return h.respondError(c, status)
	}

	if err := h.sendFile(c, name, info); err != nil {
		return errors.Wrapf(err, "sending %s", req.URI)
	}
	entry.WithFields(log.Fields{
		"status": model.StatusOK,
		"bytes":  info.Size(),
	}).Info("request")
	return nil
}

// Maps a request URI to a regular file under the root directory.
func (h *FileHandler) lookup(uri string) (string, os.FileInfo, error) {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}
	if strings.Contains(uri, "..") {
		return "", nil, errors.Wrapf(ErrForbidden, "%q", uri)
	}

	name := filepath.Join(h.root, filepath.FromSlash(path.Clean("/"+uri)))
	info, err := os.Stat(name)
	if err == nil && info.IsDir() {
		name = filepath.Join(name, indexFile)
		info, err = os.Stat(name)
	}
	if err != nil {
		return "", nil, errors.Wrapf(ErrNotFound, "%q: %v", uri, err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, errors.Wrapf(ErrNotFound, "%q is not a regular file", uri)
	}
	return name, info, nil
}

func (h *FileHandler) sendFile(w io.Writer, name string, info os.FileInfo) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	res := model.Response{
		Status:        model.StatusOK,
		ContentType:   contentType(name),
		ContentLength: info.Size(),
	}
	if err := res.WriteHeader(w); err != nil {
		return err
	}
	_, err = io.CopyN(w, f, info.Size())
	return err
}

func (h *FileHandler) respondError(w io.Writer, status int) error {
	body := model.StatusText(status) + "\n"
	res := model.Response{
		Status:        status,
		ContentType:   "text/plain",
		ContentLength: int64(len(body)),
	}
	if err := res.WriteHeader(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, body)
	return err
}

func contentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "text/plain"
}
