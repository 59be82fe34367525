// Package static serves files from mounted directories.
//
// Every regular file below a mount's directory becomes one action whose
// name is the file's slash-separated path relative to the directory, so
// "public/css/site.css" mounted at "assets/" is served at
// /assets/css/site.css. Dot files and dot directories are skipped. File
// contents are read per request; only the set of files is baked into
// the route table, which a Watcher rebuilds when it changes.
package static

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/debug"
	"github.com/rhuss/ember/pkg/routing"
)

// Mount maps a route prefix onto a directory. Prefix has no leading
// slash and is either empty or ends with one.
type Mount struct {
	Prefix string
	Dir    string
}

// Controllers scans every mount and returns one controller per mount.
func Controllers(mounts ...Mount) ([]routing.Controller, error) {
	ctrls := make([]routing.Controller, 0, len(mounts))
	for _, m := range mounts {
		c, err := m.controller()
		if err != nil {
			return nil, err
		}
		ctrls = append(ctrls, c)
	}
	return ctrls, nil
}

func (m Mount) controller() (routing.Controller, error) {
	c := routing.Controller{Prefix: m.Prefix}
	root := os.DirFS(m.Dir)
	err := fs.WalkDir(root, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		c.Actions = append(c.Actions, fileAction(filepath.Join(m.Dir, filepath.FromSlash(name)), name))
		return nil
	})
	if err != nil {
		return routing.Controller{}, fmt.Errorf("scanning %s: %w", m.Dir, err)
	}
	debug.Log("static", "mount scanned", "prefix", m.Prefix, "dir", m.Dir, "files", len(c.Actions))
	return c, nil
}

func fileAction(file, name string) routing.Action {
	return routing.Action{
		Name:   name,
		Params: []routing.Param{routing.RequestParam("req")},
		Handler: func(_ context.Context, args *routing.Args) (*api.Response, error) {
			return serveFile(file, args.Request())
		},
	}
}

// serveFile reads file and answers with its contents. A single
// satisfiable byte range yields 206; anything else about the Range header
// is ignored and the whole file is sent.
func serveFile(file string, req *api.Request) (*api.Response, error) {
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		// Removed since the table was built.
		return api.NotFound(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}

	contentType := ContentType(file)
	size := int64(len(data))

	if rh := req.Range(); rh != nil && rh.Unit == "bytes" {
		if start, end, ok := rh.Ranges[0].Resolve(size); ok {
			debug.Trace("static", "range request", "file", file, "start", start, "end", end)
			return api.Data(data[start:end+1], api.StatusPartialContent, api.ContentTypeCustom).
				SetHeader("Content-Type", contentType).
				SetHeader("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size)).
				SetHeader("Accept-Ranges", "bytes"), nil
		}
	}

	return api.Data(data, api.StatusOK, api.ContentTypeCustom).
		SetHeader("Content-Type", contentType).
		SetHeader("Accept-Ranges", "bytes"), nil
}

// ContentType guesses a file's media type from its extension, falling
// back to application/octet-stream.
func ContentType(file string) string {
	if ct := mime.TypeByExtension(path.Ext(filepath.ToSlash(file))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
