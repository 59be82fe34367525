package observability

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/routing"
)

// Exposition returns a controller serving the metrics gathered by g at
// path, e.g. "metrics" or "internal/metrics". The format is negotiated
// from the Accept header.
func Exposition(path string, g prometheus.Gatherer) routing.Controller {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	path = strings.TrimPrefix(path, "/")
	prefix, name := "", path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		prefix, name = path[:i+1], path[i+1:]
	}

	return routing.Controller{
		Prefix: prefix,
		Actions: []routing.Action{{
			Name:   name,
			Params: []routing.Param{routing.RequestParam("req")},
			Handler: func(_ context.Context, args *routing.Args) (*api.Response, error) {
				return expose(g, args.Request())
			},
		}},
	}
}

func expose(g prometheus.Gatherer, req *api.Request) (*api.Response, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}

	format := expfmt.Negotiate(http.Header{"Accept": req.HeaderValues("accept")})
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return nil, fmt.Errorf("closing metrics encoder: %w", err)
		}
	}

	return api.Data(buf.Bytes(), api.StatusOK, api.ContentTypeCustom).
		SetHeader("Content-Type", string(format)), nil
}
