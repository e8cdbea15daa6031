package api

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/netfleet-core/internal/network"
	"github.com/nerrad567/netfleet-core/internal/projection"
)

// projectionOptions starts from the configured projection and applies the
// name, base and shape query overrides.
func (s *Server) projectionOptions(r *http.Request) (projection.Options, error) {
	q := r.URL.Query()
	name := firstNonEmpty(q.Get("name"), s.projCfg.Name)
	base := firstNonEmpty(q.Get("base"), s.projCfg.BaseNetwork)
	shapeName := firstNonEmpty(q.Get("shape"), s.projCfg.Shape)

	prefix, err := network.ParsePrefix(base)
	if err != nil {
		return projection.Options{}, err
	}
	shape, err := projection.ShapeByName(shapeName, prefix)
	if err != nil {
		return projection.Options{}, err
	}
	return projection.Options{
		Name:        name,
		BaseNetwork: prefix,
		Shape:       shape,
		OutputRoot:  s.projCfg.OutputRoot,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// render builds the bundle from the current graph, writing the error
// response itself on failure.
func (s *Server) render(w http.ResponseWriter, r *http.Request) (*projection.Bundle, bool) {
	opts, err := s.projectionOptions(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	bundle, err := projection.Render(s.graph.Snapshot(), opts, s.clock())
	var invalid *projection.ValidationError
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status":  http.StatusUnprocessableEntity,
			"code":    ErrCodeValidation,
			"message": "topology does not project onto the base network",
			"issues":  invalid.Issues,
		})
		return nil, false
	case err != nil:
		s.writeServiceError(w, r, err)
		return nil, false
	}
	return bundle, true
}

type bundleFile struct {
	Path string `json:"path"`
	Size int    `json:"size"`
}

type bundleView struct {
	Name        string       `json:"name"`
	Shape       string       `json:"shape"`
	Synthesized bool         `json:"synthesized"`
	Devices     int          `json:"devices"`
	Connections int          `json:"connections"`
	Digest      string       `json:"digest"`
	Files       []bundleFile `json:"files"`
	Root        string       `json:"root,omitempty"`
}

func bundleViewOf(b *projection.Bundle) bundleView {
	v := bundleView{
		Name:        b.Name,
		Shape:       b.Shape,
		Synthesized: b.Synthesized,
		Devices:     b.Devices,
		Connections: b.Connections,
		Digest:      b.Digest(),
	}
	for _, f := range b.Files() {
		v.Files = append(v.Files, bundleFile{Path: f.Path, Size: len(f.Data)})
	}
	return v
}

// handleProjection renders the bundle and lists its artifacts.
func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	bundle, ok := s.render(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, bundleViewOf(bundle))
}

// handleProjectionFile serves one rendered artifact verbatim.
func (s *Server) handleProjectionFile(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")
	bundle, ok := s.render(w, r)
	if !ok {
		return
	}
	data, found := bundle.File(p)
	if !found {
		writeNotFound(w, fmt.Sprintf("no artifact %q in bundle", p))
		return
	}
	switch path.Ext(p) {
	case ".yaml":
		w.Header().Set("Content-Type", "application/yaml")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.Header().Set("ETag", `"`+bundle.Digest()+`"`)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // best effort; the client may have gone
	w.Write(data)
}

// handleProjectionWrite renders the bundle into the configured output root.
// The root is never taken from the request.
func (s *Server) handleProjectionWrite(w http.ResponseWriter, r *http.Request) {
	if s.projCfg.OutputRoot == "" {
		writeBadRequest(w, "projection.output_root is not configured")
		return
	}
	bundle, ok := s.render(w, r)
	if !ok {
		return
	}
	if err := bundle.WriteDir(""); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info("projection written", "root", s.projCfg.OutputRoot, "digest", bundle.Digest(),
		"correlation_id", correlationFrom(r.Context()))
	v := bundleViewOf(bundle)
	v.Root = s.projCfg.OutputRoot
	writeJSON(w, http.StatusOK, v)
}
