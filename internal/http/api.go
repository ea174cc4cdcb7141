package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/mengelbart/glpipe"
)

// SurfaceFactory creates output surfaces requested through the API.
type SurfaceFactory func(width, height int) (glpipe.Surface, error)

type NodeInfo struct {
	Name   string   `json:"name,omitempty"`
	ID     uint64   `json:"id"`
	Kind   string   `json:"kind"`
	State  string   `json:"state"`
	Parent uint64   `json:"parent,omitempty"`
	Next   uint64   `json:"next,omitempty"`
	Effect string   `json:"effect,omitempty"`
	Count  *int     `json:"count,omitempty"`
	Keys   []string `json:"keys,omitempty"`
}

type captureRequest struct {
	Count    int    `json:"count"`
	Interval string `json:"interval"`
}

type effectRequest struct {
	Effect string `json:"effect"`
}

type surfaceRequest struct {
	Key    string `json:"key"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Mirror bool   `json:"mirror"`
}

// API exposes named pipeline nodes over HTTP. Handlers only call the
// thread-safe node API.
type API struct {
	logger   *slog.Logger
	surfaces SurfaceFactory

	mu    sync.RWMutex
	nodes map[string]glpipe.Node
}

func NewAPI(surfaces SurfaceFactory) *API {
	return &API{
		logger:   slog.Default(),
		surfaces: surfaces,
		nodes:    map[string]glpipe.Node{},
	}
}

// Register makes n reachable under name.
func (a *API) Register(name string, n glpipe.Node) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes[name] = n
}

func (a *API) RegisterRoutes(mux *httprouter.Router) {
	mux.GET("/api/v1/nodes", a.ListNodes)
	mux.GET("/api/v1/nodes/:name", a.GetNode)
	mux.GET("/api/v1/nodes/:name/chain", a.GetChain)
	mux.POST("/api/v1/nodes/:name/capture", a.TriggerCapture)
	mux.PUT("/api/v1/nodes/:name/effect", a.SetEffect)
	mux.POST("/api/v1/nodes/:name/surfaces", a.AddSurface)
	mux.DELETE("/api/v1/nodes/:name/surfaces/:key", a.RemoveSurface)
}

func (a *API) lookup(w http.ResponseWriter, ps httprouter.Params) (string, glpipe.Node, bool) {
	name := ps.ByName("name")
	a.mu.RLock()
	n, ok := a.nodes[name]
	a.mu.RUnlock()
	if !ok {
		http.Error(w, fmt.Sprintf("unknown node: %q", name), http.StatusNotFound)
	}
	return name, n, ok
}

func (a *API) ListNodes(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	a.mu.RLock()
	names := make([]string, 0, len(a.nodes))
	for name := range a.nodes {
		names = append(names, name)
	}
	a.mu.RUnlock()
	sort.Strings(names)

	infos := make([]NodeInfo, 0, len(names))
	for _, name := range names {
		a.mu.RLock()
		n := a.nodes[name]
		a.mu.RUnlock()
		infos = append(infos, describe(name, n))
	}
	writeJSON(w, http.StatusOK, infos)
}

func (a *API) GetNode(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	name, n, ok := a.lookup(w, ps)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describe(name, n))
}

func (a *API) GetChain(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	_, n, ok := a.lookup(w, ps)
	if !ok {
		return
	}
	nodes, err := glpipe.Nodes(n)
	if err != nil {
		writeError(w, err)
		return
	}
	infos := make([]NodeInfo, len(nodes))
	for i, n := range nodes {
		infos[i] = describe("", n)
	}
	writeJSON(w, http.StatusOK, infos)
}

func (a *API) TriggerCapture(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name, n, ok := a.lookup(w, ps)
	if !ok {
		return
	}
	capture, ok := n.(*glpipe.CapturePipeline)
	if !ok {
		http.Error(w, fmt.Sprintf("node %q does not capture", name), http.StatusBadRequest)
		return
	}
	req := captureRequest{Count: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "failed to decode capture request", http.StatusBadRequest)
			return
		}
	}
	if v := r.URL.Query().Get("count"); v != "" {
		count, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		req.Count = count
	}
	var interval time.Duration
	if req.Interval != "" {
		var err error
		if interval, err = time.ParseDuration(req.Interval); err != nil {
			http.Error(w, "invalid interval", http.StatusBadRequest)
			return
		}
	}
	if err := capture.TriggerN(req.Count, interval); err != nil {
		writeError(w, err)
		return
	}
	a.logger.Info("capture triggered", "node", name, "count", req.Count, "interval", interval)
	writeJSON(w, http.StatusAccepted, describe(name, n))
}

func (a *API) SetEffect(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name, n, ok := a.lookup(w, ps)
	if !ok {
		return
	}
	effect, ok := n.(*glpipe.EffectPipeline)
	if !ok {
		http.Error(w, fmt.Sprintf("node %q has no effect", name), http.StatusBadRequest)
		return
	}
	var req effectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "failed to decode effect request", http.StatusBadRequest)
		return
	}
	id, ok := glpipe.ParseEffect(req.Effect)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown effect: %q", req.Effect), http.StatusBadRequest)
		return
	}
	if err := effect.SetEffect(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(name, n))
}

func (a *API) AddSurface(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name, n, ok := a.lookup(w, ps)
	if !ok {
		return
	}
	sd, ok := n.(*glpipe.SurfaceDistributePipeline)
	if !ok {
		http.Error(w, fmt.Sprintf("node %q does not distribute to surfaces", name), http.StatusBadRequest)
		return
	}
	if a.surfaces == nil {
		http.Error(w, "surfaces cannot be created", http.StatusNotImplemented)
		return
	}
	var req surfaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "failed to decode surface request", http.StatusBadRequest)
		return
	}
	if req.Key == "" {
		http.Error(w, "missing surface key", http.StatusBadRequest)
		return
	}
	s, err := a.surfaces(req.Width, req.Height)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to create surface: %v", err), http.StatusBadRequest)
		return
	}
	if err := sd.AddSurface(req.Key, s, req.Mirror); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) RemoveSurface(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	name, n, ok := a.lookup(w, ps)
	if !ok {
		return
	}
	sd, ok := n.(*glpipe.SurfaceDistributePipeline)
	if !ok {
		http.Error(w, fmt.Sprintf("node %q does not distribute to surfaces", name), http.StatusBadRequest)
		return
	}
	if err := sd.RemoveSurface(ps.ByName("key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func describe(name string, n glpipe.Node) NodeInfo {
	info := NodeInfo{
		Name:  name,
		ID:    uint64(n.ID()),
		Kind:  fmt.Sprint(n),
		State: n.State().String(),
	}
	if p := n.Parent(); p != nil {
		info.Parent = uint64(p.ID())
	}
	if next := n.Pipeline(); next != nil {
		info.Next = uint64(next.ID())
	}
	if n.IsReleased() {
		return info
	}
	switch n := n.(type) {
	case *glpipe.EffectPipeline:
		info.Effect = n.Effect().String()
	case *glpipe.CapturePipeline:
		pending := n.Pending()
		info.Count = &pending
	case *glpipe.DistributePipeline:
		count := n.Count()
		info.Count = &count
	case *glpipe.SurfaceDistributePipeline:
		count := n.Count()
		info.Count = &count
		info.Keys = n.Keys()
	}
	return info
}

func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, glpipe.ErrReleased):
		status = http.StatusGone
	case errors.Is(err, glpipe.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, glpipe.ErrContextClosed):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
