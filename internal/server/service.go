package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/samiralibabic/previewd/internal/audit"
	"github.com/samiralibabic/previewd/internal/config"
	"github.com/samiralibabic/previewd/internal/events"
	"github.com/samiralibabic/previewd/internal/gateway"
	"github.com/samiralibabic/previewd/internal/pin"
	"github.com/samiralibabic/previewd/internal/policy"
	"github.com/samiralibabic/previewd/internal/preview"
	"github.com/samiralibabic/previewd/internal/protocol"
	"github.com/samiralibabic/previewd/internal/session"
)

const ServerVersion = "0.1.0"

type Deps struct {
	Previews *preview.Manager
	Pins     *pin.Service
	Bus      *events.Bus
	Logger   *slog.Logger
}

type Service struct {
	cfg      config.Config
	previews *preview.Manager
	pins     *pin.Service
	policy   *policy.Engine
	bus      *events.Bus
	audit    *audit.Logger
	logger   *slog.Logger
}

func NewService(cfg config.Config, deps Deps) (*Service, error) {
	pol, err := policy.New(config.AllowedRoots(cfg))
	if err != nil {
		return nil, err
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		previews: deps.Previews,
		pins:     deps.Pins,
		policy:   pol,
		bus:      deps.Bus,
		audit:    audit.New(cfg.Audit.Enabled, cfg.Audit.Path, deps.Logger),
		logger:   deps.Logger,
	}, nil
}

func (s *Service) Bus() *events.Bus {
	return s.bus
}

func parseID(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var id any
	_ = json.Unmarshal(raw, &id)
	return id
}

// projectOf extracts the project a request refers to, if any. Transports
// use it to subscribe the client to that project's lifecycle events.
func projectOf(params json.RawMessage) string {
	var p struct {
		Project string `json:"project"`
	}
	_ = json.Unmarshal(params, &p)
	return p.Project
}

func (s *Service) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	id := parseID(req.ID)
	if req.JSONRPC != protocol.Version {
		return protocol.ErrorResponse(id, protocol.ErrInvalidParams, "jsonrpc must be 2.0", nil)
	}

	var (
		out any
		err error
	)
	switch req.Method {
	case "preview.create":
		out, err = s.previewCreate(ctx, req.Params)
	case "preview.shutdown":
		out, err = s.previewShutdown(ctx, req.Params)
	case "preview.list":
		out, err = s.previewList(req.Params)
	case "preview.resolve":
		out, err = s.previewResolve(req.Params)
	case "pin.get":
		out, err = s.pinGet(req.Params)
	case "pin.set":
		out, err = s.pinSet(ctx, req.Params)
	case "pin.clear":
		out, err = s.pinClear(ctx, req.Params)
	case "pin.toggle":
		out, err = s.pinToggle(ctx, req.Params)
	default:
		return protocol.ErrorResponse(id, protocol.ErrMethodNotFound, "method not found", map[string]any{"method": req.Method})
	}

	entry := audit.Entry{Project: projectOf(req.Params), Method: req.Method, Params: req.Params}
	if err != nil {
		resp := s.errResp(id, err)
		entry.Error = resp.Error
		s.audit.Write(entry)
		s.logger.Debug("Request failed", "method", req.Method, "error", err)
		return resp
	}
	entry.Result = out
	s.audit.Write(entry)
	return protocol.Response{JSONRPC: protocol.Version, ID: id, Result: out}
}

func (s *Service) errResp(id any, err error) protocol.Response {
	var rpcErr *protocol.RPCError
	switch {
	case errors.Is(err, policy.ErrForbiddenPath):
		return protocol.ErrorResponse(id, protocol.ErrForbiddenPath, "Path is outside allowed roots", nil)
	case errors.Is(err, policy.ErrRelativeProject), errors.Is(err, pin.ErrEmptyPath):
		return protocol.ErrorResponse(id, protocol.ErrInvalidParams, err.Error(), nil)
	case errors.Is(err, session.ErrNotFound):
		return protocol.ErrorResponse(id, protocol.ErrSessionNotFound, err.Error(), nil)
	case errors.Is(err, preview.ErrClosed):
		return protocol.ErrorResponse(id, protocol.ErrShuttingDown, err.Error(), nil)
	case errors.Is(err, gateway.ErrUnavailable):
		return protocol.ErrorResponse(id, protocol.ErrBackendUnavailable, err.Error(), nil)
	case errors.Is(err, preview.ErrStartFailed):
		return protocol.ErrorResponse(id, protocol.ErrPreviewStart, err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrorResponse(id, protocol.ErrTimeout, err.Error(), nil)
	case errors.As(err, &rpcErr):
		return protocol.ErrorResponse(id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	default:
		return protocol.ErrorResponse(id, protocol.ErrInternal, err.Error(), nil)
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &protocol.RPCError{Code: protocol.ErrInvalidParams, Message: err.Error()}
	}
	return v, nil
}

func invalidParams(msg string) error {
	return &protocol.RPCError{Code: protocol.ErrInvalidParams, Message: msg}
}

func (s *Service) document(project, path string) (string, string, error) {
	if project == "" || path == "" {
		return "", "", invalidParams("project and path are required")
	}
	return s.policy.Document(project, path)
}

func (s *Service) previewCreate(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decode[protocol.PreviewCreateParams](raw)
	if err != nil {
		return nil, err
	}
	project, doc, err := s.document(p.Project, p.Path)
	if err != nil {
		return nil, err
	}
	sess, err := s.previews.Create(ctx, doc, project)
	if err != nil {
		return nil, err
	}
	return protocol.PreviewCreateResult{Address: sess.Address, Key: sess.Key}, nil
}

func (s *Service) previewShutdown(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decode[protocol.PreviewShutdownParams](raw)
	if err != nil {
		return nil, err
	}
	project, doc, err := s.document(p.Project, p.Path)
	if err != nil {
		return nil, err
	}
	stopped := s.previews.Stop(ctx, doc, project)
	return protocol.PreviewShutdownResult{OK: true, Stopped: stopped}, nil
}

func (s *Service) previewList(raw json.RawMessage) (any, error) {
	p, err := decode[protocol.PreviewListParams](raw)
	if err != nil {
		return nil, err
	}
	out := protocol.PreviewListResult{Sessions: []protocol.PreviewSession{}}
	for _, sess := range s.previews.Sessions() {
		if p.Project != "" && sess.Project != p.Project {
			continue
		}
		out.Sessions = append(out.Sessions, protocol.PreviewSession{
			Key:              sess.Key,
			Project:          sess.Project,
			Address:          sess.Address,
			TaskID:           sess.TaskID.String(),
			DataPlanePort:    sess.DataPlanePort,
			ControlPlanePort: sess.ControlPlanePort,
			StartedAt:        sess.StartedAt.Format(time.RFC3339Nano),
		})
	}
	return out, nil
}

func (s *Service) previewResolve(raw json.RawMessage) (any, error) {
	p, err := decode[protocol.PreviewResolveParams](raw)
	if err != nil {
		return nil, err
	}
	project, doc, err := s.document(p.Project, p.Path)
	if err != nil {
		return nil, err
	}
	return protocol.PreviewResolveResult{Key: s.previews.Resolve(project, doc)}, nil
}

func (s *Service) pinGet(raw json.RawMessage) (any, error) {
	p, err := decode[protocol.PinGetParams](raw)
	if err != nil {
		return nil, err
	}
	project, err := s.policy.Project(p.Project)
	if err != nil {
		return nil, err
	}
	path, err := s.pins.Get(project)
	if err != nil {
		return nil, err
	}
	return protocol.PinResult{Project: project, Path: path, Pinned: path != ""}, nil
}

func (s *Service) pinSet(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decode[protocol.PinSetParams](raw)
	if err != nil {
		return nil, err
	}
	project, doc, err := s.document(p.Project, p.Path)
	if err != nil {
		return nil, err
	}
	if err := s.pins.Set(ctx, project, doc); err != nil {
		return nil, err
	}
	return protocol.PinResult{Project: project, Path: doc, Pinned: true}, nil
}

func (s *Service) pinClear(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decode[protocol.PinClearParams](raw)
	if err != nil {
		return nil, err
	}
	project, err := s.policy.Project(p.Project)
	if err != nil {
		return nil, err
	}
	if err := s.pins.Clear(ctx, project); err != nil {
		return nil, err
	}
	return protocol.PinResult{Project: project}, nil
}

func (s *Service) pinToggle(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decode[protocol.PinSetParams](raw)
	if err != nil {
		return nil, err
	}
	project, doc, err := s.document(p.Project, p.Path)
	if err != nil {
		return nil, err
	}
	path, err := s.pins.Toggle(ctx, project, doc)
	if err != nil {
		return nil, err
	}
	return protocol.PinResult{Project: project, Path: path, Pinned: path != ""}, nil
}
