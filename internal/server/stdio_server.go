package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/samiralibabic/previewd/internal/protocol"
	"github.com/samiralibabic/previewd/internal/transport/ndjson"
)

func RunStdio(ctx context.Context, svc *Service, in io.Reader, out io.Writer) error {
	dec := ndjson.NewDecoder(in)
	enc := ndjson.NewEncoder(out)
	subscriptions := map[string]func(){}
	defer func() {
		for _, unsub := range subscriptions {
			unsub()
		}
	}()

	for {
		var req protocol.Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if err := enc.Encode(protocol.ErrorResponse(nil, protocol.ErrParse, "parse error", err.Error())); err != nil {
					return err
				}
				continue
			}
			return err
		}
		if project := projectOf(req.Params); project != "" {
			if _, ok := subscriptions[project]; !ok {
				ch, unsub := svc.Bus().Subscribe(project)
				subscriptions[project] = unsub
				go func() {
					for evt := range ch {
						_ = enc.Encode(evt)
					}
				}()
			}
		}
		if req.ID != nil {
			resp := svc.Handle(ctx, req)
			if err := enc.Encode(resp); err != nil {
				return err
			}
		} else {
			_ = svc.Handle(ctx, req)
		}
	}
}
