package handler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/makeasinger/controlpanel/internal/logger"
	"github.com/makeasinger/controlpanel/internal/websocket"
	"github.com/makeasinger/controlpanel/pkg/protocol"
)

const requestTimeout = 10 * time.Second

// ErrAlreadyReplied is returned by a second Reply for the same request.
var ErrAlreadyReplied = errors.New("request already answered")

// Sender delivers a payload to one session.
type Sender interface {
	Send(s *websocket.Session, id *int64, p protocol.Payload) error
}

// HandlerFunc serves one request. Returning an error before replying sends
// an error envelope with the error text to the requesting session.
type HandlerFunc func(ctx context.Context, req *Request) error

// Request is an inbound envelope together with the session it came from.
type Request struct {
	Session  *websocket.Session
	Envelope *protocol.Envelope

	sender   Sender
	validate *validator.Validate
	replied  bool
}

// Bind decodes the payload into v and validates it.
func (r *Request) Bind(v any) error {
	if err := r.Envelope.Bind(v); err != nil {
		return errors.New(protocol.MessageInvalidFormat)
	}
	if err := r.validate.Struct(v); err != nil {
		return errors.New(formatValidationErrors(err))
	}
	return nil
}

// Reply answers the request under its own id. A request is answered at most once.
func (r *Request) Reply(p protocol.Payload) error {
	if r.replied {
		return ErrAlreadyReplied
	}
	r.replied = true
	return r.sender.Send(r.Session, r.Envelope.ID, p)
}

// Router dispatches inbound frames by message type.
type Router struct {
	sender   Sender
	validate *validator.Validate
	routes   map[string]HandlerFunc
}

func NewRouter(sender Sender, validate *validator.Validate) *Router {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Router{
		sender:   sender,
		validate: validate,
		routes:   make(map[string]HandlerFunc),
	}
}

// Register routes msgType to fn. Only correlated types can be registered.
func (r *Router) Register(msgType string, fn HandlerFunc) {
	if !protocol.IsCorrelated(msgType) || msgType == protocol.TypeError {
		panic(fmt.Sprintf("handler: %q is not a request type", msgType))
	}
	r.routes[msgType] = fn
}

// Types returns the registered message types in sorted order.
func (r *Router) Types() []string {
	out := make([]string, 0, len(r.routes))
	for t := range r.routes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Handle serves one text frame from s. It implements websocket.MessageFunc.
func (r *Router) Handle(s *websocket.Session, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		var de *protocol.DecodeError
		var id *int64
		if errors.As(err, &de) {
			id = de.ID
		}
		logger.Warn("Invalid message", zap.String("session", s.ID), zap.Error(err))
		r.fail(s, id, protocol.MessageInvalidFormat)
		return
	}

	fn, ok := r.routes[env.Type]
	if !ok {
		logger.Warn("Unknown action", zap.String("session", s.ID), zap.Error(&protocol.UnknownTypeError{Type: env.Type}))
		r.fail(s, env.ID, protocol.MessageUnknownAction)
		return
	}

	req := &Request{Session: s, Envelope: env, sender: r.sender, validate: r.validate}
	if err := r.serve(fn, req); err != nil {
		logger.Warn("Request failed", zap.String("session", s.ID), zap.String("type", env.Type), zap.Error(err))
		if !req.replied {
			r.fail(s, env.ID, err.Error())
		}
	}
}

func (r *Router) serve(fn HandlerFunc, req *Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Handler panic", zap.String("type", req.Envelope.Type), zap.Any("panic", p))
			err = errors.New("internal error")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return fn(ctx, req)
}

func (r *Router) fail(s *websocket.Session, id *int64, message string) {
	if err := r.sender.Send(s, id, protocol.ErrorPayload{Message: message}); err != nil {
		logger.Debug("Error reply dropped", zap.String("session", s.ID), zap.Error(err))
	}
}

func formatValidationErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return "Validation failed"
	}
	fields := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		fields = append(fields, e.Field()+" "+e.Tag())
	}
	sort.Strings(fields)
	return "Validation failed: " + strings.Join(fields, ", ")
}
