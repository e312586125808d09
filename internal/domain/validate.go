package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// mimePattern matches type/subtype with the usual token characters.
var mimePattern = regexp.MustCompile(`^[\w.+-]+/[\w.+-]+$`)

// FieldError is a single schema violation at a dotted field path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every violation found while decoding a value.
// Decoding is all-or-nothing: a value either decodes fully or fails with
// the complete list of problems, never a partial result.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// collector accumulates field errors during a decode pass.
type collector struct {
	errs []FieldError
}

func (c *collector) add(field, format string, args ...any) {
	c.errs = append(c.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: c.errs}
}

func (c *collector) str(m map[string]any, field, key string, required bool) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			c.add(field, "required")
		}
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		c.add(field, "must be a string")
		return "", false
	}
	if required && s == "" {
		c.add(field, "must not be empty")
		return "", false
	}
	return s, true
}

func (c *collector) num(m map[string]any, field, key string, required bool) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			c.add(field, "required")
		}
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		c.add(field, "must be a number")
		return 0, false
	}
}

func (c *collector) obj(m map[string]any, field, key string, required bool) (map[string]any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			c.add(field, "required")
		}
		return nil, false
	}
	o, ok := v.(map[string]any)
	if !ok {
		c.add(field, "must be an object")
		return nil, false
	}
	return o, true
}

func (c *collector) absoluteURL(field, raw string) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		c.add(field, "must be an absolute URL")
	}
}

func (c *collector) mime(field, raw string) {
	if !mimePattern.MatchString(raw) {
		c.add(field, "must match type/subtype")
	}
}

// contentFields maps each variant to the set of keys legal for it.
// The tag itself is always legal; anything else is a violation.
var contentFields = map[ContentType][]string{
	ContentText:     {"text"},
	ContentImage:    {"url", "mime", "caption"},
	ContentAudio:    {"url", "mime", "duration_ms"},
	ContentFile:     {"url", "mime", "filename"},
	ContentLocation: {"lat", "lon", "label"},
	ContentTemplate: {"name", "variables"},
}

func (c *collector) content(m map[string]any, field string) Content {
	var out Content

	typ, ok := c.str(m, field+".type", "type", true)
	if !ok {
		return out
	}
	ct := ContentType(typ)
	allowed, known := contentFields[ct]
	if !known {
		c.add(field+".type", "unknown content type %q", typ)
		return out
	}
	out.Type = ct

	for key := range m {
		if key == "type" {
			continue
		}
		legal := false
		for _, a := range allowed {
			if key == a {
				legal = true
				break
			}
		}
		if !legal {
			c.add(field+"."+key, "field not allowed for content type %q", typ)
		}
	}

	switch ct {
	case ContentText:
		out.Text, _ = c.str(m, field+".text", "text", true)
	case ContentImage:
		if u, ok := c.str(m, field+".url", "url", true); ok {
			c.absoluteURL(field+".url", u)
			out.URL = u
		}
		if mt, ok := c.str(m, field+".mime", "mime", false); ok {
			c.mime(field+".mime", mt)
			out.MIME = mt
		}
		out.Caption, _ = c.str(m, field+".caption", "caption", false)
	case ContentAudio:
		if u, ok := c.str(m, field+".url", "url", true); ok {
			c.absoluteURL(field+".url", u)
			out.URL = u
		}
		if mt, ok := c.str(m, field+".mime", "mime", false); ok {
			c.mime(field+".mime", mt)
			out.MIME = mt
		}
		if d, ok := c.num(m, field+".duration_ms", "duration_ms", false); ok {
			if d < 0 || d != float64(int64(d)) {
				c.add(field+".duration_ms", "must be a non-negative integer")
			}
			out.DurationMs = int64(d)
		}
	case ContentFile:
		if u, ok := c.str(m, field+".url", "url", true); ok {
			c.absoluteURL(field+".url", u)
			out.URL = u
		}
		if mt, ok := c.str(m, field+".mime", "mime", false); ok {
			c.mime(field+".mime", mt)
			out.MIME = mt
		}
		out.Filename, _ = c.str(m, field+".filename", "filename", false)
	case ContentLocation:
		if lat, ok := c.num(m, field+".lat", "lat", true); ok {
			if lat < -90 || lat > 90 {
				c.add(field+".lat", "must be between -90 and 90")
			}
			out.Lat = lat
		}
		if lon, ok := c.num(m, field+".lon", "lon", true); ok {
			if lon < -180 || lon > 180 {
				c.add(field+".lon", "must be between -180 and 180")
			}
			out.Lon = lon
		}
		out.Label, _ = c.str(m, field+".label", "label", false)
	case ContentTemplate:
		out.Name, _ = c.str(m, field+".name", "name", true)
		if vars, ok := c.obj(m, field+".variables", "variables", false); ok {
			out.Variables = make(map[string]string, len(vars))
			for k, v := range vars {
				s, ok := v.(string)
				if !ok {
					c.add(field+".variables."+k, "must be a string")
					continue
				}
				out.Variables[k] = s
			}
		}
	}

	return out
}

func (c *collector) route(m map[string]any, field string) *Route {
	r := &Route{}
	if a, ok := c.str(m, field+".adapter", "adapter", true); ok {
		if !ValidAdapter(RouteAdapter(a)) {
			c.add(field+".adapter", "unknown adapter %q", a)
		}
		r.Adapter = RouteAdapter(a)
	}
	r.ThreadID, _ = c.str(m, field+".thread_id", "thread_id", false)
	return r
}

func (c *collector) contactRef(m map[string]any, field string) ContactRef {
	var ref ContactRef
	if kind, ok := c.str(m, field+".kind", "kind", true); ok {
		if !ValidChannel(Channel(kind)) {
			c.add(field+".kind", "unknown channel %q", kind)
		}
		ref.Kind = Channel(kind)
	}
	ref.ID, _ = c.str(m, field+".id", "id", true)
	ref.Display, _ = c.str(m, field+".display", "display", false)
	if rm, ok := c.obj(m, field+".route", "route", false); ok {
		ref.Route = c.route(rm, field+".route")
	}
	return ref
}

// DecodeMessage validates an untyped value against the full canonical
// message contract and returns a typed Message, or a ValidationError
// listing every field violation.
func DecodeMessage(raw map[string]any) (*Message, error) {
	c := &collector{}
	msg := &Message{}

	msg.ID, _ = c.str(raw, "id", "id", true)

	if ch, ok := c.str(raw, "channel", "channel", true); ok {
		if !ValidChannel(Channel(ch)) {
			c.add("channel", "unknown channel %q", ch)
		}
		msg.Channel = Channel(ch)
	}

	if dir, ok := c.str(raw, "direction", "direction", true); ok {
		if dir != string(DirectionIn) && dir != string(DirectionOut) {
			c.add("direction", "must be %q or %q", DirectionIn, DirectionOut)
		}
		msg.Direction = Direction(dir)
	}

	if fm, ok := c.obj(raw, "from", "from", true); ok {
		msg.From = c.contactRef(fm, "from")
	}
	if tm, ok := c.obj(raw, "to", "to", true); ok {
		msg.To = c.contactRef(tm, "to")
	}

	if cm, ok := c.obj(raw, "content", "content", true); ok {
		msg.Content = c.content(cm, "content")
	}

	if ts, ok := c.str(raw, "timestamp", "timestamp", true); ok {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			c.add("timestamp", "must be an ISO-8601 instant")
		}
		msg.Timestamp = t
	}

	if st, ok := c.str(raw, "status", "status", false); ok {
		if !ValidStatus(Status(st)) {
			c.add("status", "unknown status %q", st)
		}
		msg.Status = Status(st)
	}

	if md, ok := c.obj(raw, "metadata", "metadata", false); ok {
		msg.Metadata = md
	}

	if tr, ok := c.obj(raw, "trace", "trace", false); ok {
		t := &Trace{}
		t.TraceID, _ = c.str(tr, "trace.trace_id", "trace_id", true)
		t.SpanID, _ = c.str(tr, "trace.span_id", "span_id", false)
		t.Source, _ = c.str(tr, "trace.source", "source", false)
		msg.Trace = t
	}

	if ev, ok := raw["errors"]; ok && ev != nil {
		list, ok := ev.([]any)
		if !ok {
			c.add("errors", "must be an array")
		} else {
			for i, item := range list {
				em, ok := item.(map[string]any)
				if !ok {
					c.add(fmt.Sprintf("errors[%d]", i), "must be an object")
					continue
				}
				var de DeliveryError
				de.Code, _ = c.str(em, fmt.Sprintf("errors[%d].code", i), "code", true)
				de.Message, _ = c.str(em, fmt.Sprintf("errors[%d].message", i), "message", true)
				de.At, _ = c.str(em, fmt.Sprintf("errors[%d].at", i), "at", false)
				msg.Errors = append(msg.Errors, de)
			}
		}
	}

	if err := c.err(); err != nil {
		return nil, err
	}
	return msg, nil
}

// DecodeOutbound validates an untyped value against the outbox input
// contract: a recipient with at least an id, a content union, and optional
// channel/metadata. Returns a ValidationError listing every violation.
func DecodeOutbound(raw map[string]any) (*Outbound, error) {
	c := &collector{}
	out := &Outbound{}

	if tm, ok := c.obj(raw, "to", "to", true); ok {
		out.To.ID, _ = c.str(tm, "to.id", "id", true)
		if kind, ok := c.str(tm, "to.kind", "kind", false); ok {
			if !ValidChannel(Channel(kind)) {
				c.add("to.kind", "unknown channel %q", kind)
			}
			out.To.Kind = Channel(kind)
		}
		out.To.Display, _ = c.str(tm, "to.display", "display", false)
		if rm, ok := c.obj(tm, "to.route", "route", false); ok {
			out.To.Route = c.route(rm, "to.route")
		}
	}

	if cm, ok := c.obj(raw, "content", "content", true); ok {
		out.Content = c.content(cm, "content")
	}

	if ch, ok := c.str(raw, "channel", "channel", false); ok {
		if !ValidChannel(Channel(ch)) {
			c.add("channel", "unknown channel %q", ch)
		}
		out.Channel = Channel(ch)
	}

	if md, ok := c.obj(raw, "metadata", "metadata", false); ok {
		out.Metadata = md
	}

	if err := c.err(); err != nil {
		return nil, err
	}
	return out, nil
}
