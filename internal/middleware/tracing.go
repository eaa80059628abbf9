package middleware

import (
	"strings"

	"egaku/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// untracedPrefixes are probe and file routes that would only add noise.
var untracedPrefixes = []string{"/health", "/metrics", "/files/"}

// TracingMiddleware opens a server span per API request. The span is renamed to the
// matched route once routing has run, so ids in paths do not explode span names.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, p := range untracedPrefixes {
			if strings.HasPrefix(c.Path(), p) {
				return c.Next()
			}
		}

		carrier := propagation.HeaderCarrier(c.GetReqHeaders())
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), carrier)
		ctx, span := observability.Tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("client.address", c.IP()),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		c.Locals("traceID", traceID)
		c.Set("X-Trace-ID", traceID)
		c.SetUserContext(ctx)

		err := c.Next()

		if route := c.Route(); route != nil && route.Path != "" {
			span.SetName(c.Method() + " " + route.Path)
			span.SetAttributes(attribute.String("http.route", route.Path))
		}
		span.SetAttributes(attribute.Int("http.status_code", c.Response().StatusCode()))
		// Envelope failures are HTTP 200; the business code is the useful signal.
		if code, ok := c.Locals("errorCode").(string); ok && code != "" {
			span.SetAttributes(attribute.String("egaku.error_code", code))
		}
		if uid, ok := c.Locals("userID").(uint); ok && uid != 0 {
			span.SetAttributes(attribute.Int64("egaku.user_id", int64(uid)))
		}
		if err != nil {
			span.RecordError(err)
		}
		return err
	}
}
