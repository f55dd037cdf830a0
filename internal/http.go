package internal

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/A-Boumard/zest-wiki/internal/health"
	"github.com/A-Boumard/zest-wiki/internal/middleware"
	"github.com/A-Boumard/zest-wiki/internal/upload"
)

func NewRequestHandler(config *Config, uploadEndpoints *upload.Endpoints, healthEndpoints *health.HealthEndpoints) fasthttp.RequestHandler {
	corsMiddleware := middleware.NewCORSMiddleware(config.Server.AllowedOrigins)

	handler := func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())

		switch {
		case path == "/health":
			healthEndpoints.Health(ctx)

		case path == "/uploads":
			method := string(ctx.Method())
			if method == "POST" {
				uploadEndpoints.Create(ctx)
			} else {
				ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
			}

		case strings.HasPrefix(path, "/uploads/") && strings.HasSuffix(path, "/chunks"):
			parts := strings.Split(path, "/")
			if len(parts) == 4 && parts[3] == "chunks" {
				ctx.SetUserValue("sessionKey", parts[2])
				method := string(ctx.Method())
				if method == "POST" {
					uploadEndpoints.Append(ctx)
				} else {
					ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
				}
			} else {
				ctx.Error("Not Found", fasthttp.StatusNotFound)
			}

		case strings.HasPrefix(path, "/uploads/") && strings.HasSuffix(path, "/finalize"):
			parts := strings.Split(path, "/")
			if len(parts) == 4 && parts[3] == "finalize" {
				ctx.SetUserValue("sessionKey", parts[2])
				method := string(ctx.Method())
				if method == "POST" {
					uploadEndpoints.Finalize(ctx)
				} else {
					ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
				}
			} else {
				ctx.Error("Not Found", fasthttp.StatusNotFound)
			}

		case strings.HasPrefix(path, "/uploads/"):
			parts := strings.Split(path, "/")
			if len(parts) == 3 {
				ctx.SetUserValue("sessionKey", parts[2])
				method := string(ctx.Method())
				switch method {
				case "GET":
					uploadEndpoints.Status(ctx)
				case "DELETE":
					uploadEndpoints.Abandon(ctx)
				default:
					ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
				}
			} else {
				ctx.Error("Not Found", fasthttp.StatusNotFound)
			}

		default:
			ctx.Error("Not Found", fasthttp.StatusNotFound)
		}
	}

	return corsMiddleware.Handle(handler)
}
