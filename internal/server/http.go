package server

import (
	"context"

	"ReelGuard/internal/conf"
	"ReelGuard/internal/model"
	"ReelGuard/internal/server/middleware"
	"ReelGuard/internal/service"
	pkglog "ReelGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, svc *service.ReliabilityService, logger log.Logger) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout > 0 {
		opts = append(opts, http.Timeout(c.Http.Timeout))
	}
	srv := http.NewServer(opts...)

	registerRoutes(srv, svc)

	return srv
}

// registerRoutes wires the /v1 surface onto the server.
func registerRoutes(srv *http.Server, svc *service.ReliabilityService) {
	r := srv.Route("/v1")

	r.POST("/recommendations", func(ctx http.Context) error {
		var in service.GetRecommendationsRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, "/v1.Reliability/GetRecommendations")
		h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
			return svc.GetRecommendations(c, req.(*service.GetRecommendationsRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET("/health", func(ctx http.Context) error {
		http.SetOperation(ctx, "/v1.Reliability/GetSystemHealth")
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.GetSystemHealth(c)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET("/alerts/rules", func(ctx http.Context) error {
		http.SetOperation(ctx, "/v1.Reliability/ListAlertRules")
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.ListAlertRules(c)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.POST("/alerts/rules", func(ctx http.Context) error {
		var in model.AlertRule
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, "/v1.Reliability/AddAlertRule")
		h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
			return svc.AddAlertRule(c, req.(*model.AlertRule))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.DELETE("/alerts/rules/{id}", func(ctx http.Context) error {
		ruleID := ctx.Vars().Get("id")
		http.SetOperation(ctx, "/v1.Reliability/RemoveAlertRule")
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.RemoveAlertRule(c, ruleID)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET("/alerts", func(ctx http.Context) error {
		http.SetOperation(ctx, "/v1.Reliability/ListActiveAlerts")
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.ListActiveAlerts(c)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.POST("/alerts/{id}/resolve", func(ctx http.Context) error {
		alertID := ctx.Vars().Get("id")
		http.SetOperation(ctx, "/v1.Reliability/ResolveAlert")
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.ResolveAlert(c, alertID)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.POST("/recovery/{action}", func(ctx http.Context) error {
		action := ctx.Vars().Get("action")
		http.SetOperation(ctx, "/v1.Reliability/TriggerRecovery")
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.TriggerRecovery(c, action)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})
}
