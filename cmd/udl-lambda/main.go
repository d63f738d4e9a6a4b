// Command udl-lambda is an alternate entrypoint over the same core as
// cmd/udld, fronted by API Gateway instead of a bound TCP listener.
// Grounded on cmd/lambda/main.go chiadapter usage
// (ChiLambdaV2 / NewV2 / ProxyWithContextV2 against an HTTP API v2
// payload); it is not a second implementation, only a second transport
// for the same router (SPEC_FULL.md §6).
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	chimux "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"udl-core/config"
	"udl-core/internal/di"
)

var chiLambda *chiadapter.ChiLambdaV2

func init() {
	cfg, err := config.Load("")
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.Build(cfg)
	if err != nil {
		zap.NewExample().Fatal("failed to build container", zap.Error(err))
	}

	container.Pipeline.Run(context.Background())

	mux, ok := container.Router.Setup(cfg.EnableCORS, cfg.EnableMetrics).(*chimux.Mux)
	if !ok {
		container.Logger.Fatal("router did not return a *chi.Mux")
	}
	chiLambda = chiadapter.NewV2(mux)
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return chiLambda.ProxyWithContextV2(ctx, req)
}

func main() {
	lambda.Start(handler)
}
