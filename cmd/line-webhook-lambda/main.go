// Package main provides the Lambda entry point for the LINE webhook.
//
// The Lambda sits behind an API Gateway HTTP API (payload format 2.0) and
// handles:
//   - POST /webhook: LINE event deliveries signed with X-Line-Signature
//
// Credentials are loaded from SSM Parameter Store at cold start unless the
// env var is already set:
//   - /line-video-coach/prod/channel-secret
//   - /line-video-coach/prod/channel-access-token
//   - /line-video-coach/prod/openai-api-key (openai backends)
//   - /line-video-coach/prod/gemini-api-key (gemini backends)
//
// Execution freezes once the response is returned, so the delivery mode is
// always await here.
package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/line-video-coach/internal/config"
	"github.com/fpang/line-video-coach/internal/dispatch"
	"github.com/fpang/line-video-coach/internal/lambdaboot"
	"github.com/fpang/line-video-coach/internal/logging"
	"github.com/fpang/line-video-coach/internal/webhook"
)

var webhookHandler *webhook.Handler

func init() {
	initStart := time.Now()
	logging.Init()

	aws := lambdaboot.InitAWS()
	params := lambdaboot.LoadSecrets(aws.SSM)

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Detach() {
		log.Warn().Msg("DELIVERY_MODE=detach is not supported on Lambda, using await")
		cfg.Pipeline.DeliveryMode = config.DeliveryAwait
	}

	router := dispatch.Build(cfg)
	webhookHandler = webhook.NewHandler(cfg.LINE.ChannelSecret, router)

	startup := lambdaboot.StartupLog("line-webhook-lambda", initStart, params)
	for stage, name := range router.Backends() {
		startup.Backend(stage, name)
	}
	startup.
		Config("deliveryMode", cfg.Pipeline.DeliveryMode).
		Config("language", cfg.Pipeline.Language).
		Config("analysisTimeout", cfg.Pipeline.AnalysisTimeout.String()).
		Config("mediaMaxBytes", strconv.FormatInt(cfg.Pipeline.MediaMaxBytes, 10)).
		Feature("mediaSizeLimit", cfg.Pipeline.MediaMaxBytes > 0).
		Log()
}

func main() {
	mux := http.NewServeMux()
	mux.Handle("/webhook", webhookHandler)

	adapter := httpadapter.NewV2(mux)
	lambda.Start(adapter.ProxyWithContext)
}
