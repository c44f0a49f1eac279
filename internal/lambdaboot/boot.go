// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// A Lambda's init() needs AWS config, secrets from SSM Parameter Store, and
// startup logging. This package extracts those steps so init() is a short
// composition of helpers.
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/line-video-coach/internal/config"
	"github.com/fpang/line-video-coach/internal/logging"
)

// AWSClients holds the core AWS SDK clients used at cold start.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// ParameterGetter is the subset of *ssm.Client used to read secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Secret describes a value that comes from an env var or, when the env var
// is empty, from an SSM SecureString parameter.
type Secret struct {
	// EnvVar receives the value, e.g. LINE_CHANNEL_SECRET.
	EnvVar string
	// ParamEnvVar overrides the parameter path, e.g. SSM_CHANNEL_SECRET_PARAM.
	ParamEnvVar  string
	DefaultParam string
}

// Secrets read at cold start.
var (
	ChannelSecret = Secret{
		EnvVar:       "LINE_CHANNEL_SECRET",
		ParamEnvVar:  "SSM_CHANNEL_SECRET_PARAM",
		DefaultParam: "/line-video-coach/prod/channel-secret",
	}
	ChannelAccessToken = Secret{
		EnvVar:       "LINE_CHANNEL_ACCESS_TOKEN",
		ParamEnvVar:  "SSM_CHANNEL_ACCESS_TOKEN_PARAM",
		DefaultParam: "/line-video-coach/prod/channel-access-token",
	}
	OpenAIKey = Secret{
		EnvVar:       "OPENAI_API_KEY",
		ParamEnvVar:  "SSM_OPENAI_API_KEY_PARAM",
		DefaultParam: "/line-video-coach/prod/openai-api-key",
	}
	GeminiKey = Secret{
		EnvVar:       "GEMINI_API_KEY",
		ParamEnvVar:  "SSM_GEMINI_API_KEY_PARAM",
		DefaultParam: "/line-video-coach/prod/gemini-api-key",
	}
)

// Param returns the SSM parameter path for s.
func (s Secret) Param() string {
	if p := os.Getenv(s.ParamEnvVar); p != "" {
		return p
	}
	return s.DefaultParam
}

// LoadSecret sets s.EnvVar from SSM unless it is already set. It returns
// the parameter path that was read, or "" when the env var was used.
func LoadSecret(ctx context.Context, client ParameterGetter, s Secret) (string, error) {
	if os.Getenv(s.EnvVar) != "" {
		return "", nil
	}
	paramName := s.Param()
	ssmStart := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return paramName, fmt.Errorf("read %s from SSM %s: %w", s.EnvVar, paramName, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return paramName, fmt.Errorf("SSM parameter %s has no value", paramName)
	}
	if err := os.Setenv(s.EnvVar, *result.Parameter.Value); err != nil {
		return paramName, fmt.Errorf("set %s: %w", s.EnvVar, err)
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Secret loaded from SSM")
	return paramName, nil
}

// LoadSecrets loads the LINE credentials and the API key of every backend
// selected by the TRANSCRIBE_BACKEND and ANALYSIS_BACKEND env vars. Fatals
// on error. It returns the SSM parameter path read for each env var.
func LoadSecrets(client ParameterGetter) map[string]string {
	secrets := []Secret{ChannelSecret, ChannelAccessToken}
	secrets = append(secrets, backendSecrets(os.Getenv("TRANSCRIBE_BACKEND"), os.Getenv("ANALYSIS_BACKEND"))...)

	loaded := make(map[string]string)
	for _, s := range secrets {
		param, err := LoadSecret(context.Background(), client, s)
		if err != nil {
			log.Fatal().Err(err).Str("param", param).Msg("Failed to load secret")
		}
		if param != "" {
			loaded[s.EnvVar] = param
		}
	}
	return loaded
}

// backendSecrets returns the API key secrets the chosen backends need.
// An empty backend name means the config default (openai).
func backendSecrets(backends ...string) []Secret {
	var openai, gemini bool
	for _, b := range backends {
		switch strings.ToLower(strings.TrimSpace(b)) {
		case config.BackendGemini:
			gemini = true
		default:
			openai = true
		}
	}
	var out []Secret
	if openai {
		out = append(out, OpenAIKey)
	}
	if gemini {
		out = append(out, GeminiKey)
	}
	return out
}

// StartupLog returns a startup logger with the cold-start duration set and
// the SSM parameters in params registered.
func StartupLog(name string, initStart time.Time, params map[string]string) *logging.StartupLogger {
	startup := logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
	for label, path := range params {
		startup.SSMParam(label, path)
	}
	return startup
}
