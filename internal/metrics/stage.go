package metrics

import (
	"context"
	"io"
	"os"
	"time"
)

// Pipeline stage names used as the Stage dimension.
const (
	StageFetch      = "fetch"
	StageTranscribe = "transcribe"
	StageAnalyze    = "analyze"
	StageReply      = "reply"
	StagePush       = "push"
)

// Stage outcomes used as the Result dimension.
const (
	ResultOK    = "ok"
	ResultSoft  = "soft"
	ResultEmpty = "empty"
	ResultError = "error"
)

// stageOut receives stage documents. Tests redirect it.
var stageOut io.Writer = os.Stdout

type propsKey struct{}

// WithProperty returns a copy of ctx whose stage documents carry key=value
// as an EMF property. Earlier properties are kept.
func WithProperty(ctx context.Context, key string, value any) context.Context {
	prev, _ := ctx.Value(propsKey{}).(map[string]any)
	props := make(map[string]any, len(prev)+1)
	for k, v := range prev {
		props[k] = v
	}
	props[key] = value
	return context.WithValue(ctx, propsKey{}, props)
}

func stageRecorder(ctx context.Context) *Recorder {
	r := New(Namespace).To(stageOut)
	props, _ := ctx.Value(propsKey{}).(map[string]any)
	for k, v := range props {
		r.Property(k, v)
	}
	return r
}

// ObserveStage emits one StageLatencyMs + StageCount document for a
// completed pipeline stage.
func ObserveStage(ctx context.Context, stage, result string, start time.Time) {
	stageRecorder(ctx).
		Dimension("Stage", stage).
		Dimension("Result", result).
		Since("StageLatencyMs", start).
		Count("StageCount").
		Flush()
}

// ObserveMediaSize emits the size of a fetched video as MediaBytes.
func ObserveMediaSize(ctx context.Context, source string, size int) {
	stageRecorder(ctx).
		Dimension("Source", source).
		Metric("MediaBytes", float64(size), UnitBytes).
		Flush()
}
