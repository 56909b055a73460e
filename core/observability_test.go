package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func hasCounter(counters []capturedCounter, name, status string) bool {
	for _, counter := range counters {
		if counter.name == name && counter.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(histograms []capturedHistogram, name, status string) bool {
	for _, histogram := range histograms {
		if histogram.name == name && histogram.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(records []capturedLog, level, msg, eventType string) bool {
	for _, record := range records {
		if record.level == level && record.msg == msg && record.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}

func TestServiceObservability_BeginAuthorizationSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	integration := &fakeIntegration{id: "microsoft"}
	service := newTestService(t, integration,
		WithMetricsRecorder(metrics),
		WithLogger(logger),
	)

	_, err := service.BeginAuthorization(context.Background(), BeginAuthorizationRequest{
		UserID:      "user-1",
		ProviderID:  "microsoft",
		RedirectURI: "https://app.example.com/callback",
	})
	if err != nil {
		t.Fatalf("begin authorization: %v", err)
	}

	if !hasCounter(metrics.counters, "tasksync.begin_authorization.total", "success") {
		t.Fatalf("expected begin_authorization success counter, got %#v", metrics.counters)
	}
	if !hasHistogram(metrics.histograms, "tasksync.begin_authorization.duration_ms", "success") {
		t.Fatalf("expected begin_authorization duration histogram")
	}
	if !hasLog(logger.snapshot(), "info", "begin_authorization succeeded", "begin_authorization") {
		t.Fatalf("expected begin_authorization success log, got %#v", logger.snapshot())
	}
}

func TestServiceObservability_ValidAccessTokenFailure(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	service := newTestService(t, &fakeIntegration{id: "microsoft"},
		WithMetricsRecorder(metrics),
		WithLogger(logger),
	)

	_, err := service.ValidAccessToken(context.Background(), "user-1", "microsoft")
	if err == nil {
		t.Fatalf("expected not-connected error")
	}

	if !hasCounter(metrics.counters, "tasksync.valid_access_token.total", "failure") {
		t.Fatalf("expected valid_access_token failure counter, got %#v", metrics.counters)
	}
	if !hasLog(logger.snapshot(), "error", "valid_access_token failed", "valid_access_token") {
		t.Fatalf("expected valid_access_token failure log")
	}
}

func TestServiceObservability_SyncTagsProvider(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	now := time.Now().UTC()
	integration := &fakeIntegration{
		id: "microsoft",
		fetchFn: func(context.Context, string, TaskFilter) (TaskPage, error) {
			return TaskPage{Tasks: []RemoteTask{remoteTask("ext-1", "One", now)}}, nil
		},
	}
	service := newTestService(t, integration, WithMetricsRecorder(metrics))
	seedSyncCredential(t, service)

	if _, err := service.Sync(context.Background(), "user-1", "microsoft"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	found := false
	for _, counter := range metrics.counters {
		if counter.name == "tasksync.sync.total" && counter.tags["status"] == "success" {
			found = true
			if counter.tags["provider_id"] != "microsoft" {
				t.Fatalf("expected provider_id tag, got %#v", counter.tags)
			}
		}
	}
	if !found {
		t.Fatalf("expected sync success counter, got %#v", metrics.counters)
	}
}
