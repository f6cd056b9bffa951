package output

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"centinela/report"
	"centinela/version"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

const (
	recordReport  = "report"
	recordFinding = "finding"
)

type otelLogger struct {
	provider *sdklog.LoggerProvider
	logger   otelLog.Logger
	timeout  time.Duration
	endpoint string
	policy   otelPolicy
}

type otelPolicy struct {
	includePaths bool
}

// path-bearing detail keys of findings
var pathKeys = []string{"ruta", "exe", "archivos"}

func newOtelLogger(opts Options) (*otelLogger, error) {
	endpoint := strings.TrimSpace(opts.OtelEndpoint)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	exportOpts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(opts.OtelHeaders) > 0 {
		exportOpts = append(exportOpts, otlploghttp.WithHeaders(opts.OtelHeaders))
	}
	if opts.OtelTimeout > 0 {
		exportOpts = append(exportOpts, otlploghttp.WithTimeout(opts.OtelTimeout))
	}

	exp, err := otlploghttp.New(context.Background(), exportOpts...)
	if err != nil {
		return nil, err
	}

	serviceName := opts.OtelServiceName
	if serviceName == "" {
		serviceName = "centinela"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version.Version),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)

	return &otelLogger{
		provider: provider,
		logger:   provider.Logger("centinela"),
		timeout:  opts.OtelTimeout,
		endpoint: endpoint,
		policy:   otelPolicy{includePaths: opts.OtelExportPaths},
	}, nil
}

func (o *otelLogger) Endpoint() string {
	if o == nil {
		return ""
	}
	return o.endpoint
}

// EmitReport sends one record for the report and one per finding.
func (o *otelLogger) EmitReport(r *report.ScanReport) {
	if o == nil || o.logger == nil || r == nil {
		return
	}
	o.Emit(recordReport, reportPayload(r))
	for i, item := range r.Findings {
		o.Emit(recordFinding, findingPayload(r.Name, i, item))
	}
}

func reportPayload(r *report.ScanReport) map[string]interface{} {
	payload := map[string]interface{}{
		"name":              r.Name,
		"started_at":        r.StartedAt.Format(time.RFC3339),
		"summary":           normalizeValue(r.Summary),
		"findings_count":    len(r.Findings),
		"limitations_count": len(r.Limitations),
		"suspicious_count":  r.Suspicious(),
	}
	if r.FinishedAt != nil {
		payload["finished_at"] = r.FinishedAt.Format(time.RFC3339)
		payload["duration_ms"] = r.Duration().Milliseconds()
	}
	return payload
}

func findingPayload(reportName string, index int, item report.Item) map[string]interface{} {
	recs := make([]string, len(item.Recommendations))
	copy(recs, item.Recommendations)
	return map[string]interface{}{
		"report":          reportName,
		"index":           index,
		"title":           item.Title,
		"risk":            string(item.Risk),
		"recommendations": recs,
		"details":         normalizeValue(item.Details),
	}
}

// normalizeValue turns arbitrary detail values into the JSON-shaped types
// toLogValue understands.
func normalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = normalizeValue(item)
		}
		return out
	case nil, string, bool, int, int64, float64, json.Number, []string, []interface{}:
		return value
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	var decoded interface{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return string(data)
	}
	return decoded
}

func (o *otelLogger) Emit(recordType string, payload interface{}) {
	if o == nil || o.logger == nil {
		return
	}
	safePayload := sanitizePayload(recordType, payload, o.policy)

	var record otelLog.Record
	record.SetTimestamp(time.Now())
	record.SetObservedTimestamp(time.Now())
	record.SetEventName("centinela." + recordType)
	record.AddAttributes(otelLog.String("record_type", recordType))
	if attrs := semanticAttributes(recordType, safePayload, o.policy); len(attrs) > 0 {
		record.AddAttributes(attrs...)
	}

	value := toLogValue(safePayload)
	if value.Kind() == otelLog.KindEmpty {
		if data, err := json.Marshal(safePayload); err == nil {
			record.SetBody(otelLog.StringValue(string(data)))
		}
	} else {
		record.SetBody(value)
	}

	o.logger.Emit(context.Background(), record)
}

func (o *otelLogger) Shutdown(log logrus.FieldLogger) {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil && log != nil {
		log.Debugf("OTEL shutdown failed: %v", err)
	}
}

func sanitizePayload(recordType string, payload interface{}, policy otelPolicy) interface{} {
	data, ok := payload.(map[string]interface{})
	if !ok || len(data) == 0 || policy.includePaths {
		return payload
	}
	switch recordType {
	case recordFinding:
		sanitized := cloneMap(data)
		if details, ok := data["details"].(map[string]interface{}); ok {
			clean := cloneMap(details)
			for _, key := range pathKeys {
				if key == "archivos" {
					if n, ok := valueCount(clean[key]); ok {
						clean["archivos_count"] = n
					}
				}
				delete(clean, key)
			}
			sanitized["details"] = clean
		}
		return sanitized
	default:
		return payload
	}
}

func valueCount(value interface{}) (int, bool) {
	switch v := value.(type) {
	case []interface{}:
		return len(v), true
	case []string:
		return len(v), true
	default:
		return 0, false
	}
}

func cloneMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func toLogValue(value interface{}) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case []byte:
		return otelLog.BytesValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		return otelLog.Float64Value(v)
	case float32:
		return otelLog.Float64Value(float64(v))
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return otelLog.Int64Value(i)
		}
		if f, err := v.Float64(); err == nil {
			return otelLog.Float64Value(f)
		}
		return otelLog.StringValue(v.String())
	case map[string]interface{}:
		return otelLog.MapValue(toLogKeyValues(v)...)
	case map[string]string:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for k, val := range v {
			kvs = append(kvs, otelLog.String(k, val))
		}
		return otelLog.MapValue(kvs...)
	case []string:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.StringValue(item))
		}
		return otelLog.SliceValue(values...)
	case []interface{}:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, toLogValue(item))
		}
		return otelLog.SliceValue(values...)
	default:
		return otelLog.Value{}
	}
}

func toLogKeyValues(values map[string]interface{}) []otelLog.KeyValue {
	kvs := make([]otelLog.KeyValue, 0, len(values))
	for key, value := range values {
		kvs = append(kvs, otelLog.KeyValue{Key: key, Value: toLogValue(value)})
	}
	return kvs
}

func semanticAttributes(recordType string, payload interface{}, policy otelPolicy) []otelLog.KeyValue {
	data, ok := payload.(map[string]interface{})
	if !ok || len(data) == 0 {
		return nil
	}
	switch recordType {
	case recordReport:
		return reportSemanticAttributes(data)
	case recordFinding:
		return findingSemanticAttributes(data, policy)
	default:
		return nil
	}
}

func reportSemanticAttributes(data map[string]interface{}) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	kvs = appendStringAttr(kvs, "centinela.report.name", getStringField(data, "name"))
	kvs = appendStringAttr(kvs, "centinela.report.started_at", getStringField(data, "started_at"))
	kvs = appendStringAttr(kvs, "centinela.report.finished_at", getStringField(data, "finished_at"))
	if n, ok := getInt64Field(data, "findings_count"); ok {
		kvs = append(kvs, otelLog.Int64("centinela.report.findings", n))
	}
	if n, ok := getInt64Field(data, "limitations_count"); ok {
		kvs = append(kvs, otelLog.Int64("centinela.report.limitations", n))
	}
	if n, ok := getInt64Field(data, "suspicious_count"); ok {
		kvs = append(kvs, otelLog.Int64("centinela.report.suspicious", n))
	}
	return kvs
}

func findingSemanticAttributes(data map[string]interface{}, policy otelPolicy) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	kvs = appendStringAttr(kvs, "centinela.report.name", getStringField(data, "report"))
	kvs = appendStringAttr(kvs, "centinela.finding.title", getStringField(data, "title"))
	kvs = appendStringAttr(kvs, "centinela.finding.risk", getStringField(data, "risk"))

	details, _ := data["details"].(map[string]interface{})
	if details == nil {
		return kvs
	}
	if path := getStringField(details, "ruta"); path != "" {
		if policy.includePaths {
			kvs = append(kvs, otelLog.String(string(semconv.FilePathKey), path))
			kvs = append(kvs, otelLog.String(string(semconv.FileDirectoryKey), filepath.Dir(path)))
		}
		kvs = append(kvs, otelLog.String(string(semconv.FileNameKey), filepath.Base(path)))
	}
	if size, ok := getInt64Field(details, "tamano"); ok {
		kvs = append(kvs, otelLog.Int64(string(semconv.FileSizeKey), size))
	}
	kvs = appendStringAttr(kvs, "centinela.file.hash.sha256", getStringField(details, "hash_sha256"))
	kvs = appendStringAttr(kvs, "centinela.file.mime_type", getStringField(details, "tipo_mime"))
	if pid, ok := getInt64Field(details, "pid"); ok {
		kvs = append(kvs, otelLog.Int64(string(semconv.ProcessPIDKey), pid))
	}
	if policy.includePaths {
		kvs = appendStringAttr(kvs, string(semconv.ProcessExecutablePathKey), getStringField(details, "exe"))
	}
	kvs = appendSliceAttr(kvs, "centinela.finding.signatures", getStringSliceField(details, "firmas"))
	kvs = appendSliceAttr(kvs, "centinela.finding.heuristics", getStringSliceField(details, "heuristicas"))
	return kvs
}

func getStringField(values map[string]interface{}, key string) string {
	value, ok := values[key]
	if !ok || value == nil {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	return fmt.Sprint(value)
}

func getInt64Field(values map[string]interface{}, key string) (int64, bool) {
	value, ok := values[key]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func getStringSliceField(values map[string]interface{}, key string) []string {
	value, ok := values[key]
	if !ok || value == nil {
		return nil
	}
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}

func appendStringAttr(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}

func appendSliceAttr(kvs []otelLog.KeyValue, key string, items []string) []otelLog.KeyValue {
	if len(items) == 0 {
		return kvs
	}
	values := make([]otelLog.Value, 0, len(items))
	for _, item := range items {
		values = append(values, otelLog.StringValue(item))
	}
	return append(kvs, otelLog.KeyValue{Key: key, Value: otelLog.SliceValue(values...)})
}
