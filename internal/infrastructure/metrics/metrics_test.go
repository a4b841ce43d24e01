package metrics

import "testing"

func TestGetDefaultMetricsSingleton(t *testing.T) {
	first := GetDefaultMetrics()
	second := GetDefaultMetrics()

	if first == nil {
		t.Fatal("GetDefaultMetrics returned nil")
	}
	if first != second {
		t.Error("GetDefaultMetrics returned different instances")
	}
}

func TestMetricsFieldsInitialized(t *testing.T) {
	m := GetDefaultMetrics()

	if m.LoginsStarted == nil || m.LoginsCompleted == nil || m.LoginsFailed == nil {
		t.Error("authentication metrics not initialized")
	}
	if m.ActiveAccounts == nil || m.AccountSwitches == nil {
		t.Error("account metrics not initialized")
	}
	if m.FloodWaitsTotal == nil || m.FloodWaitSeconds == nil {
		t.Error("rate limiter metrics not initialized")
	}
	if m.TasksSubmitted == nil || m.TasksFinished == nil || m.TasksRunning == nil || m.TasksQueued == nil {
		t.Error("transfer metrics not initialized")
	}
	if m.KafkaMessagesProduced == nil || m.KafkaProduceErrors == nil {
		t.Error("kafka metrics not initialized")
	}
}

func TestMetricsUsable(t *testing.T) {
	m := GetDefaultMetrics()

	m.TasksSubmitted.Inc()
	m.TasksFinished.WithLabelValues("completed").Inc()
	m.TransferBytes.WithLabelValues("download").Add(1024)
	m.TasksQueued.Set(2)
	m.TasksQueued.Set(0)
	m.FloodWaitSeconds.Observe(5)
}
