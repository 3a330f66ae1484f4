package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SimioLLC/WebAPISync/component"
)

func TestFromComponent(t *testing.T) {
	tests := []struct {
		name   string
		in     component.HealthStatus
		status string
		msg    string
	}{
		{"running", component.HealthStatus{Healthy: true}, Healthy, "running"},
		{"stopped", component.HealthStatus{}, Unhealthy, "not running"},
		{"errors", component.HealthStatus{Healthy: true, ErrorCount: 3}, Degraded, "running with 3 errors"},
		{
			"sanitized error",
			component.HealthStatus{Healthy: true, ErrorCount: 1, LastError: "dial nats://user:pw@10.0.0.4:4222 failed, token=abc"},
			Degraded,
			"dial [URL] failed, token=[REDACTED]",
		},
		{
			"bare address",
			component.HealthStatus{LastError: "listen tcp 127.0.0.1:54000: bind: address already in use"},
			Unhealthy,
			"listen tcp [ADDR]: bind: address already in use",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := FromComponent("webhook", tt.in)
			assert.Equal(t, tt.status, st.Status)
			assert.Equal(t, tt.msg, st.Message)
			assert.Equal(t, "webhook", st.Component)
			assert.False(t, st.Timestamp.IsZero())
		})
	}
}

func TestFromComponent_Uptime(t *testing.T) {
	st := FromComponent("calendar", component.HealthStatus{Healthy: true, Uptime: 90*time.Second + 200*time.Millisecond})
	assert.Equal(t, "1m30s", st.Uptime)
}

func TestAggregate(t *testing.T) {
	ok := Status{Component: "a", Status: Healthy}
	slow := Status{Component: "b", Status: Degraded}
	down := Status{Component: "c", Status: Unhealthy}

	assert.True(t, Aggregate("svc", nil).IsHealthy())
	assert.True(t, Aggregate("svc", []Status{ok, ok}).IsHealthy())

	st := Aggregate("svc", []Status{ok, slow})
	assert.True(t, st.IsDegraded())
	assert.Equal(t, "1 of 2 components degraded", st.Message)

	st = Aggregate("svc", []Status{ok, slow, down})
	assert.True(t, st.IsUnhealthy())
	assert.Len(t, st.SubStatuses, 3)
}

func TestCollect_SortsByName(t *testing.T) {
	st := Collect("webapisync", map[string]component.HealthStatus{
		"webhook":  {Healthy: true},
		"calendar": {Healthy: true},
	})
	assert.True(t, st.IsHealthy())
	assert.Equal(t, "calendar", st.SubStatuses[0].Component)
	assert.Equal(t, "webhook", st.SubStatuses[1].Component)
}
