// Package health turns component health reports into the statuses served on
// /healthz.
package health

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/SimioLLC/WebAPISync/component"
)

// Status levels
const (
	Healthy   = "healthy"
	Degraded  = "degraded"
	Unhealthy = "unhealthy"
)

var (
	urlRegex        = regexp.MustCompile(`(https?|nats|postgres(ql)?)://[^\s]+`)
	ipPortRegex     = regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}(:\d{1,5})?\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret)\s*[:=]\s*[^,\s}]+`)
)

// Status represents the health state of a component or of the service
type Status struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	ErrorCount  int       `json:"error_count,omitempty"`
	Uptime      string    `json:"uptime,omitempty"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool { return s.Status == Healthy }

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool { return s.Status == Degraded }

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool { return s.Status == Unhealthy }

// FromComponent converts a component report. A running component that has
// recorded errors is degraded. Error text is sanitized since /healthz is
// usually reachable without authentication.
func FromComponent(name string, hs component.HealthStatus) Status {
	st := Status{
		Component:  name,
		Status:     Healthy,
		Message:    "running",
		Timestamp:  hs.LastCheck,
		ErrorCount: hs.ErrorCount,
	}
	if st.Timestamp.IsZero() {
		st.Timestamp = time.Now()
	}
	if hs.Uptime > 0 {
		st.Uptime = hs.Uptime.Round(time.Second).String()
	}

	switch {
	case !hs.Healthy:
		st.Status = Unhealthy
		st.Message = "not running"
	case hs.ErrorCount > 0:
		st.Status = Degraded
		st.Message = fmt.Sprintf("running with %d errors", hs.ErrorCount)
	}
	if hs.LastError != "" {
		st.Message = sanitize(hs.LastError)
	}
	return st
}

// Aggregate combines statuses: any unhealthy part makes the whole
// unhealthy, otherwise any degraded part makes it degraded.
func Aggregate(name string, subs []Status) Status {
	st := Status{Component: name, Status: Healthy, Timestamp: time.Now()}
	unhealthy, degraded := 0, 0
	for _, s := range subs {
		switch {
		case s.IsUnhealthy():
			unhealthy++
		case s.IsDegraded():
			degraded++
		}
	}

	switch {
	case unhealthy > 0:
		st.Status = Unhealthy
		st.Message = fmt.Sprintf("%d of %d components unhealthy", unhealthy, len(subs))
	case degraded > 0:
		st.Status = Degraded
		st.Message = fmt.Sprintf("%d of %d components degraded", degraded, len(subs))
	default:
		st.Message = fmt.Sprintf("%d components healthy", len(subs))
	}
	st.SubStatuses = append([]Status(nil), subs...)
	return st
}

// Collect aggregates a name-keyed set of component reports, in name order.
func Collect(name string, reports map[string]component.HealthStatus) Status {
	names := make([]string, 0, len(reports))
	for n := range reports {
		names = append(names, n)
	}
	sort.Strings(names)

	subs := make([]Status, 0, len(names))
	for _, n := range names {
		subs = append(subs, FromComponent(n, reports[n]))
	}
	return Aggregate(name, subs)
}

func sanitize(msg string) string {
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = ipPortRegex.ReplaceAllString(msg, "[ADDR]")
	return credentialRegex.ReplaceAllString(msg, "$1=[REDACTED]")
}
