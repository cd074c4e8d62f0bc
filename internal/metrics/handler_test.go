package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ServesMetrics はHandlerがPrometheus形式でメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthOutcome("signup", "success")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `learnhub_auth_requests_total{flow="signup",outcome="success"} 1`) {
		t.Errorf("response should contain auth outcome metric, got:\n%s", body)
	}
}

// TestHandler_ExposesAuthFlowMetrics はクールダウン拒否とゲート判定がラベル付きで公開されることを検証する。
func TestHandler_ExposesAuthFlowMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordCooldownRejected("login_resend")
	c.RecordCooldownRejected("login_resend")
	c.RecordGateDecision("complete_profile")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	for _, want := range []string{
		`learnhub_cooldown_rejected_total{action="login_resend"} 2`,
		`learnhub_gate_decisions_total{decision="complete_profile"} 1`,
		"# TYPE learnhub_reading_fetch_latency_seconds histogram",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("response should contain %q", want)
		}
	}
}
