package vaillant

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
)

type staticTokens struct {
	token     string
	err       error
	refreshes int
}

func (s *staticTokens) AccessToken(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

func (s *staticTokens) TriggerRefresh(context.Context) {
	s.refreshes++
}

func TestClientFlow(t *testing.T) {
	var controlBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Fatalf("unexpected auth header: %s", auth)
		}
		switch r.URL.Path {
		case "/app/bindings":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"devices":[{"did":"dev1","mac":"aa:bb","product_name":"vSMART","sno":"SN-1","mcu_soft_version":"1.2.3","is_online":true}]}`)
		case "/app/devdata/dev1/latest":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"did":"dev1","updated_at":1722763208,"attr":{"Heating_Enable":1,"Flow_Temperature_Setpoint":42.5}}`)
		case "/app/control/dev1":
			if r.Method != http.MethodPost {
				t.Fatalf("expected POST control, got %s", r.Method)
			}
			body, _ := io.ReadAll(r.Body)
			controlBody = string(body)
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIURL: server.URL}, &staticTokens{token: "test-token"})
	ctx := context.Background()

	bindings, err := client.Bindings(ctx)
	if err != nil {
		t.Fatalf("bindings: %v", err)
	}
	if len(bindings) != 1 || bindings[0].DeviceID != "dev1" {
		t.Fatalf("unexpected bindings: %+v", bindings)
	}
	if !bindings[0].Online || bindings[0].FirmwareVersion != "1.2.3" {
		t.Fatalf("unexpected binding fields: %+v", bindings[0])
	}

	attrs, err := client.DeviceAttrsSnapshot(ctx, "dev1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if attrs["Flow_Temperature_Setpoint"] != 42.5 {
		t.Fatalf("unexpected attrs: %+v", attrs)
	}

	if err := client.ControlDevice(ctx, "dev1", hub.Attrs{"DHW_setpoint": 50.0}); err != nil {
		t.Fatalf("control: %v", err)
	}
	if !strings.Contains(controlBody, `"DHW_setpoint":50`) {
		t.Fatalf("unexpected control payload: %s", controlBody)
	}
}

func TestClientUnauthorizedTriggersRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &staticTokens{token: "stale-token"}
	client := NewClient(Config{APIURL: server.URL}, tokens)

	_, err := client.Bindings(context.Background())
	if err == nil {
		t.Fatalf("expected error on 401")
	}
	if tokens.refreshes != 1 {
		t.Fatalf("expected refresh trigger, got %d", tokens.refreshes)
	}
}

func TestClientTokenUnavailable(t *testing.T) {
	client := NewClient(Config{APIURL: "http://127.0.0.1:0"}, &staticTokens{err: errors.New("auth token unavailable")})
	if _, err := client.Bindings(context.Background()); err == nil {
		t.Fatalf("expected token error")
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream broken")
	}))
	defer server.Close()

	client := NewClient(Config{APIURL: server.URL}, &staticTokens{token: "test-token"})
	_, err := client.DeviceAttrsSnapshot(context.Background(), "dev1")
	var statusErr HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %v", err)
	}
	if statusErr.Status != http.StatusBadGateway {
		t.Fatalf("unexpected status: %d", statusErr.Status)
	}
}
