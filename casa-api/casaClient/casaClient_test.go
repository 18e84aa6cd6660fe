package casaClient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaJsonRpc"
	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
	"go.uber.org/zap/zaptest"
)

const (
	testUser     = "service"
	testPassword = "s&cret"
	sessionName  = "casa_session"
)

// fakeDevice emulates the controller's login and JSON-RPC endpoints.
type fakeDevice struct {
	t *testing.T

	mu          sync.Mutex
	values      map[string]any
	calls       []string
	loginBodies []string
	apiCookies  []string
	logins      int
	loginStatus int
	apiStatus   int
	contentType string
	disconnects map[string]int
}

func newFakeDevice(t *testing.T) *fakeDevice {
	return &fakeDevice{
		t:           t,
		values:      map[string]any{},
		loginStatus: http.StatusOK,
		apiStatus:   http.StatusOK,
		contentType: "application/json",
		disconnects: map[string]int{},
	}
}

func (d *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	d.mu.Lock()
	d.calls = append(d.calls, r.URL.Path)
	if d.disconnects[r.URL.Path] > 0 {
		d.disconnects[r.URL.Path]--
		d.mu.Unlock()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			d.t.Errorf("hijack: %v", err)
			return
		}
		conn.Close()
		return
	}
	defer d.mu.Unlock()

	if r.Method != http.MethodPost {
		d.t.Errorf("expected POST, got %s", r.Method)
	}

	switch r.URL.Path {
	case "/handle_login":
		d.logins++
		d.loginBodies = append(d.loginBodies, string(body))
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			d.t.Errorf("login content type = %q", ct)
		}
		if d.loginStatus == http.StatusOK {
			http.SetCookie(w, &http.Cookie{Name: sessionName, Value: "token-" + strconv.Itoa(d.logins)})
		}
		w.WriteHeader(d.loginStatus)
	case "/api":
		cookie, err := r.Cookie(sessionName)
		if err == nil {
			d.apiCookies = append(d.apiCookies, cookie.Value)
		} else {
			d.apiCookies = append(d.apiCookies, "")
		}
		if d.apiStatus != http.StatusOK {
			w.WriteHeader(d.apiStatus)
			return
		}
		var request casaJsonRpc.JsonRPC
		if err := json.Unmarshal(body, &request); err != nil {
			d.t.Errorf("decode api request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", d.contentType)
		switch request.Method {
		case casaJsonRpc.MethodRead:
			objects := []map[string]any{}
			for _, object := range request.Params.Objects {
				value, ok := d.values[string(object.Id)]
				if !ok {
					continue
				}
				objects = append(objects, map[string]any{
					"id":         object.Id,
					"properties": map[string]any{"85": map[string]any{"value": value}},
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 0, "result": map[string]any{"objects": objects}})
		case casaJsonRpc.MethodWrite:
			for _, object := range request.Params.Objects {
				value := object.Properties["85"].Value
				if value == nil {
					d.t.Errorf("write without value for %s", object.Id)
					continue
				}
				d.values[string(object.Id)] = float64(*value)
			}
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":0,"result":{}}`)
		default:
			d.t.Errorf("unexpected method %q", request.Method)
		}
	default:
		d.t.Errorf("unexpected path: %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (d *fakeDevice) callLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func newTestClient(t *testing.T, device *fakeDevice) (*CasaApiClient, *httptest.Server) {
	server := httptest.NewTLSServer(device)
	t.Cleanup(server.Close)
	opts := Options{InsecureSkipVerify: true, Timeout: 5 * time.Second, RetryDelay: 10 * time.Millisecond}
	client := NewCasaApiClient(server.URL, testUser, testPassword, opts, zaptest.NewLogger(t).Sugar())
	return client, server
}

func assertCalls(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestFetchSnapshotParsesDeviceObjects(t *testing.T) {
	device := newFakeDevice(t)
	device.values["17"] = 21.5
	device.values["111"] = 2
	client, _ := newTestClient(t, device)

	snapshot, err := client.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if snapshot.Len() != 2 {
		t.Fatalf("snapshot has %d values, want 2: %v", snapshot.Len(), snapshot.Map())
	}
	supply, _ := snapshot.Get(casaStructs.TemperatureSupply)
	if f, _ := supply.Float64(); f != 21.5 {
		t.Errorf("17 = %v, want 21.5", f)
	}
	mode, _ := snapshot.Get(casaStructs.ClimateMode)
	if i, _ := mode.Int(); i != 2 {
		t.Errorf("111 = %v, want 2", i)
	}
	assertCalls(t, device.callLog(), "/handle_login", "/api")
}

func TestFetchSnapshotKeepsZeroAndDropsNull(t *testing.T) {
	device := newFakeDevice(t)
	device.values["31"] = 0
	device.values["19"] = nil
	device.values["153"] = false
	client, _ := newTestClient(t, device)

	snapshot, err := client.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if !snapshot.Has(casaStructs.BoostCountdown) {
		t.Error("value 0 for 31 was dropped")
	}
	if !snapshot.Has(casaStructs.FireplaceMode) {
		t.Error("value false for 153 was dropped")
	}
	if snapshot.Has(casaStructs.TemperatureOutside) {
		t.Error("null value for 19 was kept")
	}
}

func TestFetchSnapshotIsRepeatable(t *testing.T) {
	device := newFakeDevice(t)
	device.values["18"] = 22.0
	device.values["27"] = 1450
	client, _ := newTestClient(t, device)

	first, err := client.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("first FetchSnapshot: %v", err)
	}
	second, err := client.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("second FetchSnapshot: %v", err)
	}
	for _, id := range first.IDs() {
		a, _ := first.Get(id)
		b, _ := second.Get(id)
		if a.String() != b.String() {
			t.Errorf("object %s changed between reads: %s != %s", id, a, b)
		}
	}
	assertCalls(t, device.callLog(), "/handle_login", "/api", "/handle_login", "/api")
}

func TestWriteThenFetchReturnsWrittenValue(t *testing.T) {
	device := newFakeDevice(t)
	device.values["111"] = 2
	client, _ := newTestClient(t, device)
	ctx := context.Background()

	if err := client.Write(ctx, casaStructs.ClimateMode, 5); err != nil {
		t.Fatalf("Write: %v", err)
	}
	snapshot, err := client.FetchSnapshot(ctx)
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	mode, _ := snapshot.Get(casaStructs.ClimateMode)
	if i, _ := mode.Int(); i != 5 {
		t.Errorf("111 = %v after write, want 5", i)
	}
	assertCalls(t, device.callLog(), "/handle_login", "/api", "/handle_login", "/api")
}

func TestLoginSendsFormEncodedCredentialsAndKeepsCookie(t *testing.T) {
	device := newFakeDevice(t)
	device.values["17"] = 20.0
	client, _ := newTestClient(t, device)

	if _, err := client.FetchSnapshot(context.Background()); err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if err := client.Write(context.Background(), casaStructs.FireplaceMode, 1); err != nil {
		t.Fatalf("Write: %v", err)
	}

	device.mu.Lock()
	defer device.mu.Unlock()
	if got := device.loginBodies[0]; got != "username=service&password=s%26cret" {
		t.Errorf("login body = %q", got)
	}
	// each api call carries the cookie handed out by the login right before it
	want := []string{"token-1", "token-2"}
	for i := range want {
		if device.apiCookies[i] != want[i] {
			t.Errorf("api cookies = %v, want %v", device.apiCookies, want)
		}
	}
}

func TestLoginFailureSkipsRequest(t *testing.T) {
	device := newFakeDevice(t)
	device.loginStatus = http.StatusUnauthorized
	client, _ := newTestClient(t, device)

	_, err := client.FetchSnapshot(context.Background())
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("FetchSnapshot error = %v, want ErrLoginFailed", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected StatusError with 401, got %v", err)
	}
	if err := client.Write(context.Background(), casaStructs.TravelMode, 1); !errors.Is(err, ErrLoginFailed) {
		t.Errorf("Write error = %v, want ErrLoginFailed", err)
	}
	assertCalls(t, device.callLog(), "/handle_login", "/handle_login")
}

func TestRetryOnceAfterDisconnect(t *testing.T) {
	device := newFakeDevice(t)
	device.values["17"] = 19.0
	device.disconnects["/api"] = 1
	client, _ := newTestClient(t, device)
	reg := prometheus.NewRegistry()
	client.SetMetrics(NewMetrics(reg))

	snapshot, err := client.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot after a single disconnect: %v", err)
	}
	if !snapshot.Has(casaStructs.TemperatureSupply) {
		t.Error("snapshot misses 17 after retry")
	}
	assertCalls(t, device.callLog(), "/handle_login", "/api", "/api")
	if got := testutil.ToFloat64(client.metrics.retries.WithLabelValues("/api")); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
}

func TestTwoDisconnectsFail(t *testing.T) {
	device := newFakeDevice(t)
	device.disconnects["/api"] = 2
	client, _ := newTestClient(t, device)

	err := client.Write(context.Background(), casaStructs.ClimateMode, 3)
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Write error = %v, want ErrDisconnected", err)
	}
	assertCalls(t, device.callLog(), "/handle_login", "/api", "/api")
}

func TestLoginRetriedAfterDisconnect(t *testing.T) {
	device := newFakeDevice(t)
	device.disconnects["/handle_login"] = 1
	client, _ := newTestClient(t, device)

	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	assertCalls(t, device.callLog(), "/handle_login", "/handle_login")
}

func TestBadStatusIsNotRetried(t *testing.T) {
	device := newFakeDevice(t)
	device.apiStatus = http.StatusInternalServerError
	client, _ := newTestClient(t, device)

	_, err := client.FetchSnapshot(context.Background())
	if !errors.Is(err, ErrBadStatus) {
		t.Fatalf("FetchSnapshot error = %v, want ErrBadStatus", err)
	}
	assertCalls(t, device.callLog(), "/handle_login", "/api")
}

func TestContentTypeMismatchIsMalformed(t *testing.T) {
	device := newFakeDevice(t)
	device.values["17"] = 19.0
	device.contentType = "text/html"
	client, _ := newTestClient(t, device)

	snapshot, err := client.FetchSnapshot(context.Background())
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("FetchSnapshot error = %v, want ErrMalformedResponse", err)
	}
	if !snapshot.IsEmpty() {
		t.Error("expected empty snapshot on failure")
	}
}

func TestNoSessionFailsWithoutNetwork(t *testing.T) {
	device := newFakeDevice(t)
	client, _ := newTestClient(t, device)
	client.SetHttpClient(nil)

	if _, err := client.FetchSnapshot(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("FetchSnapshot error = %v, want ErrNoSession", err)
	}
	if err := client.Write(context.Background(), casaStructs.ClimateMode, 2); !errors.Is(err, ErrNoSession) {
		t.Errorf("Write error = %v, want ErrNoSession", err)
	}
	if calls := device.callLog(); len(calls) != 0 {
		t.Errorf("device received %v", calls)
	}
}

func TestCertificateVerificationCanBeEnabled(t *testing.T) {
	device := newFakeDevice(t)
	server := httptest.NewTLSServer(device)
	defer server.Close()

	opts := DefaultOptions()
	opts.InsecureSkipVerify = false
	client := NewCasaApiClient(server.URL, testUser, testPassword, opts, zaptest.NewLogger(t).Sugar())

	err := client.Login(context.Background())
	if err == nil {
		t.Fatal("Login succeeded against an untrusted certificate")
	}
	if errors.Is(err, ErrDisconnected) {
		t.Errorf("certificate error should not be retried: %v", err)
	}
}

func TestHostWithoutSchemeUsesHttps(t *testing.T) {
	client := NewCasaApiClient("192.168.1.20", testUser, testPassword, DefaultOptions(), zaptest.NewLogger(t).Sugar())
	if client.baseUrl != "https://192.168.1.20" {
		t.Errorf("baseUrl = %q", client.baseUrl)
	}
}
