package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/logline-motor/motor/internal/broker"
	"github.com/logline-motor/motor/internal/runtime"
)

func newTestGateway(t *testing.T) (*Gateway, *runtime.Runtime) {
	t.Helper()
	rt := runtime.New(broker.DefaultConfig())
	t.Cleanup(rt.Close)
	return New(rt, DefaultConfig()), rt
}

func TestHandleDSL_Success(t *testing.T) {
	g, _ := newTestGateway(t)

	body := strings.NewReader(`{"command": "DEFINE IDEA id1 \"hello\""}`)
	req := httptest.NewRequest(http.MethodPost, "/api/dsl", body)
	rec := httptest.NewRecorder()

	g.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp dslResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Result != "Ideia registrada: id1" {
		t.Fatalf("unexpected result: %q", resp.Result)
	}
}

func TestHandleDSL_SyntaxErrorIs400(t *testing.T) {
	g, _ := newTestGateway(t)

	body := strings.NewReader(`{"command": "NOT A COMMAND"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/dsl", body)
	rec := httptest.NewRecorder()

	g.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.Message, "Formato de comando inválido") {
		t.Fatalf("unexpected error message: %q", resp.Message)
	}
}

func TestHandleDSL_DuplicateIdIs400(t *testing.T) {
	g, _ := newTestGateway(t)

	mkReq := func() *http.Request {
		return httptest.NewRequest(http.MethodPost, "/api/dsl",
			strings.NewReader(`{"command": "DEFINE CONTRACT c1 clause1"}`))
	}

	rec1 := httptest.NewRecorder()
	g.ServeHTTP(rec1, mkReq())
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	g.ServeHTTP(rec2, mkReq())
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("duplicate expected 400, got %d", rec2.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	g, _ := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "UP" || resp.Product != Product {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}

func TestHandleReady_DatabaseCheckFailureIs503(t *testing.T) {
	rt := runtime.New(broker.DefaultConfig())
	defer rt.Close()

	cfg := DefaultConfig()
	cfg.DatabaseCheck = func(ctx context.Context) error {
		return errors.New("connection refused")
	}
	g := New(rt, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHandleStream_DeliversPublishedEvent(t *testing.T) {
	g, rt := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/stream?channel=default", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		g.ServeHTTP(rec, req)
		close(done)
	}()

	// Give the handler a moment to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)

	if _, err := rt.ProcessCommand(context.Background(), `DEFINE IDEA streamed "x"`); err != nil {
		t.Fatalf("process command failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream handler did not exit after context cancellation")
	}

	body := rec.Body.String()
	scanner := bufio.NewScanner(strings.NewReader(body))
	var sawEvent bool
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: IdeaRegistered") {
			sawEvent = true
		}
	}
	if !sawEvent {
		t.Fatalf("expected an IdeaRegistered SSE frame, got body: %q", body)
	}
}

// Two commands on the commands channel arrive in order with strictly
// increasing id: fields.
func TestHandleStream_CommandsChannelOrderedIDs(t *testing.T) {
	g, _ := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/stream?channel=commands", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		g.ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)

	for _, cmd := range []string{`DEFINE IDEA a "x"`, `DEFINE IDEA b "y"`} {
		body := strings.NewReader(`{"command": ` + strconv.Quote(cmd) + `}`)
		post := httptest.NewRequest(http.MethodPost, "/api/dsl", body)
		postRec := httptest.NewRecorder()
		g.ServeHTTP(postRec, post)
		if postRec.Code != http.StatusOK {
			t.Fatalf("command %q failed: %d", cmd, postRec.Code)
		}
	}

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream handler did not exit after context cancellation")
	}

	var ids []uint64
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "id: ") {
			n, err := strconv.ParseUint(strings.TrimPrefix(line, "id: "), 10, 64)
			if err != nil {
				t.Fatalf("malformed id line %q: %v", line, err)
			}
			ids = append(ids, n)
		}
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 command_executed frames, got ids %v in body %q", ids, rec.Body.String())
	}
	if ids[1] <= ids[0] {
		t.Fatalf("ids not strictly increasing: %v", ids)
	}
}
