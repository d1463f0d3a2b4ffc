package daemon_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"keygate/internal/api"
)

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestAPIStatusEndpoint(t *testing.T) {
	d := newDaemon(t, &clearKeyServer{})
	startDaemon(t, d)
	base := "http://" + d.APIAddr()

	var status api.DaemonStatus
	resp := getJSON(t, base+"/api/status", &status)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code %d", resp.StatusCode)
	}
	if !status.Running {
		t.Fatal("expected running daemon in status payload")
	}
	if status.LedgerDBPath == "" || status.LockFilePath == "" {
		t.Fatalf("expected paths in status payload: %#v", status)
	}
}

func TestAPISessionEndpoints(t *testing.T) {
	d := newDaemon(t, &clearKeyServer{})
	startDaemon(t, d)
	base := "http://" + d.APIAddr()

	if _, err := d.OpenSession("movie-1", "clearkey", clearKeyInitData()); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	var list api.SessionListResponse
	getJSON(t, base+"/api/sessions", &list)
	if len(list.Sessions) != 1 || list.Sessions[0].ContentID != "movie-1" {
		t.Fatalf("unexpected session list: %#v", list)
	}

	var single api.SessionResponse
	resp := getJSON(t, base+"/api/sessions/movie-1", &single)
	if resp.StatusCode != http.StatusOK || single.Session.Scheme != "clearkey" {
		t.Fatalf("unexpected session payload: %#v", single)
	}

	resp = getJSON(t, base+"/api/sessions/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}
}

func TestAPIExchangesEndpoint(t *testing.T) {
	d := newDaemon(t, &clearKeyServer{})
	startDaemon(t, d)
	base := "http://" + d.APIAddr()

	if _, err := d.OpenSession("movie-1", "clearkey", clearKeyInitData()); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	var all api.ExchangeListResponse
	getJSON(t, base+"/api/exchanges", &all)
	if len(all.Exchanges) == 0 {
		t.Fatal("expected recorded exchanges")
	}

	var opened api.ExchangeListResponse
	getJSON(t, base+"/api/exchanges?kind=session_opened", &opened)
	if len(opened.Exchanges) != 1 || opened.Exchanges[0].Kind != "session_opened" {
		t.Fatalf("unexpected filtered exchanges: %#v", opened)
	}

	var byContent api.ExchangeListResponse
	getJSON(t, base+"/api/exchanges?content=movie-1", &byContent)
	if len(byContent.Exchanges) == 0 {
		t.Fatal("expected exchanges for movie-1")
	}

	resp := getJSON(t, fmt.Sprintf("%s/api/exchanges?kind=%s", base, "bogus"), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", resp.StatusCode)
	}
}
