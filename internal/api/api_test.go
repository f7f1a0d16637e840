package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/vcq/internal/cache"
	"github.com/starford/vcq/internal/contactservice"
	"github.com/starford/vcq/internal/testutil"
)

// testEnv sets up a loaded vCard directory, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (string, http.Handler) {
	t.Helper()
	dir, router, _ := testEnvWithHook(t, authToken != "", authToken, nil)
	return dir, router
}

func testEnvWithHook(t *testing.T, authEnabled bool, authToken string, hook RefreshHook) (string, http.Handler, *contactservice.Service) {
	t.Helper()

	dir := t.TempDir()
	testutil.WriteCards(t, dir, "team.vcf", testutil.At(0),
		testutil.Card{Name: "Jane Doe", Emails: []string{"jane@x.com", "j@y.com"}, Note: "vip\nfriend"},
		testutil.Card{Name: "Bob", Emails: []string{"bob@x.com"}},
		testutil.Card{Name: "Ann", Emails: []string{"ann@z.org"}})
	testutil.Touch(t, dir, testutil.At(0))

	store, err := cache.OpenJSONStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc, err := contactservice.NewService(store, []string{dir}, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	svc.LoadAll(context.Background())

	router := NewRouter(svc, authEnabled, authToken, nil, hook)
	return svc.Paths()[0], router, svc
}

func getContacts(t *testing.T, router http.Handler, params url.Values) (*httptest.ResponseRecorder, ContactListResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/contacts?"+params.Encode(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp ContactListResponse
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return w, resp
}

func mailsOf(resp ContactListResponse) []string {
	out := make([]string, len(resp.Contacts))
	for i, c := range resp.Contacts {
		out[i] = c.Mail
	}
	return out
}

func TestQueryContacts_Defaults(t *testing.T) {
	_, router := testEnv(t, "")

	w, resp := getContacts(t, router, url.Values{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	want := []string{"ann@z.org", "bob@x.com", "jane@x.com"}
	if got := mailsOf(resp); !slices.Equal(got, want) || resp.Total != 3 {
		t.Errorf("mails = %v (total %d), want %v", got, resp.Total, want)
	}
	if resp.Contacts[2].Line != "jane@x.com\tJane Doe\tvip; friend" {
		t.Errorf("line = %q", resp.Contacts[2].Line)
	}
}

func TestQueryContacts_PatternAllAddressHeader(t *testing.T) {
	_, router := testEnv(t, "")

	w, resp := getContacts(t, router, url.Values{"q": {"JANE"}, "all": {"true"}, "mode": {"address-header"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(resp.Contacts) != 2 {
		t.Fatalf("contacts = %+v", resp.Contacts)
	}
	if resp.Contacts[1].Line != "Jane Doe <jane@x.com>" {
		t.Errorf("line = %q", resp.Contacts[1].Line)
	}
}

func TestQueryContacts_RegexAndSortByName(t *testing.T) {
	_, router := testEnv(t, "")

	_, resp := getContacts(t, router, url.Values{"q": {"^[ab]"}, "regex": {"1"}})
	if got := mailsOf(resp); !slices.Equal(got, []string{"ann@z.org", "bob@x.com"}) {
		t.Errorf("regex mails = %v", got)
	}

	_, resp = getContacts(t, router, url.Values{"sort": {"name"}})
	names := make([]string, len(resp.Contacts))
	for i, c := range resp.Contacts {
		names[i] = c.Name
	}
	if !slices.Equal(names, []string{"Ann", "Bob", "Jane Doe"}) {
		t.Errorf("names = %v", names)
	}
}

func TestQueryContacts_StartingFirst(t *testing.T) {
	_, router := testEnv(t, "")

	_, resp := getContacts(t, router, url.Values{"q": {"b"}, "starting": {"true"}})
	if got := mailsOf(resp); len(got) == 0 || got[0] != "bob@x.com" {
		t.Errorf("mails = %v, want bob first", got)
	}
}

func TestQueryContacts_BadParams(t *testing.T) {
	_, router := testEnv(t, "")

	for name, params := range map[string]url.Values{
		"regex": {"q": {"([a-"}, "regex": {"true"}},
		"mode":  {"mode": {"csv"}},
		"sort":  {"sort": {"age"}},
		"bool":  {"all": {"maybe"}},
	} {
		w, _ := getContacts(t, router, params)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}

func TestListDirectories(t *testing.T) {
	dir, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/directories", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp DirectoryListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Directories) != 1 || resp.Directories[0].Path != dir || resp.Directories[0].Records != 4 {
		t.Errorf("directories = %+v", resp.Directories)
	}
}

func TestRefresh(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	dir, router, _ := testEnvWithHook(t, false, "", func(info contactservice.DirectoryInfo) {
		mu.Lock()
		seen = append(seen, info.Path)
		mu.Unlock()
	})

	testutil.WriteCards(t, dir, "new.vcf", time.Now(), testutil.Card{Name: "Zed", Emails: []string{"zed@x.com"}})

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp DirectoryListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Directories) != 1 || resp.Directories[0].Stats.Extracted != 1 {
		t.Errorf("directories = %+v", resp.Directories)
	}
	if !slices.Equal(seen, []string{dir}) {
		t.Errorf("hook saw %v", seen)
	}

	_, contacts := getContacts(t, router, url.Values{"q": {"zed"}})
	if contacts.Total != 1 {
		t.Errorf("refreshed contact not queryable: %+v", contacts)
	}
}

func TestRefresh_UnknownDirectory(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/refresh?dir="+url.QueryEscape(t.TempDir()), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed query = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	router := testEnvWithSSE(t, false, "")

	// The stub blocks until the request context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()

	store, err := cache.OpenJSONStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc, err := contactservice.NewService(store, []string{t.TempDir()}, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}

	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	return NewRouter(svc, authEnabled, token, sseHandler, nil)
}

func TestSSEEvents_QueryToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	for token, want := range map[string]bool{"tok": true, "nope": false} {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		req := httptest.NewRequest(http.MethodGet, "/events?access_token="+token, nil).WithContext(ctx)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		cancel()
		if got := w.Code != http.StatusUnauthorized; got != want {
			t.Errorf("token %q: status = %d", token, w.Code)
		}
	}
}
