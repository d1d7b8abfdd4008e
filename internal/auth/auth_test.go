package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/five82/flyover/internal/storage"
	"github.com/five82/flyover/internal/webapi"
)

type fakeExchanger struct {
	mu          sync.Mutex
	refreshes   int
	refreshWith *oauth2.Token
	refreshErr  error
	gotCode     string
	gotVerifier string
}

func (f *fakeExchanger) AuthURL(state, verifier string) string {
	return "https://accounts.test/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeExchanger) Exchange(_ context.Context, code, verifier string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotCode = code
	f.gotVerifier = verifier
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeExchanger) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	tok := *f.refreshWith
	return &tok, nil
}

func TestSession_NoTokensIsAuthInvalid(t *testing.T) {
	s := NewSession(storage.NewMemory(), &fakeExchanger{})
	if s.Connected() {
		t.Fatal("Connected = true, want false")
	}
	if _, err := s.Token(context.Background()); !errors.Is(err, webapi.ErrAuthInvalid) {
		t.Fatalf("Token error = %v, want ErrAuthInvalid", err)
	}
	if _, err := s.Refresh(context.Background()); !errors.Is(err, webapi.ErrAuthInvalid) {
		t.Fatalf("Refresh error = %v, want ErrAuthInvalid", err)
	}
}

func TestSession_ValidTokenSkipsRefresh(t *testing.T) {
	ex := &fakeExchanger{}
	s := NewSession(storage.NewMemory(), ex)
	if err := s.Save(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got != "a1" || ex.refreshes != 0 {
		t.Fatalf("token = %q refreshes = %d, want a1 and 0", got, ex.refreshes)
	}
}

func TestSession_ExpiredTokenRefreshesAndKeepsRefreshToken(t *testing.T) {
	kv := storage.NewMemory()
	ex := &fakeExchanger{refreshWith: &oauth2.Token{AccessToken: "a2", Expiry: time.Now().Add(time.Hour)}}
	s := NewSession(kv, ex)
	if err := s.Save(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1", Expiry: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got != "a2" {
		t.Fatalf("token = %q, want a2", got)
	}
	if ex.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", ex.refreshes)
	}
	if rt, _, _ := kv.Get(storage.KeyRefreshToken); rt != "r1" {
		t.Fatalf("refresh token = %q, want r1 kept", rt)
	}
	if at, _, _ := kv.Get(storage.KeyAccessToken); at != "a2" {
		t.Fatalf("access token = %q, want a2 persisted", at)
	}
}

func TestSession_RejectedRefreshClearsTokens(t *testing.T) {
	kv := storage.NewMemory()
	ex := &fakeExchanger{refreshErr: &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}}}
	s := NewSession(kv, ex)
	_ = s.Save(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1", Expiry: time.Now().Add(time.Hour)})

	if _, err := s.Refresh(context.Background()); !errors.Is(err, webapi.ErrAuthInvalid) {
		t.Fatalf("Refresh error = %v, want ErrAuthInvalid", err)
	}
	if s.Connected() {
		t.Fatal("Connected = true after rejected refresh")
	}
	if _, ok, _ := kv.Get(storage.KeyRefreshToken); ok {
		t.Fatal("refresh token still persisted")
	}
}

func TestSession_NetworkRefreshFailureIsTransient(t *testing.T) {
	ex := &fakeExchanger{refreshErr: fmt.Errorf("dial tcp: connection refused")}
	s := NewSession(storage.NewMemory(), ex)
	_ = s.Save(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1"})

	_, err := s.Refresh(context.Background())
	if !errors.Is(err, webapi.ErrNetwork) || !webapi.IsTransient(err) {
		t.Fatalf("Refresh error = %v, want transient ErrNetwork", err)
	}
	if !s.Connected() {
		t.Fatal("tokens dropped on a network failure")
	}
}

func TestSession_LoadsPersistedTokens(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	expiry := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	if err := NewSession(db, nil).Save(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1", Expiry: expiry}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_ = db.Close()

	reopened, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	s := NewSession(reopened, nil)
	got, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got != "a1" {
		t.Fatalf("token = %q, want a1", got)
	}
}

func TestSession_ClearForgetsEverything(t *testing.T) {
	kv := storage.NewMemory()
	s := NewSession(kv, nil)
	_ = s.Save(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1"})
	_ = kv.Set(storage.KeyPKCEVerifier, "v")

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyPKCEVerifier} {
		if _, ok, _ := kv.Get(key); ok {
			t.Fatalf("%s still present", key)
		}
	}
}

func TestResolveClientID(t *testing.T) {
	kv := storage.NewMemory()
	if got := ResolveClientID(kv, ""); got != "" {
		t.Fatalf("ResolveClientID = %q, want empty", got)
	}
	if got := ResolveClientID(kv, " abc "); got != "abc" {
		t.Fatalf("ResolveClientID = %q, want abc", got)
	}
	if got := ResolveClientID(kv, ""); got != "abc" {
		t.Fatalf("ResolveClientID = %q, want remembered abc", got)
	}
}

func runFlow(t *testing.T, ex Exchanger, callback func(callbackURL string, authURL *url.URL) string) (*oauth2.Token, *http.Response, error) {
	t.Helper()
	kv := storage.NewMemory()
	flow := &Flow{Exchanger: ex, KV: kv, Port: 0, Timeout: 5 * time.Second}

	var resp *http.Response
	var respErr error
	done := make(chan struct{})
	flow.Open = func(authURL string) error {
		parsed, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		target := callback(flow.CallbackURL(), parsed)
		go func() {
			defer close(done)
			resp, respErr = http.Get(target)
		}()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tok, err := flow.Run(ctx)
	<-done
	if respErr != nil {
		t.Fatalf("callback request: %v", respErr)
	}
	_ = resp.Body.Close()
	if _, ok, _ := kv.Get(storage.KeyPKCEVerifier); ok && err == nil {
		t.Fatal("verifier kept after a successful exchange")
	}
	return tok, resp, err
}

func TestFlow_SuccessExchangesCodeWithVerifier(t *testing.T) {
	ex := &fakeExchanger{}
	tok, resp, err := runFlow(t, ex, func(cb string, authURL *url.URL) string {
		return cb + "?code=xyz&state=" + url.QueryEscape(authURL.Query().Get("state"))
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("callback status = %d, want 200", resp.StatusCode)
	}
	if tok.AccessToken != "access-xyz" {
		t.Fatalf("token = %q, want access-xyz", tok.AccessToken)
	}
	if len(ex.gotVerifier) < 43 {
		t.Fatalf("verifier = %q, want a PKCE verifier", ex.gotVerifier)
	}
}

func TestFlow_DeniedAndStateMismatch(t *testing.T) {
	_, resp, err := runFlow(t, &fakeExchanger{}, func(cb string, _ *url.URL) string {
		return cb + "?error=access_denied"
	})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("Run error = %v, want ErrDenied", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("callback status = %d, want 400", resp.StatusCode)
	}

	_, _, err = runFlow(t, &fakeExchanger{}, func(cb string, _ *url.URL) string {
		return cb + "?code=xyz&state=forged"
	})
	if !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("Run error = %v, want ErrStateMismatch", err)
	}
}

func TestFlow_NoExchanger(t *testing.T) {
	if _, err := (&Flow{}).Run(context.Background()); err == nil {
		t.Fatal("Run without exchanger succeeded")
	}
}

func TestOAuthExchanger_PKCEAndRefresh(t *testing.T) {
	var gotVerifier, gotGrant string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/token" {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		gotGrant = r.PostForm.Get("grant_type")
		w.Header().Set("Content-Type", "application/json")
		switch gotGrant {
		case "authorization_code":
			gotVerifier = r.PostForm.Get("code_verifier")
			_, _ = w.Write([]byte(`{"access_token":"a1","refresh_token":"r1","token_type":"Bearer","expires_in":3600}`))
		case "refresh_token":
			_, _ = w.Write([]byte(`{"access_token":"a2","token_type":"Bearer","expires_in":3600}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(server.Close)

	ex := NewExchanger("client", server.URL, "http://127.0.0.1:8080/callback")

	authURL, err := url.Parse(ex.AuthURL("st", "verifier-verifier-verifier-verifier-verifier"))
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := authURL.Query()
	if !strings.HasSuffix(authURL.Path, "/authorize") || q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		t.Fatalf("auth url = %s", authURL)
	}
	if q.Get("client_id") != "client" || !strings.Contains(q.Get("scope"), "user-read-playback-state") {
		t.Fatalf("auth url query = %v", q)
	}

	ctx := context.Background()
	tok, err := ex.Exchange(ctx, "code", "verifier-verifier-verifier-verifier-verifier")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.AccessToken != "a1" || gotVerifier != "verifier-verifier-verifier-verifier-verifier" {
		t.Fatalf("exchange token = %q verifier = %q", tok.AccessToken, gotVerifier)
	}

	refreshed, err := ex.Refresh(ctx, "r1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.AccessToken != "a2" || refreshed.RefreshToken != "r1" {
		t.Fatalf("refreshed = %+v, want a2 keeping r1", refreshed)
	}
}
