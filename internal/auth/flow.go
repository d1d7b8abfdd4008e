package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	"github.com/five82/flyover/internal/storage"
)

const (
	callbackPath   = "/callback"
	defaultTimeout = 5 * time.Minute
)

var (
	// ErrDenied is returned when the user declined authorization.
	ErrDenied = errors.New("authorization denied")
	// ErrStateMismatch is returned when the callback state does not match.
	ErrStateMismatch = errors.New("authorization state mismatch")
)

// Flow runs the authorization code flow with PKCE through a loopback
// callback server.
type Flow struct {
	Exchanger Exchanger
	KV        storage.KV
	// Host and Port the callback server listens on; Port 0 picks a free one.
	Host string
	Port int
	// Open shows the authorize URL to the user. Defaults to the system browser.
	Open    func(authURL string) error
	Timeout time.Duration

	mu          sync.Mutex
	callbackURL string
}

type callbackResult struct {
	code string
	err  error
}

// CallbackURL is the address the callback server is listening on, once Run
// has started it.
func (f *Flow) CallbackURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callbackURL
}

// Run opens the authorize page and waits for a single callback, then
// exchanges the code for tokens.
func (f *Flow) Run(ctx context.Context) (*oauth2.Token, error) {
	if f.Exchanger == nil {
		return nil, fmt.Errorf("no client id configured")
	}

	verifier := oauth2.GenerateVerifier()
	if f.KV != nil {
		if err := f.KV.Set(storage.KeyPKCEVerifier, verifier); err != nil {
			log.Warnf("persist pkce verifier: %v", err)
		}
	}
	state := uuid.NewString()

	host := f.Host
	if host == "" {
		host = "127.0.0.1"
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(f.Port)))
	if err != nil {
		return nil, fmt.Errorf("listen for callback: %w", err)
	}
	f.mu.Lock()
	f.callbackURL = "http://" + ln.Addr().String() + callbackPath
	f.mu.Unlock()

	results := make(chan callbackResult, 1)
	var once sync.Once
	deliver := func(r callbackResult) {
		once.Do(func() { results <- r })
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		res := parseCallback(r.URL.Query(), state)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, errorPage(res.err))
		} else {
			_, _ = io.WriteString(w, successPage)
		}
		deliver(res)
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("callback server: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL := f.Exchanger.AuthURL(state, verifier)
	open := f.Open
	if open == nil {
		open = openBrowser
	}
	if err := open(authURL); err != nil {
		log.Warnf("open browser: %v (visit %s)", err, authURL)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res callbackResult
	select {
	case res = <-results:
	case <-timer.C:
		return nil, fmt.Errorf("authorization timed out after %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := f.Exchanger.Exchange(ctx, res.code, verifier)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if f.KV != nil {
		_ = f.KV.Delete(storage.KeyPKCEVerifier)
	}
	log.Infof("authorization complete")
	return tok, nil
}

func parseCallback(q url.Values, wantState string) callbackResult {
	if reason := q.Get("error"); reason != "" {
		return callbackResult{err: fmt.Errorf("%w: %s", ErrDenied, reason)}
	}
	if q.Get("state") != wantState {
		return callbackResult{err: ErrStateMismatch}
	}
	code := q.Get("code")
	if code == "" {
		return callbackResult{err: fmt.Errorf("callback carried no code")}
	}
	return callbackResult{code: code}
}

func openBrowser(authURL string) error {
	// The TUI owns the terminal; keep the browser helper quiet.
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return browser.OpenURL(authURL)
}
