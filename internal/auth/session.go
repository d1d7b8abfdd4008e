package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/five82/flyover/internal/storage"
	"github.com/five82/flyover/internal/webapi"
)

var log = logging.Logger("auth")

// Scopes requested during authorization.
var Scopes = []string{
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopeUserLibraryModify,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopeUserReadRecentlyPlayed,
	spotifyauth.ScopeUserTopRead,
}

// expirySkew refreshes tokens slightly before the remote would reject them.
const expirySkew = time.Minute

// Exchanger performs the OAuth exchanges against the accounts service.
type Exchanger interface {
	AuthURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthExchanger is the x/oauth2 backed Exchanger for a public PKCE client.
type OAuthExchanger struct {
	cfg *oauth2.Config
}

var _ Exchanger = (*OAuthExchanger)(nil)

// NewExchanger builds an exchanger for clientID. An empty accountsURL uses
// the Spotify accounts service.
func NewExchanger(clientID, accountsURL, redirectURL string) *OAuthExchanger {
	endpoint := oauth2.Endpoint{
		AuthURL:   spotifyauth.AuthURL,
		TokenURL:  spotifyauth.TokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if base := strings.TrimRight(strings.TrimSpace(accountsURL), "/"); base != "" {
		endpoint.AuthURL = base + "/authorize"
		endpoint.TokenURL = base + "/api/token"
	}
	return &OAuthExchanger{cfg: &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Scopes:      Scopes,
		Endpoint:    endpoint,
	}}
}

func (o *OAuthExchanger) AuthURL(state, verifier string) string {
	return o.cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (o *OAuthExchanger) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	return o.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
}

func (o *OAuthExchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	expired := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	return o.cfg.TokenSource(ctx, expired).Token()
}

// Session owns the persisted token set and implements webapi.TokenSource.
type Session struct {
	kv storage.KV

	mu     sync.Mutex
	ex     Exchanger
	tok    *oauth2.Token
	loaded bool

	// Now is the clock used for expiry checks.
	Now func() time.Time
}

var _ webapi.TokenSource = (*Session)(nil)

// NewSession loads tokens lazily from kv.
func NewSession(kv storage.KV, ex Exchanger) *Session {
	return &Session{kv: kv, ex: ex, Now: time.Now}
}

// SetExchanger replaces the exchanger, e.g. after the client id changed.
func (s *Session) SetExchanger(ex Exchanger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ex = ex
}

// Connected reports whether a token set is available.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return s.tok != nil && (s.tok.AccessToken != "" || s.tok.RefreshToken != "")
}

// Token returns a usable access token, refreshing an expired one first.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	if s.tok == nil || (s.tok.AccessToken == "" && s.tok.RefreshToken == "") {
		return "", fmt.Errorf("%w: not connected", webapi.ErrAuthInvalid)
	}
	if s.tok.AccessToken != "" && !s.expiredLocked() {
		return s.tok.AccessToken, nil
	}
	log.Debugf("access token expired, refreshing")
	return s.refreshLocked(ctx)
}

// Refresh forces a refresh exchange.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return s.refreshLocked(ctx)
}

// Save stores a freshly issued token set.
func (s *Session) Save(tok *oauth2.Token) error {
	if tok == nil {
		return fmt.Errorf("token is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(tok)
}

// Clear forgets every token and the pending PKCE verifier.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = nil
	s.loaded = true
	return s.kv.Delete(storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyTokenExpiry, storage.KeyPKCEVerifier)
}

func (s *Session) refreshLocked(ctx context.Context) (string, error) {
	if s.tok == nil || s.tok.RefreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token", webapi.ErrAuthInvalid)
	}
	if s.ex == nil {
		return "", fmt.Errorf("%w: no client id configured", webapi.ErrAuthInvalid)
	}
	next, err := s.ex.Refresh(ctx, s.tok.RefreshToken)
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			log.Warnf("refresh rejected: %v", err)
			s.tok = nil
			_ = s.kv.Delete(storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyTokenExpiry)
			return "", fmt.Errorf("%w: refresh rejected: %w", webapi.ErrAuthInvalid, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: refresh: %w", webapi.ErrNetwork, err)
	}
	if next.RefreshToken == "" {
		next.RefreshToken = s.tok.RefreshToken
	}
	if err := s.saveLocked(next); err != nil {
		log.Warnf("persist refreshed token: %v", err)
	}
	return next.AccessToken, nil
}

func (s *Session) saveLocked(tok *oauth2.Token) error {
	copied := *tok
	s.tok = &copied
	s.loaded = true

	var errs []error
	if err := s.kv.Set(storage.KeyAccessToken, tok.AccessToken); err != nil {
		errs = append(errs, err)
	}
	if tok.RefreshToken != "" {
		if err := s.kv.Set(storage.KeyRefreshToken, tok.RefreshToken); err != nil {
			errs = append(errs, err)
		}
	}
	if !tok.Expiry.IsZero() {
		if err := s.kv.Set(storage.KeyTokenExpiry, strconv.FormatInt(tok.Expiry.UnixMilli(), 10)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *Session) loadLocked() {
	if s.loaded {
		return
	}
	s.loaded = true
	access, _, err := s.kv.Get(storage.KeyAccessToken)
	if err != nil {
		log.Warnf("load access token: %v", err)
	}
	refresh, _, err := s.kv.Get(storage.KeyRefreshToken)
	if err != nil {
		log.Warnf("load refresh token: %v", err)
	}
	if access == "" && refresh == "" {
		return
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}
	if raw, ok, _ := s.kv.Get(storage.KeyTokenExpiry); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			tok.Expiry = time.UnixMilli(ms)
		}
	}
	s.tok = tok
}

func (s *Session) expiredLocked() bool {
	if s.tok.Expiry.IsZero() {
		return false
	}
	return !s.Now().Add(expirySkew).Before(s.tok.Expiry)
}

// ResolveClientID returns the configured client id, remembering it, or the
// one remembered from an earlier run.
func ResolveClientID(kv storage.KV, configured string) string {
	if id := strings.TrimSpace(configured); id != "" {
		if err := kv.Set(storage.KeyClientID, id); err != nil {
			log.Warnf("remember client id: %v", err)
		}
		return id
	}
	id, _, err := kv.Get(storage.KeyClientID)
	if err != nil {
		log.Warnf("load client id: %v", err)
	}
	return strings.TrimSpace(id)
}
