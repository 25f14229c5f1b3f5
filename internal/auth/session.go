// Package auth はローンAPIのCookieセッションに基づく認証状態を提供する。
//
// Sessionは1つのブラウザ（1リクエスト）に対応する認証状態で、
// 未確定 → 認証済み / 未認証 の3状態を持つ。状態はAPIの /auth/me の結果からのみ作られる。
package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/loandesk/internal/apiclient"
)

// APIのエンドポイント。
const (
	LoginPath  = "/auth/login"
	LogoutPath = "/auth/logout"
	MePath     = "/auth/me"
)

// ユーザー向けメッセージ。
const (
	MsgWelcome            = "Welcome back!"
	MsgLoggedOut          = "Logged out!"
	MsgLoginFailed        = "Login failed"
	MsgCredentialsMissing = "Username and password are required"
	MsgSessionUnverified  = "Login succeeded but the session could not be verified"
)

// API はSessionが使用するローンAPIの呼び出し口。*apiclient.Clientが実装する。
type API interface {
	Get(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) error
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
}

// User は /auth/me が返すログイン中のユーザー。
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
}

// State はSessionの状態。
type State int

const (
	// StateUnresolved はセッション確認が完了していない状態（loading=true）。
	StateUnresolved State = iota
	// StateAuthenticated はユーザーが確定している状態。
	StateAuthenticated
	// StateUnauthenticated はセッション確認に失敗した、またはログアウトした状態。
	StateUnauthenticated
)

// String はfmt.Stringerを実装する。
func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unresolved"
	}
}

// LoginResult はLoginの結果。エラーは返さず、画面にそのまま表示できるメッセージを持つ。
type LoginResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Snapshot はある時点のSessionの状態。JSONとして /api/session で返される。
type Snapshot struct {
	User            *User  `json:"user"`
	Loading         bool   `json:"loading"`
	IsAuthenticated bool   `json:"is_authenticated"`
	State           string `json:"state"`
}

// Session は認証状態を保持する。複数goroutineから同時に使用できる。
type Session struct {
	api    API
	logger *slog.Logger

	mu      sync.RWMutex
	user    *User
	loading bool
}

// NewSession は未確定状態のSessionを生成する。
func NewSession(api API, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		api:     api,
		logger:  logger,
		loading: true,
	}
}

// NewUnauthenticated はAPIを呼び出さずに未認証で確定したSessionを生成する。
// セッションCookieを持たないリクエストに使う。
func NewUnauthenticated(api API, logger *slog.Logger) *Session {
	s := NewSession(api, logger)
	s.publish(nil, false)
	return s
}

// publish はuserとloadingを1回の代入で公開する。
func (s *Session) publish(user *User, loading bool) {
	s.mu.Lock()
	s.user = user
	s.loading = loading
	s.mu.Unlock()
}

// Resolve はセッション確認（GET /auth/me）を行い状態を確定させる。
// 失敗は未認証という通常の結果であり、エラーとしては扱わない。
func (s *Session) Resolve(ctx context.Context) State {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	user, err := s.fetchUser(ctx)
	if err != nil {
		s.logger.DebugContext(ctx, "session check failed",
			slog.String("error", err.Error()),
		)
		s.publish(nil, false)
		return StateUnauthenticated
	}

	s.publish(user, false)
	return StateAuthenticated
}

// Refresh はセッション確認を再実行する。セッションの有効性が変わりうる操作の後に使う。
func (s *Session) Refresh(ctx context.Context) State {
	return s.Resolve(ctx)
}

func (s *Session) fetchUser(ctx context.Context) (*User, error) {
	var user User
	if err := s.api.Get(ctx, MePath, &user); err != nil {
		return nil, err
	}
	if user.Username == "" {
		return nil, &apiclient.Error{Kind: apiclient.KindDecode, Message: "session response has no username"}
	}
	return &user, nil
}

// Login は認証情報を送信し、成功時はセッション確認をやり直す。
// ログインレスポンスのボディは信用せず、/auth/me が成功した場合のみ成功を返す。
func (s *Session) Login(ctx context.Context, username, password string) LoginResult {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{Success: false, Message: MsgCredentialsMissing}
	}

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	body := map[string]string{"username": username, "password": password}
	if err := s.api.Post(ctx, LoginPath, body, nil); err != nil {
		s.logger.InfoContext(ctx, "login rejected",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		return LoginResult{Success: false, Message: loginFailureMessage(err)}
	}

	if s.Resolve(ctx) != StateAuthenticated {
		s.logger.WarnContext(ctx, "login accepted but session check failed",
			slog.String("username", username),
		)
		return LoginResult{Success: false, Message: MsgSessionUnverified}
	}

	return LoginResult{Success: true, Message: MsgWelcome}
}

// loginFailureMessage はAPIのdetailを優先し、無い場合は "Login failed" を返す。
func loginFailureMessage(err error) string {
	if apiclient.StatusCode(err) != 0 {
		msg := apiclient.Message(err, MsgLoginFailed)
		if strings.HasPrefix(msg, "API error:") {
			return MsgLoginFailed
		}
		return msg
	}
	return apiclient.Message(err, MsgLoginFailed)
}

// Logout はログアウトを要求し、結果に関わらずローカルのユーザーを消去する。
// APIの失敗はログに記録するだけで呼び出し元へは返さない。
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	if err := s.api.Post(ctx, LogoutPath, nil, nil); err != nil {
		s.logger.WarnContext(ctx, "logout request failed",
			slog.String("error", err.Error()),
		)
	}

	s.publish(nil, false)
}

// User は現在のユーザーを返す。未認証の場合はnil。
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Loading はセッション確認中かを返す。
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// IsAuthenticated はユーザーが確定しているかを返す。
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// State は現在の状態を返す。
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stateOf(s.user, s.loading)
}

// Snapshot は現在の状態の一貫したコピーを返す。
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var user *User
	if s.user != nil {
		u := *s.user
		user = &u
	}
	return Snapshot{
		User:            user,
		Loading:         s.loading,
		IsAuthenticated: user != nil,
		State:           stateOf(s.user, s.loading).String(),
	}
}

func stateOf(user *User, loading bool) State {
	switch {
	case loading:
		return StateUnresolved
	case user != nil:
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}
