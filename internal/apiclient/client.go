// Package apiclient はローン管理REST APIを呼び出すHTTPクライアントを提供する。
//
// すべての呼び出しは同一のベースURLに対して行われ、JSONのエンコード/デコード、
// Cookie（セッション）の送信、タイムアウトによる中断、エラーの正規化を一箇所で扱う。
// リトライは行わない。1回の呼び出しにつき送信は最大1回。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	// DefaultTimeout はリクエストのデフォルトタイムアウト。
	DefaultTimeout = 10 * time.Second

	// maxDrainSize はエラーボディや読み捨てるボディの最大読み取りサイズ。
	maxDrainSize = 1 << 20

	requestIDHeader = "X-Request-ID"
)

// Config はClientの設定。
type Config struct {
	BaseURL   string
	Timeout   time.Duration // 0以下の場合はDefaultTimeout
	UserAgent string
}

// Observer はAPI呼び出しの結果を受け取るインターフェース。
// metrics.Collectorが実装する。
type Observer interface {
	ObserveAPICall(method, route string, status int, outcome string, duration time.Duration)
}

// Client はローンAPIのクライアント。
// 構築後はイミュータブルで、複数goroutineから同時に使用できる。
// Cookieを持つ利用者ごとのクライアントはWithCookiesで派生させる。
type Client struct {
	baseURL    *url.URL
	timeout    time.Duration
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
}

// Option はClientのオプション設定。
type Option func(*Client)

// WithHTTPClient は下位のhttp.Clientを差し替える。
// 渡されたクライアントはコピーして使用し、Jarが無い場合は新しいJarを設定する。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc == nil {
			return
		}
		copied := *hc
		if copied.Jar == nil {
			copied.Jar = c.httpClient.Jar
		}
		c.httpClient = &copied
	}
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver は呼び出し結果の通知先を設定する。
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// New はClientを生成する。
// BaseURLはhttpまたはhttpsの絶対URLである必要がある。
func New(cfg Config, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme must be http or https and host is required", cfg.BaseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	jar, err := newJar()
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:    u,
		timeout:    timeout,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Jar: jar},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL は正規化済みのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Timeout は1リクエストあたりのタイムアウトを返す。
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// WithCookies は新しいCookie Jarを持つClientのコピーを返す。
// Jarには指定されたCookieがベースURLのホスト向けに設定される。
// トランスポートやロガーは元のClientと共有する。
func (c *Client) WithCookies(cookies ...*http.Cookie) *Client {
	jar, err := newJar()
	if err != nil {
		// cookiejar.Newはpublicsuffix指定時にエラーを返さない
		panic(err)
	}

	seeded := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		if ck == nil || ck.Name == "" {
			continue
		}
		seeded = append(seeded, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: "/"})
	}
	if len(seeded) > 0 {
		jar.SetCookies(c.baseURL, seeded)
	}

	clone := *c
	hc := *c.httpClient
	hc.Jar = jar
	clone.httpClient = &hc
	return &clone
}

// Cookies はJarに保持されているベースURL向けのCookieを返す。
// ログイン後にAPIが発行したセッションCookieをブラウザへ中継するために使う。
func (c *Client) Cookies() []*http.Cookie {
	if c.httpClient.Jar == nil {
		return nil
	}
	return c.httpClient.Jar.Cookies(c.baseURL)
}

// Request は1回のAPI呼び出しを表す。
type Request struct {
	Method string
	Path   string // ベースURLからの相対パス。クエリ文字列を含んでもよい
	Body   any    // nilでなければJSONとして送信する
	Query  url.Values
	Header http.Header
	// Raw がtrueの場合はボディを解釈せずにレスポンスをそのまま返す（PDF等）。
	Raw bool
	// Route はメトリクス用のエンドポイントラベル。空の場合はPathから生成する。
	Route string
}

// RequestOption はRequestのオプション設定。
type RequestOption func(*Request)

// WithQuery はクエリパラメータを追加する。
func WithQuery(q url.Values) RequestOption {
	return func(r *Request) {
		if r.Query == nil {
			r.Query = url.Values{}
		}
		for k, vs := range q {
			for _, v := range vs {
				r.Query.Add(k, v)
			}
		}
	}
}

// WithHeader はヘッダーを上書きする。
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = http.Header{}
		}
		r.Header.Set(key, value)
	}
}

// WithRoute はメトリクス用のエンドポイントラベルを設定する。
func WithRoute(route string) RequestOption {
	return func(r *Request) {
		r.Route = route
	}
}

// Get はGETリクエストを送信し、JSONレスポンスをoutへデコードする。
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	_, err := c.Do(ctx, buildRequest(http.MethodGet, path, nil, opts), out)
	return err
}

// Post はbodyをJSONとしてPOSTし、JSONレスポンスをoutへデコードする。
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	_, err := c.Do(ctx, buildRequest(http.MethodPost, path, body, opts), out)
	return err
}

// Put はbodyをJSONとしてPUTし、JSONレスポンスをoutへデコードする。
func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	_, err := c.Do(ctx, buildRequest(http.MethodPut, path, body, opts), out)
	return err
}

// Patch はbodyをJSONとしてPATCHし、JSONレスポンスをoutへデコードする。
func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	_, err := c.Do(ctx, buildRequest(http.MethodPatch, path, body, opts), out)
	return err
}

// Delete はDELETEリクエストを送信し、JSONレスポンスをoutへデコードする。
func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	_, err := c.Do(ctx, buildRequest(http.MethodDelete, path, nil, opts), out)
	return err
}

// Stream はリクエストを送信し、2xxの場合はレスポンスを解釈せずに返す。
// 呼び出し元はBodyを必ずCloseすること。
// タイムアウトはレスポンスヘッダーの受信までに適用され、ボディの読み取りには適用されない。
func (c *Client) Stream(ctx context.Context, method, path string, body any, opts ...RequestOption) (*http.Response, error) {
	req := buildRequest(method, path, body, opts)
	req.Raw = true
	return c.Do(ctx, req, nil)
}

func buildRequest(method, path string, body any, opts []RequestOption) Request {
	req := Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// Do はリクエストを1回だけ送信する。
// Rawの場合は2xxレスポンスをそのまま返し、それ以外はoutへデコードしてnilを返す。
// 失敗時は常に*Errorを返す。
func (c *Client) Do(ctx context.Context, req Request, out any) (*http.Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	route := req.Route
	if route == "" {
		route = normalizeRoute(req.Path)
	}

	start := time.Now()
	resp, status, err := c.roundTrip(ctx, req, out)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			outcome = string(apiErr.Kind)
		} else {
			outcome = string(KindUnknown)
		}
		c.logFailure(ctx, req.Method, route, status, err)
	}
	if c.observer != nil {
		c.observer.ObserveAPICall(req.Method, route, status, outcome, elapsed)
	}

	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, req Request, out any) (*http.Response, int, error) {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, 0, newUnknownError(fmt.Errorf("failed to marshal request body: %w", err))
		}
		body = bytes.NewReader(b)
	}

	// AbortControllerと同様に、タイマー発火でリクエストを中断する。
	// タイマーはレスポンスヘッダー受信時点で停止する。
	ctx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(c.timeout, cancel)

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.endpointURL(req.Path, req.Query), body)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, 0, newUnknownError(fmt.Errorf("failed to build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set(requestIDHeader, id)
	}
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	fired := !timer.Stop()
	if err != nil {
		cancel()
		if fired || errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, newTimeoutError(err)
		}
		return nil, 0, &Error{
			Kind:    KindNetwork,
			Message: "Unable to reach the loan API",
			Err:     err,
		}
	}
	if fired {
		// ヘッダー受信と同時にタイマーが発火した場合も中断として扱う
		resp.Body.Close()
		cancel()
		return nil, 0, newTimeoutError(context.Canceled)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxDrainSize))
		return nil, resp.StatusCode, newHTTPError(resp.StatusCode, b)
	}

	if req.Raw {
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, resp.StatusCode, nil
	}

	defer cancel()
	defer resp.Body.Close()

	if out == nil || !isJSON(resp.Header.Get("Content-Type")) {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))
		return nil, resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, resp.StatusCode, nil
		}
		return nil, resp.StatusCode, &Error{
			Kind:    KindDecode,
			Status:  resp.StatusCode,
			Message: "Invalid response from the loan API",
			Err:     err,
		}
	}

	return nil, resp.StatusCode, nil
}

// endpointURL はベースURLとパス、クエリから完全なURLを組み立てる。
// パスは呼び出し元でエスケープ済みであることを前提にそのまま連結する。
func (c *Client) endpointURL(path string, query url.Values) string {
	u := c.baseURL.String() + "/" + strings.TrimLeft(path, "/")
	if len(query) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + query.Encode()
}

func (c *Client) logFailure(ctx context.Context, method, route string, status int, err error) {
	level := slog.LevelWarn
	var apiErr *Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Kind == KindHTTP && apiErr.Status < 500:
			level = slog.LevelInfo
		case apiErr.Kind == KindNetwork || apiErr.Kind == KindUnknown:
			level = slog.LevelError
		}
	}

	attrs := []any{
		slog.String("method", method),
		slog.String("route", route),
		slog.String("error", err.Error()),
	}
	if apiErr != nil {
		attrs = append(attrs, slog.String("kind", string(apiErr.Kind)))
		if apiErr.Err != nil {
			attrs = append(attrs, slog.String("cause", apiErr.Err.Error()))
		}
	}
	if status != 0 {
		attrs = append(attrs, slog.Int("http_status", status))
	}
	c.logger.Log(ctx, level, "loan api call failed", attrs...)
}

// cancelOnClose はBodyのClose時にリクエストのコンテキストを解放する。
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

// normalizeRoute はメトリクスのラベル数を抑えるため、クエリを除去し数値セグメントを:idに置き換える。
func normalizeRoute(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		if s != "" && strings.Trim(s, "0123456789") == "" {
			segments[i] = ":id"
		}
	}
	return "/" + strings.Join(segments, "/")
}

func newJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}
