// Package security は外部サービスとの通信と表示テキストの安全性を扱う。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// OutboundGuard はローンAPI以外の外部サービス（画像アップロード先など）への通信を制限する。
// 通信先はhttpsかつ公開アドレスに限られる。
type OutboundGuard struct {
	blocked []*net.IPNet
}

// 内部ネットワークとメタデータサービスのアドレス範囲。
var internalRanges = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // 169.254.169.254を含む
	"100.64.0.0/10",
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
}

// NewOutboundGuard はOutboundGuardを生成する。
func NewOutboundGuard() *OutboundGuard {
	g := &OutboundGuard{}
	for _, cidr := range internalRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid internal range %s: %v", cidr, err))
		}
		g.blocked = append(g.blocked, network)
	}
	return g
}

// NewClient は外部サービス用のHTTPクライアントを生成する。
// safeurlがDNS解決後の接続先IPを検証するため、名前解決で内部アドレスへ向けられても接続しない。
func (g *OutboundGuard) NewClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(cfg).Client
}

// ValidateURL は外部サービスから受け取ったURLを検証する。
// DNS解決は行わず、スキームとホストの静的な検証のみ行う。
func (g *OutboundGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("URL must use https: %s", rawURL)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no host: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range g.blocked {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip)
			}
		}
	}
	return nil
}
