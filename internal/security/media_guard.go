// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// MediaURLGuardService はユーザー指定メディアURLの検証インターフェースを定義する。
// メディアのアップロードは外部パイプラインが行うため、本アプリケーションが
// 受け付けるのはURLのみであり、受け付け前にここで安全性を検証する。
type MediaURLGuardService interface {
	// ValidateMediaURL はメディアURLの安全性を検証する。
	// httpsスキームの公開ホストのみを許可し、プライベートIP・ループバック・
	// リンクローカル・メタデータIPへのURLを拒否する。
	// 検証に成功した場合はnilを返す。
	ValidateMediaURL(ctx context.Context, rawURL string) error
}

// ErrBlockedURL はセキュリティポリシーによりURLを拒否したことを表す。
// URLの形式不備とは区別され、errors.Isで判定できる。
var ErrBlockedURL = errors.New("URL blocked by security policy")

// blockedNetworks は拒否対象のネットワーク範囲。
// パッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// mediaURLGuard はMediaURLGuardServiceの実装。
// 静的検証に加え、probeが有効な場合はsafeurlでラップしたHTTPクライアントで
// HEADリクエストを送り、到達可能性を確認する。safeurlはnet.Dialerの
// ControlフックでDNS解決後のIPアドレスも検証するため、静的検証をすり抜ける
// DNS再バインディング攻撃はクライアント側で防止される。
type mediaURLGuard struct {
	probe  bool
	client *http.Client
}

// NewMediaURLGuard はMediaURLGuardServiceの新しいインスタンスを生成する。
// 到達可能性のHEADプローブを有効にした状態で返す。
func NewMediaURLGuard(probeTimeout time.Duration) *mediaURLGuard {
	config := safeurl.GetConfigBuilder().
		SetTimeout(probeTimeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return &mediaURLGuard{
		probe:  true,
		client: safeurl.Client(config).Client,
	}
}

// NewStaticMediaURLGuard はHEADプローブを行わない静的検証のみのインスタンスを生成する。
// ネットワークアクセスを避けたいバッチ処理やテストで使用する。
func NewStaticMediaURLGuard() *mediaURLGuard {
	return &mediaURLGuard{probe: false}
}

// ValidateMediaURL はメディアURLの安全性を検証する。
func (g *mediaURLGuard) ValidateMediaURL(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// スキーム検証: メディアはhttpsのみ許可
	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("disallowed scheme: %s (https only)", parsed.Scheme)
	}

	// ホスト検証
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host %s: %w", host, ErrBlockedURL)
	}

	// IPアドレス直指定の場合: ブロック対象CIDRとの照合
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address %s: %w", ip.String(), ErrBlockedURL)
		}
	}

	if !g.probe {
		return nil
	}

	return g.probeURL(ctx, rawURL)
}

// probeURL はHEADリクエストでメディアURLの到達可能性を確認する。
func (g *mediaURLGuard) probeURL(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		// safeurlはDNS解決後の接続先IPが拒否対象だった場合もここでエラーを返す
		return fmt.Errorf("media URL is not reachable (%v): %w", err, ErrBlockedURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("media URL returned status %d", resp.StatusCode)
	}

	return nil
}

// isBlockedIP はIPアドレスが拒否対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// compile-time interface check
var _ MediaURLGuardService = (*mediaURLGuard)(nil)
