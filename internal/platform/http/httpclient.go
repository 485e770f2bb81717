package http

import (
	"net"
	"net/http"
	"time"
)

const (
	// DefaultDownloadTimeout はマスタ契約CSVのダウンロード全体に許す時間です。
	DefaultDownloadTimeout = 2 * time.Minute

	// UserAgent は外向きリクエストに付与する User-Agent です。
	UserAgent = "brokerdesk-mastercontract/1.0"
)

// NewHTTPClient はマスタ契約のダウンロード用に設定されたHTTPクライアントを作成します。
//
// 設定:
//   - Proxy: 環境変数（HTTP_PROXYなど）が設定されている場合に使用
//   - Dialer.Timeout: TCP接続タイムアウト
//   - ResponseHeaderTimeout: ヘッダー到着までの上限（本文の転送時間は含まない）
//   - MaxIdleConnsPerHost: 取得元は少数のホストなので小さく保つ
//   - Client.Timeout: リクエスト全体のタイムアウト。0 以下なら DefaultDownloadTimeout
//
// http.DefaultClient にはタイムアウトがないため使用しないこと。
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: userAgentTransport{next: t}}
}

// userAgentTransport は呼び出し元が指定していない場合に User-Agent を付与します。
type userAgentTransport struct {
	next http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	// RoundTripper は元のリクエストを変更してはならない
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", UserAgent)
	return t.next.RoundTrip(r)
}
