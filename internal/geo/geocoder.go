// Package geo は場所名から地理座標への解決機能を提供する。
// 外部のジオコーディングAPI（Nominatim互換）を呼び出す。
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/tsunagu/internal/model"
)

// defaultEndpoint はNominatim検索APIのデフォルトエンドポイント。
const defaultEndpoint = "https://nominatim.openstreetmap.org/search"

// GeocoderService は場所名の座標解決インターフェースを定義する。
type GeocoderService interface {
	// Resolve は場所名を地理座標に解決する。
	// 該当する場所が見つからない場合は(nil, nil)を返す。
	Resolve(ctx context.Context, name string) (*model.GeoPoint, error)
}

// Geocoder はジオコーディングAPIのクライアント。
type Geocoder struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewGeocoder はGeocoderの新しいインスタンスを生成する。
// endpointが空の場合はデフォルトエンドポイントを使用する。
func NewGeocoder(httpClient *http.Client, logger *slog.Logger, endpoint string) *Geocoder {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Geocoder{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
	}
}

// geocodeResult はジオコーディングAPIの応答1件分。
// 座標は文字列で返される。
type geocodeResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Resolve は場所名を地理座標に解決する。
func (g *Geocoder) Resolve(ctx context.Context, name string) (*model.GeoPoint, error) {
	if name == "" {
		return nil, nil
	}

	reqURL, err := url.Parse(g.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	q.Set("q", name)
	q.Set("format", "json")
	q.Set("limit", "1")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Tsunagu/1.0 Social Backend")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Error("ジオコーディングAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("query", name),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.Error("ジオコーディングAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("query", name),
		)
		return nil, fmt.Errorf("ジオコーディングAPIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var results []geocodeResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	// 該当なしはエラーではなくnilとして返す（呼び出し元が扱いを判断する）
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("緯度のパースに失敗しました: %w", err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("経度のパースに失敗しました: %w", err)
	}

	return &model.GeoPoint{Longitude: lon, Latitude: lat}, nil
}

// compile-time interface check
var _ GeocoderService = (*Geocoder)(nil)
