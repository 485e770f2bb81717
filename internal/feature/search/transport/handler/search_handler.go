// Package handler はsearchフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"brokerdesk/internal/feature/mastercontract/domain/entity"
	mcusecase "brokerdesk/internal/feature/mastercontract/usecase"
	"brokerdesk/internal/feature/search/transport/http/dto"
	corehandler "brokerdesk/internal/platform/http/handler"
	"brokerdesk/internal/platform/session"
)

// Exchanges are offered as filters on the token page.
var Exchanges = []string{"NSE", "BSE", "NFO", "BFO", "CDS", "BCD", "MCX", "NCDEX"}

// SymbolUsecase は銘柄検索に関するユースケースのインターフェースです。
// Following Go convention: interfaces are defined by the consumer (handler), not the provider (usecase).
type SymbolUsecase interface {
	SearchSymbols(ctx context.Context, symbol, exchange string) ([]entity.SymbolRecord, error)
	SuggestSymbols(ctx context.Context, term, exchange string) ([]entity.SymbolRecord, error)
}

// SearchHandler は /search 配下のリクエストを処理します。
type SearchHandler struct {
	uc        SymbolUsecase
	loginPath string
}

// NewSearchHandler は新しい SearchHandler を作成します。
// 未ログインのリクエストは loginPath にリダイレクトされます。
func NewSearchHandler(uc SymbolUsecase, loginPath string) *SearchHandler {
	return &SearchHandler{uc: uc, loginPath: loginPath}
}

// Register は /search ルートグループにハンドラーを登録します。
func (h *SearchHandler) Register(rg *gin.RouterGroup) {
	requireLogin := session.RequireLogin(h.loginPath)

	rg.GET("/token", requireLogin, h.Token)
	rg.GET("/", requireLogin, h.Search)
	// オートコンプリートは常にJSON配列を返す（未ログイン時は空配列）
	rg.GET("/suggestions", h.Suggestions)
}

// Token は検索フォームを表示します。
func (h *SearchHandler) Token(c *gin.Context) {
	s, _ := session.Current(c)
	c.HTML(http.StatusOK, "token.html", gin.H{
		"Username":  s.Username,
		"Exchanges": Exchanges,
	})
}

// Search は symbol と exchange で銘柄マスタを検索します。
// symbol が無い場合は空のフォームを返し、検索は行いません。
// AJAX または JSON を受け付けるクライアントには JSON を、それ以外には HTML を返します。
func (h *SearchHandler) Search(c *gin.Context) {
	symbol := c.Query("symbol")
	exchange := c.Query("exchange")

	if symbol == "" {
		c.HTML(http.StatusOK, "search.html", gin.H{
			"Results":  []dto.SymbolResult{},
			"Symbol":   "",
			"Exchange": exchange,
		})
		return
	}

	records, err := h.uc.SearchSymbols(c.Request.Context(), symbol, exchange)
	if err != nil {
		corehandler.AbortInternal(c, err)
		return
	}

	results := make([]dto.SymbolResult, 0, len(records))
	for _, r := range records {
		results = append(results, dto.NewSymbolResult(r))
	}

	if wantsJSON(c.Request) {
		c.JSON(http.StatusOK, dto.SearchResponse{Status: "success", Results: results})
		return
	}

	c.HTML(http.StatusOK, "search.html", gin.H{
		"Results":  results,
		"Symbol":   symbol,
		"Exchange": exchange,
	})
}

// Suggestions はオートコンプリート候補を最大10件返します。
// 未ログインまたは検索語が空の場合は空配列を返します。
func (h *SearchHandler) Suggestions(c *gin.Context) {
	out := []dto.Suggestion{}

	if !session.IsLoggedIn(c) {
		c.JSON(http.StatusOK, out)
		return
	}

	term := c.Query("term")
	if term == "" {
		term = c.Query("symbol")
	}
	if term == "" {
		c.JSON(http.StatusOK, out)
		return
	}

	// exchange が無ければ NSE、空文字が明示されていれば全取引所
	exchange, ok := c.GetQuery("exchange")
	if !ok {
		exchange = mcusecase.DefaultSuggestionExchange
	}

	records, err := h.uc.SuggestSymbols(c.Request.Context(), term, exchange)
	if err != nil {
		corehandler.AbortInternal(c, err)
		return
	}
	for _, r := range records {
		out = append(out, dto.NewSuggestion(r))
	}
	c.JSON(http.StatusOK, out)
}

func wantsJSON(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}
